package buildmode

import (
	"maps"
	"path/filepath"
	"strconv"
)

// Roots are the output roots a step may publish into.
type Roots struct {
	Primary string
	Mirror  string // optional; empty disables the mirror
}

// StepSpec is the mode-independent part of a transform step definition.
type StepSpec struct {
	Name    string
	Subdir  string            // destination sub-path under every output root
	Options map[string]string // step specific settings from configuration
}

// Effective is what a step receives for one invocation.
type Effective struct {
	Mode         Mode
	Profile      Profile
	Options      map[string]string
	Destinations []string
}

// Option returns the named option or def when unset.
func (e Effective) Option(name, def string) string {
	if v, ok := e.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// Configure resolves spec for mode. Dev writes only to the primary root;
// build writes to the primary root and, when configured, the mirror root.
// The profile flags are also exposed as options ("minify", "sourcemaps",
// "optimize") so collaborators can read them uniformly.
func Configure(spec StepSpec, mode Mode, roots Roots) Effective {
	profile := ProfileFor(mode)

	opts := make(map[string]string, len(spec.Options)+3)
	maps.Copy(opts, spec.Options)
	opts["minify"] = strconv.FormatBool(profile.Minify)
	opts["sourcemaps"] = strconv.FormatBool(profile.SourceMaps)
	opts["optimize"] = strconv.FormatBool(profile.OptimizeImages)

	dests := []string{filepath.Join(roots.Primary, spec.Subdir)}
	if profile.Mirror && roots.Mirror != "" {
		dests = append(dests, filepath.Join(roots.Mirror, spec.Subdir))
	}

	return Effective{
		Mode:         mode,
		Profile:      profile,
		Options:      opts,
		Destinations: dests,
	}
}
