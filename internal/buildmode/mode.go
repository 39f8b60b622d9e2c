// Package buildmode selects between the dev and build profiles.
//
// The mode is resolved once per graph invocation and carried on the context
// so every transform step of that invocation sees the same profile.
package buildmode

import (
	"context"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/normalization"
)

// Mode is the build mode of one invocation.
type Mode string

const (
	Dev   Mode = "dev"
	Build Mode = "build"
)

var modeNormalizer = normalization.NewNormalizer("build mode", map[string]Mode{
	"dev":         Dev,
	"development": Dev,
	"build":       Build,
	"production":  Build,
}, Dev)

// Parse converts a raw string to a Mode.
func Parse(raw string) (Mode, error) {
	return modeNormalizer.Parse(raw)
}

func (m Mode) String() string { return string(m) }

// Profile is the set of output choices a mode implies.
type Profile struct {
	Minify         bool
	SourceMaps     bool
	OptimizeImages bool
	Mirror         bool // fan out to the mirror root when one is configured
	Reload         bool // signal preview clients after a run
}

// ProfileFor returns the profile for m. Unknown modes get the dev profile.
func ProfileFor(m Mode) Profile {
	if m == Build {
		return Profile{Minify: true, OptimizeImages: true, Mirror: true}
	}
	return Profile{SourceMaps: true, Reload: true}
}

type modeKey struct{}

// WithMode returns a context carrying m.
func WithMode(ctx context.Context, m Mode) context.Context {
	return context.WithValue(ctx, modeKey{}, m)
}

// FromContext returns the mode carried by ctx, defaulting to Dev.
func FromContext(ctx context.Context) Mode {
	if m, ok := ctx.Value(modeKey{}).(Mode); ok {
		return m
	}
	return Dev
}
