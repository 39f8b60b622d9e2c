package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Validate checks the configuration for values no step could run with.
func (c *Config) Validate() error {
	if c.Site.BaseURL != "" {
		u, err := url.Parse(c.Site.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return derrors.ConfigError("site.base_url must be an absolute URL").
				WithContext("base_url", c.Site.BaseURL).
				Build()
		}
	}

	if strings.TrimSpace(c.Output.Directory) == "" {
		return derrors.ConfigError("output.directory is required").Build()
	}
	if c.Output.Mirror != "" {
		if err := c.validateMirror(); err != nil {
			return err
		}
	}

	if c.Dev.Port < 0 || c.Dev.Port > 65535 {
		return derrors.ConfigError("dev.port out of range").
			WithContext("port", c.Dev.Port).
			Build()
	}
	if c.Dev.Debounce < 0 || c.Dev.MaxWait < 0 {
		return derrors.ConfigError("dev.debounce and dev.max_wait must not be negative").Build()
	}
	if c.Dev.MaxWait > 0 && c.Dev.MaxWait < c.Dev.Debounce {
		return derrors.ConfigError("dev.max_wait must be at least dev.debounce").
			WithContext("debounce", c.Dev.Debounce.Std().String()).
			WithContext("max_wait", c.Dev.MaxWait.Std().String()).
			Build()
	}

	if c.Build.MaxParallel < 0 {
		return derrors.ConfigError("build.max_parallel must not be negative").Build()
	}
	if c.Build.ImageQuality < 1 || c.Build.ImageQuality > 100 {
		return derrors.ConfigError("build.image_quality must be between 1 and 100").
			WithContext("image_quality", c.Build.ImageQuality).
			Build()
	}

	target, err := scriptTargetNormalizer.Parse(c.Build.ScriptTarget)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryConfig, "invalid build.script_target").Fatal().Build()
	}
	c.Build.ScriptTarget = target
	return nil
}

// validateMirror rejects mirror roots whose replacement would remove the
// working directory, the primary root or a source root.
func (c *Config) validateMirror() error {
	if samePath(c.Output.Mirror, c.Output.Directory) {
		return derrors.ConfigError("output.mirror must differ from output.directory").
			WithContext("mirror", c.Output.Mirror).
			Build()
	}
	if err := CheckReplaceableRoot(c.Output.Mirror); err != nil {
		return err
	}
	protected := []struct{ key, path string }{
		{"output.directory", c.Output.Directory},
		{"sources.templates", c.Sources.Templates},
		{"sources.styles", c.Sources.Styles},
		{"sources.scripts", c.Sources.Scripts},
		{"sources.images", c.Sources.Images},
	}
	for _, p := range protected {
		if p.path != "" && Overlaps(c.Output.Mirror, p.path) {
			return derrors.ConfigError("output.mirror must not contain or sit inside "+p.key).
				WithContext("mirror", c.Output.Mirror).
				WithContext(p.key, p.path).
				Build()
		}
	}
	return nil
}

// CheckReplaceableRoot refuses output roots that may not be removed as a
// whole: filesystem roots and any directory containing the working
// directory.
func CheckReplaceableRoot(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryConfig, "failed to resolve output root").
			WithContext("path", root).
			Build()
	}
	if abs == filepath.Dir(abs) {
		return derrors.ConfigError("output root must not be a filesystem root").
			WithContext("path", abs).
			Build()
	}
	if cwd, err := os.Getwd(); err == nil && contains(abs, cwd) {
		return derrors.ConfigError("output root must not contain the working directory").
			WithContext("path", abs).
			Build()
	}
	return nil
}

// Overlaps reports whether a and b are the same directory or one contains
// the other.
func Overlaps(a, b string) bool {
	aa, errA := filepath.Abs(a)
	bb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	return contains(aa, bb) || contains(bb, aa)
}

// contains reports whether child is parent or lies below it. Both paths
// must be absolute and clean.
func contains(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func samePath(a, b string) bool {
	aa, errA := filepath.Abs(a)
	bb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
