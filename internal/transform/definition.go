package transform

import (
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// ErrorPolicy overrides how a step failure is classified.
type ErrorPolicy string

const (
	// OnErrorDefault keeps the collaborator's classification.
	OnErrorDefault ErrorPolicy = ""
	// OnErrorFatal escalates every failure to fatal.
	OnErrorFatal ErrorPolicy = "fatal"
)

// Definition describes one transform step of the pipeline.
type Definition struct {
	Name       string
	SourceRoot string
	SourceGlob string            // watched pattern, relative to SourceRoot
	Subdir     string            // destination sub-path under every output root
	Options    map[string]string // mode independent settings
	OnError    ErrorPolicy
	Step       Step
}

// Spec returns the mode independent part consumed by buildmode.Configure.
func (d Definition) Spec() buildmode.StepSpec {
	return buildmode.StepSpec{Name: d.Name, Subdir: d.Subdir, Options: d.Options}
}

// Validate checks that the definition can be run.
func (d Definition) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return derrors.ConfigError("transform step name must not be empty").Build()
	case d.SourceRoot == "":
		return derrors.ConfigError("transform step has no source root").WithContext("step", d.Name).Build()
	case d.Step == nil:
		return derrors.InternalError("transform step has no implementation").WithContext("step", d.Name).Build()
	case strings.HasPrefix(d.Subdir, "..") || strings.HasPrefix(d.Subdir, "/"):
		return derrors.ConfigError("transform step sub-path must stay inside the output root").
			WithContext("step", d.Name).
			WithContext("subdir", d.Subdir).
			Build()
	}
	return nil
}
