package transform

import (
	"context"
	"strconv"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
)

// Input is what a step receives for one invocation.
type Input struct {
	// SourceRoot is the directory the step reads from.
	SourceRoot string
	// Staging is an empty private directory; outputs are written here
	// relative to the step's destination sub-path.
	Staging string
	// Effective carries the mode dependent options.
	Effective buildmode.Effective
}

// Option returns the named option or def.
func (in Input) Option(name, def string) string {
	return in.Effective.Option(name, def)
}

// Flag returns the named boolean option.
func (in Input) Flag(name string) bool {
	v, err := strconv.ParseBool(in.Effective.Option(name, "false"))
	return err == nil && v
}

// Output summarizes what a step staged.
type Output struct {
	Files int
}

// Step is one collaborator. Implementations return classified errors:
// source errors for malformed input, environment errors for missing
// dependencies and filesystem errors for I/O failures.
type Step interface {
	Produce(ctx context.Context, in Input) (Output, error)
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, in Input) (Output, error)

func (f StepFunc) Produce(ctx context.Context, in Input) (Output, error) { return f(ctx, in) }
