package transform

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"
)

// Styles bundles the stylesheet entry (option "entry", default styles.css)
// into option "output" (default styles.css). Build minifies; dev writes a
// linked source map next to the bundle. Syntax errors fail the step.
func Styles() Step {
	return StepFunc(func(_ context.Context, in Input) (Output, error) {
		return bundle(in, bundleSpec{
			step:   "styles",
			entry:  in.Option("entry", "styles.css"),
			output: in.Option("output", "styles.css"),
			target: api.DefaultTarget,
			strict: true,
		})
	})
}
