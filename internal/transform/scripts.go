package transform

import (
	"context"

	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Scripts bundles the script entry (option "entry", default index.js) and
// its imports into option "output" (default scripts.js), down-levelled to
// option "target".
func Scripts() Step {
	return StepFunc(func(_ context.Context, in Input) (Output, error) {
		name := in.Option("target", "es2017")
		target, ok := targets[name]
		if !ok {
			return Output{}, derrors.ConfigError("unknown script target").
				WithContext("step", "scripts").
				WithContext("target", name).
				Build()
		}
		return bundle(in, bundleSpec{
			step:   "scripts",
			entry:  in.Option("entry", "index.js"),
			output: in.Option("output", "scripts.js"),
			target: target,
		})
	})
}
