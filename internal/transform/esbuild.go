package transform

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Asset references left to the image step and the browser.
var externalAssets = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.eot", "*.otf",
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// bundleSpec is the common shape of the style and script steps.
type bundleSpec struct {
	step   string
	entry  string
	output string
	target api.Target
	// strict turns syntax warnings into errors. esbuild recovers from
	// malformed CSS with a warning, which would publish broken output.
	strict bool
}

// bundle runs esbuild on spec.entry and writes the results into in.Staging.
func bundle(in Input, spec bundleSpec) (Output, error) {
	root, err := filepath.Abs(in.SourceRoot)
	if err != nil {
		return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to resolve source root").Fatal().Build()
	}
	entry := filepath.Join(root, spec.entry)
	if _, err := os.Stat(entry); err != nil {
		return Output{}, derrors.FileSystemError("entry point does not exist").
			WithCause(err).
			WithContext("step", spec.step).
			WithContext("path", entry).
			Build()
	}

	minify := in.Flag("minify")
	opts := api.BuildOptions{
		AbsWorkingDir:     root,
		EntryPoints:       []string{entry},
		Outfile:           filepath.Join(in.Staging, spec.output),
		Bundle:            true,
		Write:             false,
		LogLevel:          api.LogLevelSilent,
		External:          externalAssets,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		Target:            spec.target,
	}
	if in.Flag("sourcemaps") {
		opts.Sourcemap = api.SourceMapLinked
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return Output{}, bundleError(spec.step, root, result.Errors)
	}
	if spec.strict {
		if syntax := syntaxWarnings(result.Warnings); len(syntax) > 0 {
			return Output{}, bundleError(spec.step, root, syntax)
		}
	}

	for _, f := range result.OutputFiles {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o750); err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to create output directory").Fatal().Build()
		}
		// #nosec G306 -- published site assets are world readable
		if err := os.WriteFile(f.Path, f.Contents, 0o644); err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write bundle").
				Fatal().
				WithContext("path", f.Path).
				Build()
		}
	}
	return Output{Files: len(result.OutputFiles)}, nil
}

var unresolvedImport = regexp.MustCompile(`^Could not resolve "([^"]+)"`)

// bundleError classifies the first esbuild error. An unresolvable bare
// import means a package is not installed, which is an environment problem;
// everything else is a problem with the sources.
func bundleError(step, root string, msgs []api.Message) error {
	first := msgs[0]
	text := first.Text
	if len(msgs) > 1 {
		text = fmt.Sprintf("%s (and %d more errors)", text, len(msgs)-1)
	}

	var b *derrors.ErrorBuilder
	if m := unresolvedImport.FindStringSubmatch(first.Text); m != nil && isBareImport(m[1]) {
		b = derrors.EnvironmentError("missing dependency: "+text).WithContext("import", m[1])
	} else {
		b = derrors.SourceError(text)
	}
	b = b.WithContext("step", step)
	if loc := first.Location; loc != nil {
		file := loc.File
		if rel, err := filepath.Rel(root, file); err == nil && filepath.IsAbs(file) {
			file = rel
		}
		b = b.WithContext("file", filepath.ToSlash(file)).WithContext("line", loc.Line)
	}
	return b.Build()
}

func syntaxWarnings(msgs []api.Message) []api.Message {
	var out []api.Message
	for _, m := range msgs {
		if strings.HasPrefix(m.Text, "Expected") || strings.HasPrefix(m.Text, "Unexpected") {
			out = append(out, m)
		}
	}
	return out
}

func isBareImport(path string) bool {
	return !strings.HasPrefix(path, ".") && !strings.HasPrefix(path, "/") && !filepath.IsAbs(path)
}
