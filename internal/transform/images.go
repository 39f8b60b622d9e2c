package transform

import (
	"bytes"
	"context"
	"image/jpeg"
	"image/png"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"

	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Images copies every file under the images root. With the "optimize" flag
// PNGs are recompressed losslessly and SVGs minified. JPEGs are re-encoded
// at option "quality" only with the "lossy_jpeg" flag. The original bytes
// are kept whenever the result is not smaller.
func Images() Step {
	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)
	return StepFunc(func(_ context.Context, in Input) (Output, error) {
		return processImages(in, m)
	})
}

func processImages(in Input, m *minify.M) (Output, error) {
	files, err := doublestar.Glob(os.DirFS(in.SourceRoot), "**", doublestar.WithFilesOnly())
	if err != nil {
		return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to list images").Fatal().Build()
	}

	optimize := in.Flag("optimize")
	opts := imageOptions{lossyJPEG: in.Flag("lossy_jpeg")}
	quality, convErr := strconv.Atoi(in.Option("quality", "85"))
	if convErr != nil || quality < 1 || quality > 100 {
		quality = 85
	}
	opts.quality = quality

	count := 0
	for _, rel := range files {
		if isHidden(rel) {
			continue
		}
		src, err := os.ReadFile(filepath.Join(in.SourceRoot, filepath.FromSlash(rel)))
		if err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read image").
				Fatal().
				WithContext("path", rel).
				Build()
		}

		out := src
		if optimize {
			if out, err = optimizeImage(rel, src, opts, m); err != nil {
				return Output{}, err
			}
		}

		dst := filepath.Join(in.Staging, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to create output directory").Fatal().Build()
		}
		// #nosec G306 -- published site assets are world readable
		if err := os.WriteFile(dst, out, 0o644); err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write image").
				Fatal().
				WithContext("path", dst).
				Build()
		}
		count++
	}
	return Output{Files: count}, nil
}

type imageOptions struct {
	quality   int
	lossyJPEG bool
}

func optimizeImage(rel string, src []byte, opts imageOptions, m *minify.M) ([]byte, error) {
	var (
		buf bytes.Buffer
		err error
	)
	switch strings.ToLower(path.Ext(rel)) {
	case ".png":
		img, decErr := png.Decode(bytes.NewReader(src))
		if decErr != nil {
			return nil, imageError(rel, decErr)
		}
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case ".jpg", ".jpeg":
		if !opts.lossyJPEG {
			return src, nil
		}
		img, decErr := jpeg.Decode(bytes.NewReader(src))
		if decErr != nil {
			return nil, imageError(rel, decErr)
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.quality})
	case ".svg":
		err = m.Minify("image/svg+xml", &buf, bytes.NewReader(src))
	default:
		return src, nil
	}
	if err != nil {
		return nil, imageError(rel, err)
	}
	if buf.Len() >= len(src) {
		return src, nil
	}
	return buf.Bytes(), nil
}

func imageError(rel string, err error) error {
	return derrors.WrapError(err, derrors.CategorySource, "failed to optimize image").
		WithContext("file", rel).
		Build()
}

func isHidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
