package transform

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/snabb/sitemap"

	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// SitemapFile is the name of the generated sitemap.
const SitemapFile = "sitemap.xml"

// Sitemap writes sitemap.xml listing every *.html under the source root
// (the primary output root) against option "base_url". index.html maps to
// its directory URL. A missing base URL is a configuration error.
func Sitemap() Step {
	return StepFunc(func(_ context.Context, in Input) (Output, error) {
		base := strings.TrimRight(in.Option("base_url", ""), "/")
		if base == "" {
			return Output{}, derrors.ConfigError("site.base_url is required to write the sitemap").
				WithContext("step", "sitemap").
				Build()
		}

		pages, err := doublestar.Glob(os.DirFS(in.SourceRoot), "**/*.html", doublestar.WithFilesOnly())
		if err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to list markup").Fatal().Build()
		}
		sort.Strings(pages)

		sm := sitemap.New()
		for _, page := range pages {
			sm.Add(&sitemap.URL{
				Loc:        base + sitePath(page),
				ChangeFreq: sitemap.Daily,
			})
		}

		dst := filepath.Join(in.Staging, SitemapFile)
		f, err := os.Create(dst)
		if err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to create sitemap").Fatal().Build()
		}
		if _, err := sm.WriteTo(f); err != nil {
			_ = f.Close()
			return Output{}, derrors.WrapError(err, derrors.CategoryCollaborator, "failed to write sitemap").Build()
		}
		if err := f.Close(); err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to close sitemap").Fatal().Build()
		}
		return Output{Files: 1}, nil
	})
}
