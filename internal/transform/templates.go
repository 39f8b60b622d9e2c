package transform

import (
	"bytes"
	"context"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

const (
	layoutsDir  = "layouts"
	partialsDir = "partials"
	pagesDir    = "pages"
	// defaultLayout wraps every page when it exists in layouts/.
	defaultLayout = "default.html"
)

// PageData is the dot value of every page template.
type PageData struct {
	Title   string
	Path    string        // site path of the page, e.g. /about/
	Content template.HTML // rendered markdown, empty for HTML pages
	BaseURL string
	Dev     bool
}

var titleCaser = cases.Title(language.English)

// Templates compiles pages/**/*.html and pages/**/*.md under the templates
// root into markup mirroring the pages/ tree. Files in layouts/ and
// partials/ are shared by every page; layouts/default.html, when present,
// is executed with the page's "content" and "title" blocks.
func Templates() Step {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return StepFunc(func(ctx context.Context, in Input) (Output, error) {
		return compileTemplates(ctx, in, md)
	})
}

func compileTemplates(_ context.Context, in Input, md goldmark.Markdown) (Output, error) {
	shared, err := sharedTemplateFiles(in.SourceRoot)
	if err != nil {
		return Output{}, err
	}

	pagesRoot := filepath.Join(in.SourceRoot, pagesDir)
	pages, err := doublestar.Glob(os.DirFS(pagesRoot), "**/*.{html,md}")
	if err != nil {
		return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to list pages").Fatal().Build()
	}
	sort.Strings(pages)

	var m *minify.M
	if in.Flag("minify") {
		m = newMarkupMinifier()
	}

	for _, page := range pages {
		out, err := renderPage(in, shared, pagesRoot, page, md)
		if err != nil {
			return Output{}, err
		}
		if m != nil {
			if out, err = m.Bytes("text/html", out); err != nil {
				return Output{}, derrors.WrapError(err, derrors.CategoryCollaborator, "failed to minify markup").
					WithContext("file", path.Join(pagesDir, page)).
					Build()
			}
		}

		dst := filepath.Join(in.Staging, filepath.FromSlash(outputName(page)))
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to create output directory").Fatal().Build()
		}
		// #nosec G306 -- published site markup is world readable
		if err := os.WriteFile(dst, out, 0o644); err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write page").
				Fatal().
				WithContext("path", dst).
				Build()
		}
	}
	return Output{Files: len(pages)}, nil
}

func sharedTemplateFiles(root string) ([]string, error) {
	var files []string
	for _, dir := range []string{layoutsDir, partialsDir} {
		matches, err := doublestar.Glob(os.DirFS(root), dir+"/**/*.{html,tmpl}")
		if err != nil {
			return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to list templates").Fatal().Build()
		}
		for _, m := range matches {
			files = append(files, filepath.Join(root, filepath.FromSlash(m)))
		}
	}
	sort.Strings(files)
	return files, nil
}

func renderPage(in Input, shared []string, pagesRoot, page string, md goldmark.Markdown) ([]byte, error) {
	src, err := os.ReadFile(filepath.Join(pagesRoot, filepath.FromSlash(page)))
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read page").
			Fatal().
			WithContext("path", page).
			Build()
	}

	data := PageData{
		Title:   defaultTitle(page),
		Path:    sitePath(outputName(page)),
		BaseURL: in.Option("base_url", ""),
		Dev:     !in.Flag("minify"),
	}

	t := template.New(path.Join(pagesDir, page))
	if len(shared) > 0 {
		if t, err = t.ParseFiles(shared...); err != nil {
			return nil, templateError(err, page)
		}
	}

	if strings.HasSuffix(page, ".md") {
		var buf bytes.Buffer
		if err := md.Convert(src, &buf); err != nil {
			return nil, derrors.WrapError(err, derrors.CategoryCollaborator, "failed to render markdown").
				WithContext("file", path.Join(pagesDir, page)).
				Build()
		}
		// #nosec G203 -- markdown is authored by the site owner
		data.Content = template.HTML(buf.String())
		if _, err := t.New("content").Parse("{{.Content}}"); err != nil {
			return nil, templateError(err, page)
		}
		if _, err := t.Parse(`{{template "content" .}}`); err != nil {
			return nil, templateError(err, page)
		}
	} else if _, err := t.Parse(string(src)); err != nil {
		return nil, templateError(err, page)
	}

	entry := t.Name()
	if t.Lookup(defaultLayout) != nil {
		entry = defaultLayout
	}

	var out bytes.Buffer
	if err := t.ExecuteTemplate(&out, entry, data); err != nil {
		return nil, templateError(err, page)
	}
	return out.Bytes(), nil
}

var templateLocation = regexp.MustCompile(`template:\s?([^:]+):(\d+):`)

// templateError turns html/template parse and exec errors into source
// errors carrying the reported file and line.
func templateError(err error, page string) error {
	b := derrors.WrapError(err, derrors.CategorySource, "template failed").
		WithContext("page", path.Join(pagesDir, page))
	if m := templateLocation.FindStringSubmatch(err.Error()); m != nil {
		b = b.WithContext("file", m[1])
		if line, convErr := strconv.Atoi(m[2]); convErr == nil {
			b = b.WithContext("line", line)
		}
	} else {
		b = b.WithContext("file", path.Join(pagesDir, page))
	}
	return b.Build()
}

// outputName maps a page path to its output path: about.md -> about.html.
func outputName(page string) string {
	ext := path.Ext(page)
	return strings.TrimSuffix(page, ext) + ".html"
}

// sitePath maps an output file to its URL path; index.html maps to its directory.
func sitePath(out string) string {
	if path.Base(out) == "index.html" {
		dir := path.Dir(out)
		if dir == "." {
			return "/"
		}
		return "/" + dir + "/"
	}
	return "/" + out
}

func defaultTitle(page string) string {
	base := strings.TrimSuffix(path.Base(page), path.Ext(page))
	if base == "index" {
		dir := path.Base(path.Dir(page))
		if dir == "." || dir == "/" {
			return "Home"
		}
		base = dir
	}
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return titleCaser.String(base)
}

func newMarkupMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	m.Add("text/html", &html.Minifier{KeepDocumentTags: true, KeepEndTags: true})
	return m
}
