package transform

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/html"

	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// CacheBustParam is the query parameter carrying the cache-bust token.
const CacheBustParam = "v"

// bustedAttrs lists the attribute rewritten per element.
var bustedAttrs = map[string]string{
	"link":   "href",
	"script": "src",
	"img":    "src",
}

// CacheBust rewrites local href/src asset references of every *.html under
// the source root (the primary output root), appending ?v=<token>. The
// token is option "token" or, when unset, the current time in milliseconds,
// so every file of one run gets the same token. Bytes outside the rewritten
// tags are preserved.
func CacheBust() Step {
	return StepFunc(func(_ context.Context, in Input) (Output, error) {
		token := in.Option("token", "")
		if token == "" {
			token = strconv.FormatInt(time.Now().UnixMilli(), 10)
		}

		pages, err := doublestar.Glob(os.DirFS(in.SourceRoot), "**/*.html", doublestar.WithFilesOnly())
		if err != nil {
			return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to list markup").Fatal().Build()
		}

		for _, page := range pages {
			src, err := os.ReadFile(filepath.Join(in.SourceRoot, filepath.FromSlash(page)))
			if err != nil {
				return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read markup").
					Fatal().
					WithContext("path", page).
					Build()
			}
			out, err := bustReferences(src, token)
			if err != nil {
				return Output{}, derrors.WrapError(err, derrors.CategoryCollaborator, "failed to rewrite markup").
					WithContext("file", page).
					Build()
			}

			dst := filepath.Join(in.Staging, filepath.FromSlash(page))
			if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
				return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to create output directory").Fatal().Build()
			}
			// #nosec G306 -- published site markup is world readable
			if err := os.WriteFile(dst, out, 0o644); err != nil {
				return Output{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write markup").
					Fatal().
					WithContext("path", dst).
					Build()
			}
		}
		return Output{Files: len(pages)}, nil
	})
}

// bustReferences streams markup through the tokenizer, copying raw bytes
// and re-rendering only the tags whose reference changed.
func bustReferences(src []byte, token string) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(src) + 64)

	z := html.NewTokenizer(bytes.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return out.Bytes(), nil
		}

		// Token() lowercases the raw buffer in place; copy first.
		raw := append([]byte(nil), z.Raw()...)
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}

		tok := z.Token()
		attr, ok := bustedAttrs[tok.Data]
		if !ok || !rewriteAttr(&tok, attr, token) {
			out.Write(raw)
			continue
		}
		out.WriteString(tok.String())
	}
}

func rewriteAttr(tok *html.Token, name, token string) bool {
	for i, a := range tok.Attr {
		if a.Namespace != "" || a.Key != name {
			continue
		}
		busted, ok := bustURL(a.Val, token)
		if !ok {
			return false
		}
		tok.Attr[i].Val = busted
		return true
	}
	return false
}

// bustURL sets the cache-bust parameter on local references. Remote,
// protocol-relative, data and fragment-only references are left alone.
func bustURL(ref, token string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	if path.Ext(u.Path) == "" {
		return "", false
	}
	q := u.Query()
	q.Set(CacheBustParam, token)
	u.RawQuery = q.Encode()
	return u.String(), true
}
