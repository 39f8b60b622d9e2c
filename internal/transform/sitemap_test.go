package transform

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

func TestSitemap(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.html":       "<html></html>",
		"about/index.html": "<html></html>",
		"contact.html":     "<html></html>",
		"assets/css/a.css": "",
	})

	staging, out, err := produce(t, Sitemap(), buildmode.Build, root, map[string]string{"base_url": "https://example.com/"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Files)

	xml := readFile(t, filepath.Join(staging, SitemapFile))
	require.Contains(t, xml, "<loc>https://example.com/</loc>")
	require.Contains(t, xml, "<loc>https://example.com/about/</loc>")
	require.Contains(t, xml, "<loc>https://example.com/contact.html</loc>")
	require.NotContains(t, xml, "a.css")
	require.NotContains(t, xml, "lastmod")
}

func TestSitemap_RequiresBaseURL(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"index.html": "<html></html>"})

	staging, _, err := produce(t, Sitemap(), buildmode.Build, root, nil)
	require.Error(t, err)
	require.True(t, derrors.HasCategory(err, derrors.CategoryConfig))
	require.Contains(t, err.Error(), "site.base_url")
	require.NoFileExists(t, filepath.Join(staging, SitemapFile))
}
