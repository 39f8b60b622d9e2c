package transform

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
)

func TestBustReferences(t *testing.T) {
	in := `<!DOCTYPE html>
<html>
<head>
  <!-- keep me -->
  <LINK rel="stylesheet" href="/assets/css/styles.css">
  <link rel="icon" href="https://cdn.example.com/favicon.ico">
  <script src="assets/js/scripts.js?v=old"></script>
</head>
<body>
  <img src="/assets/img/logo.svg" alt="Logo" />
  <a href="/about/">About</a>
  <img src="data:image/png;base64,AAAA">
</body>
</html>
`
	out, err := bustReferences([]byte(in), "123")
	require.NoError(t, err)
	got := string(out)

	require.Contains(t, got, `<link rel="stylesheet" href="/assets/css/styles.css?v=123">`)
	require.Contains(t, got, `<script src="assets/js/scripts.js?v=123"></script>`)
	require.Contains(t, got, `<img src="/assets/img/logo.svg?v=123" alt="Logo"/>`)
	require.Contains(t, got, `<link rel="icon" href="https://cdn.example.com/favicon.ico">`)
	require.Contains(t, got, `<a href="/about/">About</a>`)
	require.Contains(t, got, `<img src="data:image/png;base64,AAAA">`)
	require.Contains(t, got, "<!-- keep me -->")
	require.Contains(t, got, "<!DOCTYPE html>")
}

func TestCacheBust_Step(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.html":      `<link href="/assets/css/styles.css" rel="stylesheet">`,
		"blog/index.html": `<script src="/assets/js/scripts.js"></script>`,
	})

	staging, out, err := produce(t, CacheBust(), buildmode.Build, root, map[string]string{"token": "42"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Files)
	require.Equal(t, `<link href="/assets/css/styles.css?v=42" rel="stylesheet">`, readFile(t, filepath.Join(staging, "index.html")))
	require.Equal(t, `<script src="/assets/js/scripts.js?v=42"></script>`, readFile(t, filepath.Join(staging, "blog", "index.html")))
}
