package transform

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

func TestStyles_DevWritesSourceMap(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"styles.css":        "@import \"./partials/base.css\";\n.title { color: red; }\n",
		"partials/base.css": "body {\n  margin: 0;\n}\n",
	})

	staging, out, err := produce(t, Styles(), buildmode.Dev, src, nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Files)

	css := readFile(t, filepath.Join(staging, "styles.css"))
	require.Contains(t, css, "margin: 0")
	require.Contains(t, css, ".title")
	require.Contains(t, css, "sourceMappingURL=styles.css.map")
	require.FileExists(t, filepath.Join(staging, "styles.css.map"))
}

func TestStyles_BuildMinifies(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"styles.css": "body {\n  margin: 0;\n}\n"})

	staging, out, err := produce(t, Styles(), buildmode.Build, src, nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.Files)
	css := readFile(t, filepath.Join(staging, "styles.css"))
	require.Equal(t, "body{margin:0}", strings.TrimSpace(css))
	require.NoFileExists(t, filepath.Join(staging, "styles.css.map"))
}

func TestStyles_MissingImportIsSourceError(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"styles.css": "body { margin: 0; }\n@import \"./missing.css\";\n"})

	_, _, err := produce(t, Styles(), buildmode.Dev, src, nil)
	require.Error(t, err)
	require.True(t, derrors.HasCategory(err, derrors.CategorySource))
	ce, ok := derrors.AsClassified(err)
	require.True(t, ok)
	file, _ := ce.Context().GetString("file")
	require.Equal(t, "styles.css", file)
}

func TestStyles_MissingEntryIsFatal(t *testing.T) {
	_, _, err := produce(t, Styles(), buildmode.Dev, t.TempDir(), map[string]string{"entry": "main.css"})
	require.True(t, derrors.HasCategory(err, derrors.CategoryFileSystem))
	require.True(t, derrors.IsFatal(err))
}

func TestScripts_Bundles(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"index.js":     "import { greet } from './lib/greet.js'\ngreet('world')\n",
		"lib/greet.js": "export const greet = (name) => console.log(`hello ${name}`)\n",
	})

	staging, _, err := produce(t, Scripts(), buildmode.Build, src, map[string]string{"target": "es2017"})
	require.NoError(t, err)
	js := readFile(t, filepath.Join(staging, "scripts.js"))
	require.Contains(t, js, "hello")
	require.NotContains(t, js, "import")
	require.NoFileExists(t, filepath.Join(staging, "scripts.js.map"))
}

func TestScripts_BareImportIsEnvironmentError(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"index.js": "import debounce from 'lodash-not-installed'\ndebounce()\n"})

	_, _, err := produce(t, Scripts(), buildmode.Dev, src, nil)
	require.Error(t, err)
	require.True(t, derrors.HasCategory(err, derrors.CategoryEnvironment))
	require.True(t, derrors.IsFatal(err))
}

func TestScripts_SyntaxErrorCarriesLocation(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"index.js": "const ok = 1\nconst = 2\n"})

	_, _, err := produce(t, Scripts(), buildmode.Dev, src, nil)
	require.Error(t, err)
	require.True(t, derrors.HasCategory(err, derrors.CategorySource))
	ce, _ := derrors.AsClassified(err)
	line, ok := ce.Context().Get("line")
	require.True(t, ok)
	require.Equal(t, 2, line)
	require.Contains(t, err.Error(), "(index.js:2)")
}

func TestScripts_TargetControlsLowering(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"index.js": "window.x = window.a?.b ?? 1\n"})

	staging, _, err := produce(t, Scripts(), buildmode.Build, src, map[string]string{"target": "es2020"})
	require.NoError(t, err)
	require.Contains(t, readFile(t, filepath.Join(staging, "scripts.js")), "?.")

	staging, _, err = produce(t, Scripts(), buildmode.Build, src, map[string]string{"target": "es2017"})
	require.NoError(t, err)
	require.NotContains(t, readFile(t, filepath.Join(staging, "scripts.js")), "?.")
}

func TestScripts_UnknownTargetIsConfigError(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"index.js": "window.x = 1\n"})

	_, _, err := produce(t, Scripts(), buildmode.Build, src, map[string]string{"target": "ES2020"})
	require.Error(t, err)
	require.True(t, derrors.HasCategory(err, derrors.CategoryConfig))
	require.Contains(t, err.Error(), "unknown script target")
}
