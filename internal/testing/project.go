package testing

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/assetpipe/internal/config"
)

// Layout is the default.html of the fixture site. It references one asset
// of every kind so cache busting has something to rewrite.
const Layout = `<!DOCTYPE html>
<html>
<head>
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="/assets/css/styles.css">
</head>
<body>
  <img src="/assets/img/logo.svg" alt="logo">
  {{block "content" .}}{{end}}
  <script src="/assets/js/scripts.js"></script>
</body>
</html>
`

// BadStylesheet fails the styles step with a source error.
const BadStylesheet = "body { margin: 0; }\n@import \"./missing.css\";\n"

// Project is a fixture site on disk plus the configuration pointing at it.
type Project struct {
	Root   string
	Config *config.Config
	t      *testing.T
}

// NewProject writes a small site (two pages, a stylesheet, a script with
// an import and an SVG) into a temp dir. The mirror root is configured.
func NewProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	WriteTree(t, root, map[string]string{
		"src/templates/layouts/default.html": Layout,
		"src/templates/pages/index.html":     `{{define "content"}}<h1>Hello</h1>{{end}}`,
		"src/templates/pages/about.md":       "# About\n\nAbout this site.\n",
		"src/styles/styles.css":              "body {\n  color: red;\n}\n",
		"src/js/index.js":                    "import { greet } from './greet.js';\ngreet('site');\n",
		"src/js/greet.js":                    "export function greet(name) {\n  console.log('hello ' + name);\n}\n",
		"src/img/logo.svg":                   `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10">  <rect width="10" height="10"/>  </svg>`,
	})

	cfg := config.Default()
	cfg.Site.BaseURL = "https://example.com"
	cfg.Sources.Templates = filepath.Join(root, "src", "templates")
	cfg.Sources.Styles = filepath.Join(root, "src", "styles")
	cfg.Sources.Scripts = filepath.Join(root, "src", "js")
	cfg.Sources.Images = filepath.Join(root, "src", "img")
	cfg.Output.Directory = filepath.Join(root, "public")
	cfg.Output.Mirror = filepath.Join(root, "docs")
	return &Project{Root: root, Config: cfg, t: t}
}

// Write adds or replaces files relative to the project root.
func (p *Project) Write(files map[string]string) *Project {
	p.t.Helper()
	WriteTree(p.t, p.Root, files)
	return p
}

// Primary returns assertions over the primary output root.
func (p *Project) Primary() *FileAssertions {
	return NewFileAssertions(p.t, p.Config.Output.Directory)
}

// SaveConfig writes the configuration as assetpipe.yaml in the project
// root and returns its path.
func (p *Project) SaveConfig() string {
	p.t.Helper()
	data, err := yaml.Marshal(p.Config)
	if err != nil {
		p.t.Fatalf("Failed to marshal config: %v", err)
	}
	path := filepath.Join(p.Root, config.DefaultPath)
	if err := os.WriteFile(path, data, testFilePermissions); err != nil {
		p.t.Fatalf("Failed to write config: %v", err)
	}
	return path
}
