package config

import "time"

const (
	defaultOutputDir    = "./public"
	defaultHost         = "localhost"
	defaultPort         = 3000
	defaultDebounce     = 150 * time.Millisecond
	defaultMaxWait      = time.Second
	defaultScriptTarget = "es2017"
	defaultImageQuality = 85
)

// ApplyDefaults fills unset fields. Existing values are never overwritten.
func (c *Config) ApplyDefaults() {
	if c.Sources.Templates == "" {
		c.Sources.Templates = "./src/templates"
	}
	if c.Sources.Styles == "" {
		c.Sources.Styles = "./src/styles"
	}
	if c.Sources.StyleEntry == "" {
		c.Sources.StyleEntry = "styles.css"
	}
	if c.Sources.Scripts == "" {
		c.Sources.Scripts = "./src/js"
	}
	if c.Sources.ScriptEntry == "" {
		c.Sources.ScriptEntry = "index.js"
	}
	if c.Sources.Images == "" {
		c.Sources.Images = "./src/img"
	}
	if c.Output.Directory == "" {
		c.Output.Directory = defaultOutputDir
	}
	if c.Dev.Host == "" {
		c.Dev.Host = defaultHost
	}
	if c.Dev.Port == 0 {
		c.Dev.Port = defaultPort
	}
	if c.Dev.Debounce == 0 {
		c.Dev.Debounce = Duration(defaultDebounce)
	}
	if c.Dev.MaxWait == 0 {
		c.Dev.MaxWait = Duration(defaultMaxWait)
	}
	if c.Build.ScriptTarget == "" {
		c.Build.ScriptTarget = defaultScriptTarget
	}
	if c.Build.ImageQuality == 0 {
		c.Build.ImageQuality = defaultImageQuality
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
}
