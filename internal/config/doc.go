// Package config loads assetpipe.yaml.
//
// Loading order: .env/.env.local are merged into the process environment
// (existing variables win), ${VAR} references in the YAML are expanded,
// the document is decoded, defaults are applied, then Validate runs.
package config
