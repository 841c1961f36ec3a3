// Package configs embeds the configuration templates written by
// `ragsearch config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. User config (~/.config/ragsearch/config.yaml)
//  3. Project config (.ragsearch.yaml)
//  4. Environment variables (RAGSEARCH_*, DATABASE_URL)
//
// Every setting in the templates is commented out so a fresh file changes
// nothing; uncomment to override.
package configs

import _ "embed"

// UserConfigTemplate is written to the user config path by `ragsearch config init`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written to ./.ragsearch.yaml by
// `ragsearch config init --project`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
