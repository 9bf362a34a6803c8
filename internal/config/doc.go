// Package config provides the configuration of docmirror: the flat Config
// populated from CLI flags, its defaults and validation, and the optional
// YAML file with per-site overrides.
package config
