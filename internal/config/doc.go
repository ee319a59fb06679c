// Package config loads the agent configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, and environment variables. Secrets (API keys, passwords, OAuth
// client secrets) are only read from the environment.
package config
