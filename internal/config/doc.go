// Package config loads todocal settings.
//
// Settings come from, in increasing precedence: built-in defaults, a YAML
// or TOML file, a .env file, environment variables and command line flags.
// Flags are applied by the cmd package.
package config
