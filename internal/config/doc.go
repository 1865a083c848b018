// Package config provides memscope configuration.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (levels, formats, intervals, addresses)
//   - sanitize.go: Log sanitization (hide endpoint credentials)
//   - load.go: Loading through internal/infra/confloader
//
// Configuration is loaded from defaults, then a YAML file, then MEMSCOPE_
// environment variables; command-line flags are applied last by the CLI.
package config
