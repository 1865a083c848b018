// Package output renders memscope command results.
//
//   - formatter.go: Formatter interface, factory and JSON output
//   - table.go: aligned columns with wide mode
//   - yaml.go: YAML output
//   - progress.go: byte progress bar for heap index builds
//   - spinner.go: animation while a dump is opened
//
// JSON and YAML output is meant for scripts: addresses are hex strings and
// field names are stable.
package output
