// Package confloader loads memscope configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Overrides, usually command-line flags
//  2. MEMSCOPE_ environment variables
//  3. A YAML configuration file
//  4. Default values already set on the target struct
//
// Watcher reports changes to a configuration file so a long-running
// shell can re-apply settings such as the log level.
package confloader
