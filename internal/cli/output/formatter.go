package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// Format names an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name. The empty name is table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// Formatter writes command results.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns the formatter of format. Wide only affects
// tables.
func NewFormatter(format Format, wide bool) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	}
	return &TableFormatter{Wide: wide}
}

// JSONFormatter writes indented JSON.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
