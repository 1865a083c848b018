package repl

import (
	"slices"
	"strings"
)

// builtins are handled by the REPL itself.
var builtins = []string{"exit", "history", "quit"}

// Completer suggests command paths ("heap stats", "runtime threads").
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over the given command paths plus the
// REPL builtins.
func NewCompleter(commands []string) *Completer {
	all := append(slices.Clone(commands), builtins...)
	slices.Sort(all)
	return &Completer{commands: slices.Compact(all)}
}

// Complete returns the command paths starting with prefix, sorted.
func (c *Completer) Complete(prefix string) []string {
	if prefix == "" {
		return nil
	}
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}

// Commands returns every known command path.
func (c *Completer) Commands() []string {
	return slices.Clone(c.commands)
}
