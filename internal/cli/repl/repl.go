package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yndnr/memscope-go/internal/infra/shutdown"
)

// DefaultPrompt is shown before each line.
const DefaultPrompt = "memscope> "

// ErrUnknownCommand is returned by an Executor that does not recognize
// the first word of a line; the REPL answers it with suggestions.
var ErrUnknownCommand = errors.New("unknown command")

// Executor runs one parsed line.
type Executor func(ctx context.Context, args []string) error

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	prompt    string
	exec      Executor
	completer *Completer
	history   *History
}

// Option configures a REPL.
type Option func(*REPL)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *REPL) {
		r.input = in
		r.output = out
	}
}

// WithPrompt replaces DefaultPrompt.
func WithPrompt(prompt string) Option {
	return func(r *REPL) { r.prompt = prompt }
}

// WithCompleter sets the command paths used for suggestions.
func WithCompleter(c *Completer) Option {
	return func(r *REPL) { r.completer = c }
}

// WithHistory replaces the default history.
func WithHistory(h *History) Option {
	return func(r *REPL) { r.history = h }
}

// New creates a REPL that hands every line to exec.
func New(exec Executor, opts ...Option) *REPL {
	r := &REPL{
		input:     os.Stdin,
		output:    os.Stdout,
		prompt:    DefaultPrompt,
		exec:      exec,
		completer: NewCompleter(nil),
		history:   NewHistory(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads lines until EOF, "exit" or "quit", or until ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	reader := bufio.NewReader(r.input)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(r.output, r.prompt)

		line, err := reader.ReadString('\n')
		if err == io.EOF && line == "" {
			fmt.Fprintln(r.output)
			return nil
		}
		if err != nil && err != io.EOF {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		expanded, err := r.history.Expand(line)
		if err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
			continue
		}
		if expanded != line {
			fmt.Fprintln(r.output, expanded)
			line = expanded
		}
		r.history.Add(line)

		switch line {
		case "exit", "quit":
			return nil
		case "history":
			for i, entry := range r.history.Entries() {
				fmt.Fprintf(r.output, "%4d  %s\n", i+1, entry)
			}
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
		}
	}
}

func (r *REPL) execute(ctx context.Context, line string) error {
	args, err := SplitArgs(line)
	if err != nil {
		return err
	}
	if r.exec == nil {
		return nil
	}

	ctx, stop := shutdown.WithSignals(ctx)
	defer stop()

	err = r.exec(ctx, args)
	if errors.Is(err, ErrUnknownCommand) {
		if s := r.completer.Complete(args[0]); len(s) > 0 {
			return fmt.Errorf("%w %q; did you mean: %s", ErrUnknownCommand, args[0], strings.Join(s, ", "))
		}
	}
	return err
}

// SplitArgs splits a line into words. Single and double quotes group
// words; a backslash escapes the next character outside single quotes.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inWord = true
		case c == ' ' || c == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
