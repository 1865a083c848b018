package command

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/yndnr/memscope-go/internal/cli/repl"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile/dumptest"
)

// runShellInput feeds input to the shell command and returns everything it
// printed.
func runShellInput(t *testing.T, input string, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.Reader = strings.NewReader(input)

	history := filepath.Join(t.TempDir(), "history")
	argv := append([]string{"memscope", "--log-level", "error"}, args...)
	argv = append(argv, "shell", "--history", history)
	if err := app.RunContext(context.Background(), argv); err != nil {
		t.Fatalf("shell: %v\n%s", err, stdout.String())
	}
	return stdout.String()
}

func TestShell(t *testing.T) {
	fx := dumptest.Sample(t)

	input := strings.Join([]string{
		"heap instances App.Node",
		"-o json heap stats --top 1",
		"bogus",
		"he",
		"heap type No.Such",
		"shell",
		"exit",
	}, "\n")
	out := runShellInput(t, input, "--dump", fx.Path)

	for _, want := range []string{
		"Type \"help\" for commands",
		repl.DefaultPrompt,
		fx.Head.String(),
		fx.Tail.String(),
		`"count"`,
		`Error: unknown command`,
		`did you mean: heap`,
		"type not found: No.Such",
		"already in the shell",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("shell output missing %q:\n%s", want, out)
		}
	}
}

func TestShell_History(t *testing.T) {
	fx := dumptest.Sample(t)

	var stdout bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &bytes.Buffer{}
	app.Reader = strings.NewReader("runtime info\nindex status\nexit\n")

	history := filepath.Join(t.TempDir(), "history")
	argv := []string{"memscope", "--log-level", "error", "--dump", fx.Path, "shell", "--history", history}
	if err := app.RunContext(context.Background(), argv); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(history)
	if err != nil {
		t.Fatalf("history not saved: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{"runtime info", "index status", "exit"}
	if !slices.Equal(lines, want) {
		t.Errorf("history = %q, want %q", lines, want)
	}
}

func TestShell_BadDump(t *testing.T) {
	var stdout bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &bytes.Buffer{}
	app.Reader = strings.NewReader("exit\n")

	argv := []string{"memscope", "--log-level", "error", "--dump", "/nonexistent/x.dump.json", "shell",
		"--history", filepath.Join(t.TempDir(), "history")}
	if err := app.RunContext(context.Background(), argv); err == nil {
		t.Fatal("expected error for a missing dump")
	}
}

func TestCommandPaths(t *testing.T) {
	paths := commandPaths(commands(), "")

	for _, want := range []string{"heap", "heap stats", "runtime threads", "bookmark add", "dump synth", "index drop"} {
		if !slices.Contains(paths, want) {
			t.Errorf("missing %q in %v", want, paths)
		}
	}
	for _, p := range paths {
		if p == "shell" || strings.HasPrefix(p, "shell ") {
			t.Errorf("shell listed: %q", p)
		}
	}
}
