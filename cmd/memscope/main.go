// Command memscope inspects managed-runtime memory snapshots.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yndnr/memscope-go/internal/cli/command"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if err := command.App().RunContext(context.Background(), args); err != nil {
		fmt.Fprintf(os.Stderr, "memscope: %v\n", err)
		return command.ExitCode(err)
	}
	return command.ExitOK
}
