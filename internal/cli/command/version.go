package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/infra/buildinfo"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show build information",
		Action: withEnv(showVersion),
	}
}

func showVersion(c *cli.Context, env *Env) error {
	return env.Print(c, buildinfo.Get())
}
