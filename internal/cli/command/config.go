package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/cli/output"
	"github.com/yndnr/memscope-go/internal/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration (credentials masked)",
				Action: withEnv(configShow),
			},
			{
				Name:      "validate",
				Usage:     "Validate a configuration file",
				ArgsUsage: "FILE",
				Action:    withEnv(configValidate),
			},
		},
	}
}

func configShow(c *cli.Context, env *Env) error {
	cfg := config.Sanitize(env.Config)
	if !env.tableOutput(c) {
		return env.Print(c, cfg)
	}
	if env.ConfigPath != "" {
		env.Printf("# %s\n", env.ConfigPath)
	}
	return (&output.YAMLFormatter{}).Format(env.Stdout, cfg)
}

func configValidate(c *cli.Context, env *Env) error {
	path, err := requiredArg(c, "configuration file path")
	if err != nil {
		return err
	}
	if _, err := config.Load(path); err != nil {
		return err
	}
	env.Printf("Configuration is valid: %s\n", path)
	return nil
}
