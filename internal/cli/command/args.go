package command

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

// checkArgs rejects positional arguments beyond n. Flag parsing stops at
// the first argument, so a flag written after it ends up here instead of
// being applied.
func checkArgs(c *cli.Context, n int) error {
	if c.NArg() <= n {
		return nil
	}
	extra := c.Args().Get(n)
	if strings.HasPrefix(extra, "-") {
		return domain.ErrInvalidArgument.WithDetailsf("%s: flags must precede arguments", extra)
	}
	return domain.ErrInvalidArgument.WithDetailsf("unexpected argument %q", extra)
}

// requiredArg returns the single positional argument. what names it in the
// error when it is missing.
func requiredArg(c *cli.Context, what string) (string, error) {
	if err := checkArgs(c, 1); err != nil {
		return "", err
	}
	arg := c.Args().First()
	if arg == "" {
		return "", domain.ErrInvalidArgument.WithDetails(what + " required")
	}
	return arg, nil
}

func addressArg(c *cli.Context) (domain.Address, error) {
	arg, err := requiredArg(c, "address")
	if err != nil {
		return 0, err
	}
	return domain.ParseAddress(arg)
}
