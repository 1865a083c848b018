package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/bookmark"
	"github.com/yndnr/memscope-go/internal/core/domain"
)

// BookmarkCommand returns the bookmark subcommand group.
func BookmarkCommand() *cli.Command {
	return &cli.Command{
		Name:    "bookmark",
		Aliases: []string{"bm"},
		Usage:   "Remember interesting objects of the dump",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Bookmark an object",
				ArgsUsage: "ADDRESS",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "note",
						Aliases: []string{"m"},
						Usage:   "Free-form note",
					},
				},
				Action: withEnv(bookmarkAdd),
			},
			{
				Name:   "list",
				Usage:  "List bookmarks",
				Action: withEnv(bookmarkList),
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a bookmark",
				ArgsUsage: "ADDRESS",
				Action:    withEnv(bookmarkRemove),
			},
		},
	}
}

func bookmarkAdd(c *cli.Context, env *Env) error {
	addr, err := addressArg(c)
	if err != nil {
		return err
	}
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	typeName, err := s.GetObjectTypeName(addr)
	if err != nil {
		return err
	}

	b := bookmark.Bookmark{Address: addr, TypeName: typeName, Note: c.String("note")}
	if err := s.Bookmarks().Add(b); err != nil {
		return err
	}
	env.Printf("Bookmarked %v (%s).\n", addr, typeName)
	return nil
}

func bookmarkList(c *cli.Context, env *Env) error {
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	return env.Print(c, s.Bookmarks().List())
}

func bookmarkRemove(c *cli.Context, env *Env) error {
	addr, err := addressArg(c)
	if err != nil {
		return err
	}
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	ok, err := s.Bookmarks().Remove(addr)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAddressNotFound.WithDetailsf("no bookmark at %v", addr)
	}
	env.Printf("Removed bookmark %v.\n", addr)
	return nil
}
