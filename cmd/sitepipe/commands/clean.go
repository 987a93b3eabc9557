package commands

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct {
	KeepState bool `name:"keep-state" help:"Keep the incremental build state"`
}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	removed, err := Clean(cfg, !c.KeepState)
	for _, p := range removed {
		fmt.Printf("Removed %s\n", p)
	}
	return err
}

// Clean deletes the output directory and, when state is set, the state
// database with its SQLite side files. It returns the paths that existed.
func Clean(cfg *config.Config, state bool) ([]string, error) {
	targets := []string{cfg.DestRoot()}
	if state {
		db := cfg.StatePath()
		targets = append(targets, db, db+"-wal", db+"-shm")
	}
	var removed []string
	for _, p := range targets {
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return removed, ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove build artifacts").
				WithContext("path", p).Build()
		}
		removed = append(removed, p)
	}
	return removed, nil
}
