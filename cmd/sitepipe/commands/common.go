package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitepipe/internal/config"
)

// Global carries state shared by every subcommand.
type Global struct {
	Logger *slog.Logger
}

// CLI is the command line grammar; dev runs when no command is given.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (YAML or TOML)" type:"path"`
	Verbose bool             `short:"v" help:"Enable debug logging and full error chains"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Dev   DevCmd   `cmd:"" default:"withargs" help:"Build, serve with live reload and rebuild on change"`
	Build BuildCmd `cmd:"" help:"Build every category once and exit"`
	Init  InitCmd  `cmd:"" help:"Write an example configuration file"`
	Clean CleanCmd `cmd:"" help:"Remove the output directory and the build state"`
}

// AfterApply installs a preliminary logger; commands that load a
// configuration replace it with one honoring the logging section.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads the configuration and swaps g.Logger for one built from
// its logging section. -v always wins over the configured level.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = newLogger(cfg.Logging, root.Verbose)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func newLogger(lc config.LoggingConfig, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.Level.SlogLevel()}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if lc.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
