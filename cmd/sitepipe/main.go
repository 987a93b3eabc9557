// Command sitepipe builds a static site from pages, styles, scripts and
// images, and serves it with live reload while watching for changes.
package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitepipe/cmd/sitepipe/commands"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/version"
)

func main() {
	var cli commands.CLI
	global := &commands.Global{Logger: slog.Default()}
	parser := kong.Parse(&cli,
		kong.Name("sitepipe"),
		kong.Description("Static site build pipeline with a live-reloading dev server."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)
	err := parser.Run(global, &cli)
	os.Exit(ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).Handle(err))
}
