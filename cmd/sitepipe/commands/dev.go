package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/orchestrator"
)

// DevCmd implements the default 'dev' command.
type DevCmd struct {
	Host         string `help:"Interface to bind (overrides server.host)"`
	Port         int    `short:"p" default:"-1" help:"Port to listen on, 0 picks a free one (overrides server.port)"`
	Open         string `enum:",none,local,external" default:"" help:"Browser to open: none, local or external (overrides server.open)"`
	NoLiveReload bool   `name:"no-livereload" help:"Disable live reload injection"`
	NoNotify     bool   `name:"no-notify" help:"Disable desktop notifications"`
}

func (d *DevCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if err := d.apply(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunDev(ctx, cfg, orchestrator.WithLogger(g.Logger))
}

// apply copies flag overrides onto cfg.
func (d *DevCmd) apply(cfg *config.Config) error {
	if d.Host != "" {
		cfg.Server.Host = d.Host
	}
	switch {
	case d.Port == -1:
	case d.Port < 0 || d.Port > 65535:
		return ferrors.ValidationError("port must be between 0 and 65535").
			WithContext("port", d.Port).Build()
	default:
		cfg.Server.Port = d.Port
	}
	if d.Open != "" {
		cfg.Server.Open = config.OpenMode(d.Open)
	}
	if d.NoLiveReload {
		cfg.Server.LiveReload = false
	}
	if d.NoNotify {
		cfg.Notify.Desktop = false
	}
	return nil
}

// RunDev runs the build, serve and watch lifecycle until ctx is canceled.
// Cancellation is a clean shutdown, not an error.
func RunDev(ctx context.Context, cfg *config.Config, opts ...orchestrator.Option) error {
	o, err := orchestrator.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = o.Close() }()

	err = o.Run(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
