package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/orchestrator"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Minify bool `help:"Minify pages, styles and scripts regardless of configuration"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if b.Minify {
		cfg.Pages.Minify = true
		cfg.Styles.Minify = true
		cfg.Scripts.Minify = true
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunBuild(ctx, os.Stdout, cfg, orchestrator.WithLogger(g.Logger))
}

// RunBuild builds every enabled category once and writes a per-category
// summary to out. Per-file failures make the whole build fail after every
// category has run.
func RunBuild(ctx context.Context, out io.Writer, cfg *config.Config, opts ...orchestrator.Option) error {
	o, err := orchestrator.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = o.Close() }()

	reports, err := o.Build(ctx)
	for _, cat := range pipeline.AllCategories() {
		rep, ok := reports[cat]
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(out, "%-8s %3d built  %3d skipped  %3d failed  %s\n",
			cat, rep.Processed(), rep.Skipped(), rep.Failed(), rep.Duration().Round(time.Millisecond))
	}
	if err != nil {
		return err
	}
	if n := orchestrator.FailedFiles(reports); n > 0 {
		return ferrors.ProcessingError(fmt.Sprintf("%d file(s) failed to build", n)).
			WithContext("failed", n).Build()
	}
	return nil
}
