// Package notify surfaces run outcomes to the developer: failures go to the
// log, the browser overlay and optionally a desktop notification; successful
// runs trigger a browser reload or stylesheet injection.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/gen2brain/beeep"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	"git.home.luguber.info/inful/sitepipe/internal/events"
	"git.home.luguber.info/inful/sitepipe/internal/livereload"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

// Broadcaster is the live-reload side; *livereload.Hub implements it.
type Broadcaster interface {
	Broadcast(livereload.Message)
}

// DesktopFunc shows a desktop notification.
type DesktopFunc func(title, message string) error

func beeepNotify(title, message string) error { return beeep.Notify(title, message, "") }

type Notifier struct {
	hub     Broadcaster
	overlay bool
	desktop DesktopFunc
	log     *slog.Logger

	mu      sync.Mutex
	failing map[string]bool
}

type Option func(*Notifier)

// WithDesktop replaces the desktop notification backend.
func WithDesktop(fn DesktopFunc) Option { return func(n *Notifier) { n.desktop = fn } }

func WithLogger(l *slog.Logger) Option { return func(n *Notifier) { n.log = l } }

// New builds a Notifier. hub may be nil when live reload is off.
func New(cfg config.NotifyConfig, hub Broadcaster, opts ...Option) *Notifier {
	n := &Notifier{hub: hub, overlay: cfg.Overlay, log: slog.Default(), failing: map[string]bool{}}
	if cfg.Desktop {
		n.desktop = beeepNotify
	}
	for _, o := range opts {
		o(n)
	}
	if !cfg.Desktop {
		n.desktop = nil
	}
	return n
}

// Attach subscribes to TaskCompleted on bus before returning, so no event
// published afterwards is missed. The returned loop handles events until the
// bus closes the subscription or ctx is done.
func (n *Notifier) Attach(bus *events.Bus) func(ctx context.Context) {
	ch, unsubscribe := events.Subscribe[events.TaskCompleted](bus, 16)
	return func(ctx context.Context) {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				n.Handle(evt)
			}
		}
	}
}

// Handle reacts to one completed run.
func (n *Notifier) Handle(evt events.TaskCompleted) {
	log := n.log.With(logfields.Category(evt.Category), logfields.RunID(evt.RunID))

	if len(evt.Outputs) > 0 && n.hub != nil {
		switch pipeline.NotifyKind(evt.Notify) {
		case pipeline.NotifyReload:
			n.hub.Broadcast(livereload.Message{Type: livereload.TypeReload, Hash: evt.RunID})
		case pipeline.NotifyInject:
			n.hub.Broadcast(livereload.Message{Type: livereload.TypeInject, Hash: evt.RunID, Paths: stylesheets(evt.Outputs)})
		}
	}

	n.mu.Lock()
	wasFailing := n.failing[evt.Category]
	n.failing[evt.Category] = evt.Failed()
	anyFailing := false
	for _, f := range n.failing {
		anyFailing = anyFailing || f
	}
	n.mu.Unlock()

	if !evt.Failed() {
		if wasFailing {
			log.Info("Errors resolved")
			if n.overlay && n.hub != nil && !anyFailing {
				n.hub.Broadcast(livereload.Message{Type: livereload.TypeClear})
			}
		}
		return
	}

	for _, f := range evt.Failures {
		log.Warn("File failed", logfields.Path(f.Path), slog.String("message", f.Message))
	}
	title := Title(evt.Category)
	summary := Summary(evt)
	if n.overlay && n.hub != nil {
		n.hub.Broadcast(livereload.Message{Type: livereload.TypeError, Text: title + ": " + Details(evt)})
	}
	if n.desktop != nil {
		if err := n.desktop(title, summary); err != nil {
			log.Debug("Desktop notification failed", logfields.Error(err))
		}
	}
}

// Title is "<Category> Error", e.g. "Styles Error".
func Title(category string) string {
	if category == "" {
		return "Error"
	}
	return strings.ToUpper(category[:1]) + category[1:] + " Error"
}

// Summary is the first failure, with a count of the rest.
func Summary(evt events.TaskCompleted) string {
	if len(evt.Failures) == 0 {
		return "run aborted"
	}
	msg := evt.Failures[0].Message
	if extra := len(evt.Failures) - 1; extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}
	return msg
}

// Details lists every failure on its own line.
func Details(evt events.TaskCompleted) string {
	if len(evt.Failures) == 0 {
		return "run aborted"
	}
	lines := make([]string, 0, len(evt.Failures))
	for _, f := range evt.Failures {
		lines = append(lines, f.Message)
	}
	return strings.Join(lines, "\n")
}

func stylesheets(outputs []string) []string {
	var css []string
	for _, o := range outputs {
		if path.Ext(o) == ".css" {
			css = append(css, o)
		}
	}
	return css
}
