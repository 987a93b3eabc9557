package livereload

import (
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/sitepipe/internal/logfields"
)

const (
	EventsPath = "/__sitepipe/livereload"
	ScriptPath = "/__sitepipe/livereload.js"
)

// Script is the browser client. Stylesheet injection re-requests matching
// <link> elements with a cache-busting query instead of reloading the page.
const Script = `(() => {
  if (window.__SITEPIPE_LR__) return;
  window.__SITEPIPE_LR__ = true;
  const OVERLAY = '__sitepipe_overlay__';

  function showError(text) {
    let el = document.getElementById(OVERLAY);
    if (!el) {
      el = document.createElement('pre');
      el.id = OVERLAY;
      el.style.cssText = 'position:fixed;inset:0;margin:0;padding:2em;z-index:2147483647;' +
        'background:rgba(20,0,0,.92);color:#ffb4b4;font:14px/1.5 monospace;white-space:pre-wrap;overflow:auto';
      document.documentElement.appendChild(el);
    }
    el.textContent = text;
  }

  function clearError() {
    const el = document.getElementById(OVERLAY);
    if (el) el.remove();
  }

  function inject(paths) {
    const stamp = Date.now();
    document.querySelectorAll('link[rel="stylesheet"]').forEach((link) => {
      const url = new URL(link.href, location.href);
      if (url.origin !== location.origin) return;
      const match = !paths || paths.length === 0 ||
        paths.some((p) => url.pathname === '/' + p.replace(/^\/+/, ''));
      if (!match) return;
      url.searchParams.set('sitepipe', stamp);
      link.href = url.toString();
    });
  }

  function connect() {
    const es = new EventSource('` + EventsPath + `');
    es.onmessage = (e) => {
      let msg;
      try { msg = JSON.parse(e.data); } catch (_) { return; }
      switch (msg.type) {
        case 'reload': location.reload(); break;
        case 'inject': clearError(); inject(msg.paths); break;
        case 'error': showError(msg.text || 'build error'); break;
        case 'clear': clearError(); break;
      }
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`

// ServeScript writes the client script.
func ServeScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(Script)); err != nil {
		slog.Debug("write livereload script", logfields.Error(err))
	}
}
