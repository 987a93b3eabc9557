package orchestrator

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/incremental"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
	"git.home.luguber.info/inful/sitepipe/internal/stages"
)

// echoSass returns SCSS sources unchanged, which is valid CSS for the
// fixtures below.
type echoSass struct{}

func (echoSass) Compile(req stages.SassRequest) (stages.SassResult, error) {
	return stages.SassResult{CSS: req.Source}, nil
}

const svgLogo = `<?xml version="1.0"?>
<!-- exported by an editor -->
<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10">
    <rect x="0.000000" y="0.000000" width="10.000000" height="10.000000" fill="#ff0000"/>
</svg>
`

func site(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"src/pages/index.html":     `<html><body>{{ template "_nav.html" . }}<h1>Home</h1></body></html>`,
		"src/pages/blog/post.html": `<html><body>{{ template "_nav.html" . }}post</body></html>`,
		"src/pages/_nav.html":      `<nav>nav</nav>`,
		"src/styles/main.scss":     ".a { color: red; }\n",
		"src/styles/_vars.scss":    "$x: 1;\n",
		"src/scripts/app.js":       "export const pick = (a, b) => a ?? b;\n",
		"src/images/logo.svg":      svgLogo,
	}
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	cfg, err := config.FromDefaults(dir)
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Open = config.OpenNone
	cfg.Notify.Desktop = false
	cfg.State.Disabled = true
	cfg.Styles.SourceMaps = false
	return cfg
}

func newOrchestrator(t *testing.T, cfg *config.Config, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(cfg, append([]Option{WithSass(echoSass{})}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestBuildWritesEveryCategory(t *testing.T) {
	cfg := site(t)
	o := newOrchestrator(t, cfg)

	reports, err := o.Build(t.Context())
	require.NoError(t, err)
	assert.Len(t, reports, 4)
	assert.Zero(t, FailedFiles(reports))

	dest := cfg.DestRoot()
	for _, rel := range []string{"index.html", "blog/post.html", "css/main.css", "js/app.js", "img/logo.svg"} {
		assert.FileExists(t, filepath.Join(dest, filepath.FromSlash(rel)))
	}
	assert.NoFileExists(t, filepath.Join(dest, "_nav.html"))
	assert.NoFileExists(t, filepath.Join(dest, "css", "_vars.css"))

	page, err := os.ReadFile(filepath.Join(dest, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<nav>nav</nav>")
	js, err := os.ReadFile(filepath.Join(dest, "js", "app.js"))
	require.NoError(t, err)
	assert.NotContains(t, string(js), "??")
}

func TestImagesIncremental(t *testing.T) {
	cfg := site(t)
	store := incremental.NewMemoryStore()
	o := newOrchestrator(t, cfg, WithStore(store))

	first, err := o.RunCategory(t.Context(), pipeline.Images)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed())
	out := filepath.Join(cfg.DestRoot(), "img", "logo.svg")
	optimized, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Less(t, len(optimized), len(svgLogo))

	second, err := o.RunCategory(t.Context(), pipeline.Images)
	require.NoError(t, err)
	assert.Zero(t, second.Processed())
	assert.Equal(t, 1, second.Skipped())
	again, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, optimized, again)

	cold := newOrchestrator(t, cfg, WithStore(incremental.NewMemoryStore()))
	rep, err := cold.RunCategory(t.Context(), pipeline.Images)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed())
}

func TestBuildRestoresDeletedImagesWithKeptState(t *testing.T) {
	cfg := site(t)
	store := incremental.NewMemoryStore()

	_, err := newOrchestrator(t, cfg, WithStore(store)).Build(t.Context())
	require.NoError(t, err)
	logo := filepath.Join(cfg.DestRoot(), "img", "logo.svg")
	require.FileExists(t, logo)
	require.NoError(t, os.RemoveAll(cfg.DestRoot()))

	reports, err := newOrchestrator(t, cfg, WithStore(store)).Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, reports[pipeline.Images].Processed())
	assert.FileExists(t, logo)
}

func TestBuildRendersEJSPagesAsHTML(t *testing.T) {
	cfg := site(t)
	src := filepath.Join(cfg.SourceRoot(), "pages", "docs", "index.ejs")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte(`<html><body>{{ template "_nav.html" . }}docs</body></html>`), 0o644))

	reports, err := newOrchestrator(t, cfg).Build(t.Context())
	require.NoError(t, err)
	assert.Contains(t, reports[pipeline.Pages].Outputs(), "docs/index.html")

	page, err := os.ReadFile(filepath.Join(cfg.DestRoot(), "docs", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<nav>nav</nav>")
	assert.NoFileExists(t, filepath.Join(cfg.DestRoot(), "docs", "index.ejs"))
}

func TestBuildSkipsDisabledScripts(t *testing.T) {
	cfg := site(t)
	cfg.Scripts.Enabled = false
	reports, err := newOrchestrator(t, cfg).Build(t.Context())
	require.NoError(t, err)
	assert.NotContains(t, reports, pipeline.Scripts)
	assert.NoFileExists(t, filepath.Join(cfg.DestRoot(), "js", "app.js"))
}

func TestRunServesAfterBuildAndWatchesPerCategory(t *testing.T) {
	cfg := site(t)
	o := newOrchestrator(t, cfg)

	all, unsub := events.Subscribe[any](o.Bus(), 256)
	defer unsub()

	ctx, cancel := context.WithCancel(t.Context())
	runErr := make(chan error, 1)
	go func() { runErr <- o.Run(ctx) }()
	require.Eventually(t, func() bool { return o.State() == StateWatching }, 10*time.Second, 10*time.Millisecond)

	// Every initial run completed before the server announced itself.
	completed := map[string]bool{}
	var url string
	for url == "" {
		select {
		case evt := <-all:
			switch e := evt.(type) {
			case events.TaskCompleted:
				completed[e.Category] = true
			case events.ServerReady:
				assert.Len(t, completed, 4, "server ready before the initial build finished")
				url = e.URL
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no ServerReady event")
		}
	}

	resp, err := http.Get(url)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Editing a stylesheet partial reruns styles and nothing else.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourceRoot(), "styles", "_vars.scss"), []byte("$x: 2;\n"), 0o644))
	var runs []string
	deadline := time.After(3 * time.Second)
	settle := time.NewTimer(time.Hour)
	defer settle.Stop()
collect:
	for {
		select {
		case evt := <-all:
			if e, ok := evt.(events.TaskCompleted); ok {
				runs = append(runs, e.Category)
				settle.Reset(500 * time.Millisecond)
			}
		case <-settle.C:
			break collect
		case <-deadline:
			break collect
		}
	}
	assert.Equal(t, []string{"styles"}, runs)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, o.State())
	assert.True(t, ferrors.HasCategory(o.Run(t.Context()), ferrors.CategoryValidation), "second Run is rejected")
}

func TestRunFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := site(t)
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	o := newOrchestrator(t, cfg)

	err = o.Run(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryServer))
	assert.Equal(t, StateStopped, o.State())
	// The build itself still ran.
	assert.FileExists(t, filepath.Join(cfg.DestRoot(), "index.html"))
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "INITIAL_BUILD", StateInitialBuild.String())
	assert.Equal(t, "SERVER_START", StateServerStart.String())
	assert.Equal(t, "WATCHING", StateWatching.String())
}
