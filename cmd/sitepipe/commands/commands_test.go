package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// pagesOnly returns a project with pages and scripts only, so no Sass
// compiler is started.
func pagesOnly(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "pages", "index.html"), "<html><body>hi</body></html>")
	writeFile(t, filepath.Join(dir, "src", "scripts", "app.js"), "export const x = 1;\n")
	cfg, err := config.FromDefaults(dir)
	require.NoError(t, err)
	cfg.State.Disabled = true
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Open = config.OpenNone
	cfg.Notify.Desktop = false
	return cfg
}

func TestRunBuildSummary(t *testing.T) {
	cfg := pagesOnly(t)
	var out bytes.Buffer
	require.NoError(t, RunBuild(t.Context(), &out, cfg))

	assert.FileExists(t, filepath.Join(cfg.DestRoot(), "index.html"))
	assert.FileExists(t, filepath.Join(cfg.DestRoot(), "js", "app.js"))
	assert.Contains(t, out.String(), "pages")
	assert.Contains(t, out.String(), "1 built")
}

func TestRunBuildFailedFilesExitCode(t *testing.T) {
	cfg := pagesOnly(t)
	writeFile(t, filepath.Join(cfg.SourceRoot(), "pages", "broken.html"), "{{ if }}")

	err := RunBuild(t.Context(), &bytes.Buffer{}, cfg)
	require.Error(t, err)
	assert.Equal(t, 11, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	// The healthy page is still written.
	assert.FileExists(t, filepath.Join(cfg.DestRoot(), "index.html"))
}

func TestRunDevCancelIsClean(t *testing.T) {
	cfg := pagesOnly(t)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- RunDev(ctx, cfg) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(cfg.DestRoot(), "index.html"))
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dev did not stop")
	}
}

func TestDevFlagOverrides(t *testing.T) {
	cfg := pagesOnly(t)
	d := DevCmd{Host: "0.0.0.0", Port: 8080, Open: "local", NoLiveReload: true, NoNotify: true}
	require.NoError(t, d.apply(cfg))
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, config.OpenLocal, cfg.Server.Open)
	assert.False(t, cfg.Server.LiveReload)

	untouched := DevCmd{Port: -1}
	require.NoError(t, untouched.apply(cfg))
	assert.Equal(t, 8080, cfg.Server.Port)

	bad := DevCmd{Port: 70000}
	assert.True(t, ferrors.HasCategory(bad.apply(cfg), ferrors.CategoryValidation))
}

func TestClean(t *testing.T) {
	cfg := pagesOnly(t)
	writeFile(t, filepath.Join(cfg.DestRoot(), "index.html"), "x")
	writeFile(t, cfg.StatePath(), "db")

	removed, err := Clean(cfg, false)
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.DestRoot()}, removed)
	assert.NoDirExists(t, cfg.DestRoot())
	assert.FileExists(t, cfg.StatePath())

	removed, err = Clean(cfg, true)
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.StatePath()}, removed)
	assert.NoFileExists(t, cfg.StatePath())
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitepipe.yaml")
	root := &CLI{Config: path}
	require.NoError(t, (&InitCmd{}).Run(&Global{}, root))
	assert.FileExists(t, path)

	err := (&InitCmd{}).Run(&Global{}, root)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	require.NoError(t, (&InitCmd{Force: true}).Run(&Global{}, root))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Styles.Prefix.Grid)
}
