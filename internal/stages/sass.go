package stages

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/bep/godartsass/v2"

	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

// SassRequest is one stylesheet compilation.
type SassRequest struct {
	Source       string
	Path         string // absolute path, used for relative @use resolution
	Indented     bool   // .sass syntax
	IncludePaths []string
	Compressed   bool
	SourceMap    bool
}

// SassResult holds compiled CSS and, when requested, its source map JSON.
type SassResult struct {
	CSS       string
	SourceMap string
}

// SassCompiler compiles Sass sources to CSS.
type SassCompiler interface {
	Compile(req SassRequest) (SassResult, error)
}

// DartSass talks to a long-running dart-sass process over the embedded
// protocol. The process is started on first use and shared by every run.
type DartSass struct {
	Binary string

	mu  sync.Mutex
	t   *godartsass.Transpiler
	err error
}

// NewDartSass returns a compiler for binary, resolved through PATH when it
// has no directory component.
func NewDartSass(binary string) *DartSass { return &DartSass{Binary: binary} }

func (d *DartSass) transpiler() (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil || d.err != nil {
		return d.t, d.err
	}
	bin := d.Binary
	if filepath.Base(bin) == bin {
		if resolved, err := exec.LookPath(bin); err == nil {
			bin = resolved
		}
	}
	d.t, d.err = godartsass.Start(godartsass.Options{DartSassEmbeddedFilename: bin})
	if d.err != nil {
		d.err = fmt.Errorf("start dart-sass %q: %w", d.Binary, d.err)
	}
	return d.t, d.err
}

func (d *DartSass) Compile(req SassRequest) (SassResult, error) {
	t, err := d.transpiler()
	if err != nil {
		return SassResult{}, &toolError{err: err}
	}
	args := godartsass.Args{
		Source:          req.Source,
		URL:             (&url.URL{Scheme: "file", Path: filepath.ToSlash(req.Path)}).String(),
		OutputStyle:     godartsass.OutputStyleExpanded,
		SourceSyntax:    godartsass.SourceSyntaxSCSS,
		IncludePaths:    req.IncludePaths,
		EnableSourceMap: req.SourceMap,
	}
	if req.Compressed {
		args.OutputStyle = godartsass.OutputStyleCompressed
	}
	if req.Indented {
		args.SourceSyntax = godartsass.SourceSyntaxSASS
	}
	res, err := t.Execute(args)
	if err != nil {
		return SassResult{}, err
	}
	return SassResult{CSS: res.CSS, SourceMap: res.SourceMap}, nil
}

// Close stops the dart-sass process if it was started.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return nil
	}
	err := d.t.Close()
	d.t = nil
	return err
}

// toolError marks a failure of the compiler itself rather than of the input.
type toolError struct{ err error }

func (e *toolError) Error() string { return e.err.Error() }
func (e *toolError) Unwrap() error { return e.err }

// Sass compiles .scss and .sass files; plain .css passes through untouched.
type Sass struct {
	Compiler     SassCompiler
	Root         string // absolute styles directory, always on the include path
	IncludePaths []string
	Compressed   bool
	SourceMaps   bool
}

func (*Sass) Name() string { return "sass" }

func (s *Sass) Process(_ context.Context, f *pipeline.File) error {
	ext := f.Ext()
	if ext != ".scss" && ext != ".sass" {
		return nil
	}
	res, err := s.Compiler.Compile(SassRequest{
		Source:       string(f.Data),
		Path:         f.SrcPath,
		Indented:     ext == ".sass",
		IncludePaths: append([]string{filepath.Dir(f.SrcPath), s.Root}, s.IncludePaths...),
		Compressed:   s.Compressed,
		SourceMap:    s.SourceMaps,
	})
	if err != nil {
		if te, ok := err.(*toolError); ok {
			return processingErr(f, te.err, "sass compiler unavailable")
		}
		return sourceErr(f, 0, 0, "%v", err)
	}
	f.Data = []byte(res.CSS)
	f.SetExt(".css")
	if res.SourceMap != "" {
		f.Meta["sourcemap"] = res.SourceMap
	}
	return nil
}
