package pipeline

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

// ErrDrop may be returned by a stage to discard a file without writing
// output and without counting it as a failure.
var ErrDrop = errors.New("drop file")

// File is the unit flowing through a stage chain.
type File struct {
	Rel     string // source path relative to the source root, slash separated
	SrcPath string // absolute source path
	ModTime time.Time
	Data    []byte
	OutRel  string // output path relative to the task's destination directory
	Extras  []Output
	Meta    map[string]any
}

// Output is an additional file written next to the main output, such as a
// source map.
type Output struct {
	Rel  string
	Data []byte
}

// SetExt replaces the extension of OutRel.
func (f *File) SetExt(ext string) {
	f.OutRel = strings.TrimSuffix(f.OutRel, path.Ext(f.OutRel)) + ext
}

// Ext returns the lower-cased source extension including the dot.
func (f *File) Ext() string { return strings.ToLower(path.Ext(f.Rel)) }

// Stage transforms a file in place.
type Stage interface {
	Name() string
	Process(ctx context.Context, f *File) error
}

// StageFunc adapts a function into a Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, f *File) error
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Process(ctx context.Context, f *File) error { return s.Fn(ctx, f) }
