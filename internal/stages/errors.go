package stages

import (
	"fmt"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

// sourceErr reports a syntax or semantic problem in the developer's file.
// line and col are 1-based; zero means unknown.
func sourceErr(f *pipeline.File, line, col int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	loc := f.Rel
	if line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, line)
		if col > 0 {
			loc = fmt.Sprintf("%s:%d", loc, col)
		}
	}
	b := ferrors.SourceError(loc + ": " + msg).WithContext("path", f.Rel)
	if line > 0 {
		b = b.WithContext("line", line)
	}
	return b.Build()
}

// processingErr reports a failure of a codec or compiler rather than the input.
func processingErr(f *pipeline.File, err error, message string) error {
	return ferrors.WrapError(err, ferrors.CategoryProcessing, f.Rel+": "+message).
		WithContext("path", f.Rel).
		Build()
}
