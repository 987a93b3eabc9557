// Package errors provides the classified error primitives used across sitepipe.
//
// A ClassifiedError carries a category (config, source, filesystem, server,
// ...), a severity and a retry hint next to the usual message and cause. The
// category decides how a failure is presented: per-file source errors are
// surfaced to the developer and skipped, startup errors end the process with a
// category-specific exit code.
//
// Example:
//
//	err := errors.WrapError(sassErr, errors.CategorySource, "stylesheet failed to compile").
//		WithContext("path", "styles/main.scss").
//		Build()
package errors
