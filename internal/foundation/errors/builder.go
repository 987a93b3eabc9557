package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

func newError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := newError(category, message)
	b.cause = err
	return b
}

func (b *ErrorBuilder) withSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

func (b *ErrorBuilder) withRetry(strategy RetryStrategy) *ErrorBuilder {
	b.retry = strategy
	return b
}

func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder   { return b.withSeverity(SeverityFatal) }
func (b *ErrorBuilder) Warning() *ErrorBuilder { return b.withSeverity(SeverityWarning) }

// Retryable marks a transient failure that may succeed after a backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	return b.withRetry(RetryBackoff)
}

// UserAction marks the error as fixable only by editing the input.
func (b *ErrorBuilder) UserAction() *ErrorBuilder {
	return b.withRetry(RetryUserAction)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for common error patterns

func ConfigError(message string) *ErrorBuilder {
	return newError(CategoryConfig, message).Fatal().UserAction()
}

func ValidationError(message string) *ErrorBuilder {
	return newError(CategoryValidation, message).Fatal()
}

// SourceError is a malformed input file. It fails only that file.
func SourceError(message string) *ErrorBuilder {
	return newError(CategorySource, message).UserAction()
}

func ProcessingError(message string) *ErrorBuilder {
	return newError(CategoryProcessing, message)
}

func WatchError(message string) *ErrorBuilder {
	return newError(CategoryWatch, message).Fatal()
}

func RuntimeError(message string) *ErrorBuilder {
	return newError(CategoryRuntime, message).Fatal()
}

func InternalError(message string) *ErrorBuilder {
	return newError(CategoryInternal, message).Fatal()
}
