package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	code     ErrorCode
	message  string
	cause    error
	context  ErrorContext
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
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
	b := NewError(category, message)
	b.cause = err
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithRetry sets the retry strategy.
func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.retry = strategy
	return b
}

// WithCode sets the error code.
func (b *ErrorBuilder) WithCode(code ErrorCode) *ErrorBuilder {
	b.code = code
	return b
}

// WithCause sets the wrapped error.
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

// WithContext adds a context key-value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// WithContextMap adds multiple context values.
func (b *ErrorBuilder) WithContextMap(ctx ErrorContext) *ErrorBuilder {
	b.context = b.context.Merge(ctx)
	return b
}

// Fatal sets the severity to fatal.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Warning sets the severity to warning.
func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// Retryable sets the retry strategy to backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	return b.WithRetry(RetryBackoff)
}

// Rerun marks the error as recoverable by running the pipeline again.
func (b *ErrorBuilder) Rerun() *ErrorBuilder {
	return b.WithRetry(RetryRerun)
}

// UserAction sets the retry strategy to require user action.
func (b *ErrorBuilder) UserAction() *ErrorBuilder {
	return b.WithRetry(RetryUserAction)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		code:     b.code,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for common error patterns

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal().UserAction()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal().UserAction()
}

// NetworkError creates a network error (typically retryable).
func NetworkError(message string) *ErrorBuilder {
	return NewError(CategoryNetwork, message).Retryable()
}

// GitError creates a git operation error.
func GitError(message string) *ErrorBuilder {
	return NewError(CategoryGit, message).Retryable()
}

// BuildError creates a build step error.
func BuildError(message string) *ErrorBuilder {
	return NewError(CategoryBuild, message).Fatal()
}

// FileSystemError creates a filesystem error.
func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message).Retryable()
}

// RuntimeError creates a runtime error.
func RuntimeError(message string) *ErrorBuilder {
	return NewError(CategoryRuntime, message).Fatal()
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}

// Pipeline failure constructors. Each carries a stable ErrorCode.

// DownloadExhausted reports that every download attempt for url failed.
func DownloadExhausted(url string, attempts int, last error) *ClassifiedError {
	return WrapError(last, CategoryNetwork, "download failed after all attempts").
		WithCode(CodeDownloadExhausted).
		Fatal().
		Rerun().
		WithContext("url", url).
		WithContext("attempts", attempts).
		Build()
}

// ChecksumMismatch reports that the content of path does not hash to expected.
func ChecksumMismatch(path, algorithm, expected, actual string) *ClassifiedError {
	return NewError(CategoryIntegrity, "checksum mismatch").
		WithCode(CodeChecksumMismatch).
		Fatal().
		Rerun().
		WithContext("path", path).
		WithContext("algorithm", algorithm).
		WithContext("expected", expected).
		WithContext("actual", actual).
		Build()
}

// MergeFailed reports a failure while concatenating or unpacking split archive parts.
// half is "concatenate" or "unpack"; output holds captured diagnostic output.
func MergeFailed(half, output string, cause error) *ClassifiedError {
	b := WrapError(cause, CategoryArchive, "split archive merge failed").
		WithCode(CodeMergeFailed).
		Fatal().
		Rerun().
		WithContext("stage", half)
	if output != "" {
		b = b.WithContext("output", output)
	}
	return b.Build()
}

// ToolchainVerificationFailed reports that the assembled toolchain did not verify.
func ToolchainVerificationFailed(path string, cause error) *ClassifiedError {
	return WrapError(cause, CategoryToolchain, "toolchain verification failed").
		WithCode(CodeToolchainVerificationFailed).
		Fatal().
		Rerun().
		WithContext("path", path).
		Build()
}

// Configuration reports an invalid input discovered at runtime.
func Configuration(message string) *ErrorBuilder {
	return ConfigError(message).WithCode(CodeConfiguration)
}

// ArchitectureUnresolvable reports that no single host architecture could be chosen.
func ArchitectureUnresolvable(message string) *ErrorBuilder {
	return NewError(CategoryToolchain, message).
		WithCode(CodeArchitectureUnresolvable).
		Fatal().
		UserAction()
}

// StepFailed reports that a pipeline step returned an error.
func StepFailed(step string, cause error) *ClassifiedError {
	return WrapError(cause, CategoryBuild, "step failed").
		WithCode(CodeStepFailed).
		Fatal().
		WithContext("step", step).
		Build()
}

// Canceled reports that an operation stopped because its context was canceled or timed out.
func Canceled(operation string, cause error) *ClassifiedError {
	return WrapError(cause, CategoryCanceled, "operation canceled").
		WithCode(CodeCanceled).
		Fatal().
		Rerun().
		WithContext("operation", operation).
		Build()
}
