// Package errors provides the classified error primitives used across crossbuild.
//
// Every fatal condition the pipeline can hit is reported as a ClassifiedError carrying a
// broad category, a severity, a retry strategy, a stable error code and structured context
// (file names, digests, captured subprocess output). The code is what callers branch on;
// the context is what an operator needs to diagnose a failure without re-running.
//
// Key features:
//   - ErrorCategory: broad classification (config, network, integrity, archive, ...)
//   - ErrorCode: stable identifier for each failure mode (download_exhausted, ...)
//   - ErrorSeverity / RetryStrategy: impact and recovery hints
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: exit codes and presentation for the command line
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryNetwork, "download failed").
//		WithCode(errors.CodeDownloadExhausted).
//		WithContext("url", url).
//		WithCause(lastErr).
//		Build()
package errors
