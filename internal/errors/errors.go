// Package errors provides component- and category-tagged errors with optional
// Sentry telemetry. It re-exports the stdlib matching helpers so callers only
// import one errors package.
package errors

import (
	stderrors "errors"
	"fmt"
	"sync/atomic"

	sentry "github.com/getsentry/sentry-go"
)

// Category classifies an error for telemetry and log filtering.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNetwork    Category = "network"
	CategoryStore      Category = "store"
	CategoryDecode     Category = "decode"
	CategoryLifecycle  Category = "lifecycle"
	CategoryGeneric    Category = "generic"
)

// telemetryEnabled gates Sentry capture. Off unless InitTelemetry succeeds.
var telemetryEnabled atomic.Bool

// InitTelemetry configures Sentry capture for built errors. The DSN may be
// empty, in which case telemetry stays disabled and no error is returned.
func InitTelemetry(dsn, release string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: release}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	telemetryEnabled.Store(true)
	return nil
}

// EnhancedError carries a wrapped error together with the component that
// produced it and a coarse category.
type EnhancedError struct {
	Err       error
	Component string
	Cat       Category
	Context   map[string]any
}

func (e *EnhancedError) Error() string {
	if e.Component == "" {
		return e.Err.Error()
	}
	return e.Component + ": " + e.Err.Error()
}

func (e *EnhancedError) Unwrap() error { return e.Err }

// Builder assembles an EnhancedError fluently.
type Builder struct {
	e *EnhancedError
}

// New starts building an enhanced error around err.
func New(err error) *Builder {
	return &Builder{e: &EnhancedError{Err: err, Cat: CategoryGeneric}}
}

// Newf starts building an enhanced error from a format string.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component records the subsystem that produced the error.
func (b *Builder) Component(name string) *Builder {
	b.e.Component = name
	return b
}

// Category records the error category.
func (b *Builder) Category(cat Category) *Builder {
	b.e.Cat = cat
	return b
}

// Context attaches a key/value pair for telemetry.
func (b *Builder) Context(key string, value any) *Builder {
	if b.e.Context == nil {
		b.e.Context = make(map[string]any)
	}
	b.e.Context[key] = value
	return b
}

// Build finalizes the error and reports it to Sentry when telemetry is on.
// Validation errors are never reported; they are expected operator input
// problems, not defects.
func (b *Builder) Build() error {
	if telemetryEnabled.Load() && b.e.Cat != CategoryValidation {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", b.e.Component)
			scope.SetTag("category", string(b.e.Cat))
			for k, v := range b.e.Context {
				scope.SetExtra(k, v)
			}
			sentry.CaptureException(b.e.Err)
		})
	}
	return b.e
}

// NewStd returns a plain sentinel error, for package-level Err* values.
func NewStd(text string) error { return stderrors.New(text) }

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain matching target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join wraps stdlib errors.Join.
func Join(errs ...error) error { return stderrors.Join(errs...) }
