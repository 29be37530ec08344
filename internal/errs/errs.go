// Package errs defines the error taxonomy shared by the index, search and
// reindex layers. Every error produced by those layers can be classified
// with errors.Is against one of the sentinels below.
package errs

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput marks empty or degenerate input rejected before any I/O.
	ErrInvalidInput = stderrors.New("invalid input")
	// ErrProviderUnavailable marks an embedding provider failure (auth, rate limit, network).
	ErrProviderUnavailable = stderrors.New("embedding provider unavailable")
	// ErrStore marks a query or connection failure against the backing store.
	ErrStore = stderrors.New("store error")
	// ErrEnrichmentUnavailable marks a document extraction failure or an empty extraction.
	ErrEnrichmentUnavailable = stderrors.New("enrichment unavailable")
)

type kindError struct {
	kind  error
	cause error
	msg   string
}

func (e *kindError) Error() string {
	switch {
	case e.cause != nil && e.msg != "":
		return e.msg + ": " + e.cause.Error()
	case e.cause != nil:
		return e.kind.Error() + ": " + e.cause.Error()
	case e.msg != "":
		return e.kind.Error() + ": " + e.msg
	default:
		return e.kind.Error()
	}
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

func wrap(kind, cause error, msg string) error {
	return errors.WithStack(&kindError{kind: kind, cause: cause, msg: msg})
}

// InvalidInput returns an ErrInvalidInput error with a formatted reason.
func InvalidInput(format string, args ...any) error {
	return wrap(ErrInvalidInput, nil, fmt.Sprintf(format, args...))
}

// ProviderUnavailable tags cause as an embedding provider failure.
func ProviderUnavailable(cause error, msg string) error {
	if cause == nil {
		return wrap(ErrProviderUnavailable, nil, msg)
	}
	if stderrors.Is(cause, ErrProviderUnavailable) {
		return errors.WithMessage(cause, msg)
	}
	return wrap(ErrProviderUnavailable, cause, msg)
}

// Store tags cause as a backing store failure. A nil cause yields nil.
func Store(cause error, msg string) error {
	if cause == nil {
		return nil
	}
	if stderrors.Is(cause, ErrStore) {
		return errors.WithMessage(cause, msg)
	}
	return wrap(ErrStore, cause, msg)
}

// EnrichmentUnavailable tags cause as a failed or empty document extraction.
func EnrichmentUnavailable(cause error, msg string) error {
	return wrap(ErrEnrichmentUnavailable, cause, msg)
}

// Kind returns a short, metric-friendly label for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case stderrors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case stderrors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case stderrors.Is(err, ErrStore):
		return "store"
	case stderrors.Is(err, ErrEnrichmentUnavailable):
		return "enrichment_unavailable"
	default:
		return "internal"
	}
}
