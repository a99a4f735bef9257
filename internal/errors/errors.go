// Package errors provides the structured error taxonomy shared by every
// retrieval core component: extraction, embedding, the two indices, and
// the hybrid searcher all wrap failures in a Error so callers can branch
// on Kind without string matching.
package errors

import "fmt"

// Kind discriminates the error taxonomy fixed by the retrieval core
// contract: extraction, embedding, cross-store corruption, catalogue
// identity conflicts, degraded (non-fatal) queries, resource exhaustion,
// and the underlying persistence layer.
type Kind string

const (
	KindExtraction       Kind = "EXTRACTION"
	KindEmbedder         Kind = "EMBEDDER"
	KindIndexCorruption  Kind = "INDEX_CORRUPTION"
	KindCatalogueConflict Kind = "CATALOGUE_CONFLICT"
	KindQueryDegraded    Kind = "QUERY_DEGRADED"
	KindResourceExhausted Kind = "RESOURCE_EXHAUSTED"
	KindIO               Kind = "IO"
)

// Error is the structured error type returned by the core. It carries
// enough context to decide retry, fatality, and user-facing presentation
// without inspecting the message string.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Retryable bool
	Fatal     bool
	Details   map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by Kind so errors.Is(err, ExtractionError("", nil)) style checks work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key/value pair of diagnostic context and returns
// the receiver for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Retryable: kind == KindEmbedder,
		Fatal:     kind == KindIndexCorruption,
	}
}

// ExtractionError reports a malformed or encrypted PDF, or an unreadable page.
func ExtractionError(message string, cause error) *Error {
	return newErr(KindExtraction, message, cause)
}

// EmbedderError reports an embedding model failure or timeout. Retryable
// per spec §7 — the Driver retries once with backoff before failing the batch.
func EmbedderError(message string, cause error) *Error {
	return newErr(KindEmbedder, message, cause)
}

// IndexCorruption reports a cross-store inconsistency or a magic/version
// mismatch on load. Always fatal: it must surface to the operator unmodified.
func IndexCorruption(message string, cause error) *Error {
	return newErr(KindIndexCorruption, message, cause)
}

// CatalogueConflict reports a duplicate (path, page, chunk) identity.
func CatalogueConflict(message string, cause error) *Error {
	return newErr(KindCatalogueConflict, message, cause)
}

// QueryDegraded is informational, not fatal: one sub-retriever failed and
// the query proceeded on the other.
func QueryDegraded(message string) *Error {
	e := newErr(KindQueryDegraded, message, nil)
	e.Fatal = false
	return e
}

// ResourceExhausted reports a memory-ceiling or deadline trip that disables
// an optional stage rather than failing the request.
func ResourceExhausted(message string) *Error {
	return newErr(KindResourceExhausted, message, nil)
}

// IOError wraps a failure from the underlying persistence layer.
func IOError(message string, cause error) *Error {
	return newErr(KindIO, message, cause)
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if !As(err, &e) {
		return false
	}
	return e.Retryable
}

// IsFatal reports whether err is a fatal *Error (IndexCorruption).
func IsFatal(err error) bool {
	var e *Error
	if !As(err, &e) {
		return false
	}
	return e.Fatal
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if !As(err, &e) {
		return ""
	}
	return e.Kind
}

// As is a thin wrapper so this package doesn't need to import the
// standard errors package under the same name as itself.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
