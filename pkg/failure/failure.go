// Package failure classifies the errors a retrieval request can surface to
// its consumer.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the classification of a retrieval failure.
type Kind int

const (
	// KindUnknown is reported by KindOf for errors that were never classified.
	KindUnknown Kind = iota

	// KindNotFound means the volume or one of its columns is absent. Never retried.
	KindNotFound

	// KindPolicyViolation means the request exceeds a configured limit.
	KindPolicyViolation

	// KindRepositoryFailure means the backend could not serve the request
	// after retries were exhausted.
	KindRepositoryFailure
)

// Sentinels matched by errors.Is against a classified *Error.
var (
	ErrNotFound          = errors.New("not found")
	ErrPolicyViolation   = errors.New("policy violation")
	ErrRepositoryFailure = errors.New("repository failure")
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPolicyViolation:
		return "policy_violation"
	case KindRepositoryFailure:
		return "repository_failure"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindPolicyViolation:
		return ErrPolicyViolation
	case KindRepositoryFailure:
		return ErrRepositoryFailure
	default:
		return nil
	}
}

// Error is a classified failure carrying the offending token (a volume ID,
// page sequence or metadata name) and the underlying cause.
type Error struct {
	Kind  Kind
	Token string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.sentinel(), e.Token, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.sentinel(), e.Token)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NotFound classifies err as a missing volume or column.
func NotFound(token string, err error) *Error {
	return &Error{Kind: KindNotFound, Token: token, Err: err}
}

// PolicyViolation classifies err as a request exceeding a limit.
func PolicyViolation(token string, err error) *Error {
	return &Error{Kind: KindPolicyViolation, Token: token, Err: err}
}

// RepositoryFailure classifies err as an unrecoverable backend failure.
func RepositoryFailure(token string, err error) *Error {
	return &Error{Kind: KindRepositoryFailure, Token: token, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// As returns the classified error in err's chain. Unclassified errors are
// reported as repository failures against token.
func As(err error, token string) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return RepositoryFailure(token, err)
}

// StatusCode maps a failure to the client-error status returned when it is
// raised before any response body was written.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindPolicyViolation:
		return http.StatusBadRequest
	case KindRepositoryFailure:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}
