// Package errors classifies the failures an export run can encounter so that
// the orchestration layer can decide whether a failure ends a single period
// or the whole run.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the classification of an export failure.
type Kind int

const (
	// KindConfiguration is invalid or missing required input. No partial
	// work is attempted.
	KindConfiguration Kind = iota
	// KindSourceUnavailable is a connect/read timeout, TLS failure, refused
	// connection or an unusable response from the metering API.
	KindSourceUnavailable
	// KindEmptyResult is a well-formed but empty dataset for the requested
	// window.
	KindEmptyResult
	// KindJoinMiss is an allocation whose asset could not be found. It is
	// handled where it happens and never returned from a pipeline stage.
	KindJoinMiss
	// KindTypeCoercion is a value that cannot be converted to its column's
	// declared type, which indicates schema drift upstream.
	KindTypeCoercion
	// KindStoreWrite is a failure to write an artifact or register it. It is
	// fatal for that period only.
	KindStoreWrite
	// KindStoreRead is a failure to list the object store while looking for
	// gaps. No period can be planned without it, so the run ends.
	KindStoreRead
)

// String returns the name used for the kind in logs.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindSourceUnavailable:
		return "SourceUnavailable"
	case KindEmptyResult:
		return "EmptyResultError"
	case KindJoinMiss:
		return "JoinMissError"
	case KindTypeCoercion:
		return "TypeCoercionError"
	case KindStoreWrite:
		return "StoreWriteError"
	case KindStoreRead:
		return "StoreReadError"
	default:
		return "UnknownError"
	}
}

// Pipeline stages, used as the Stage of an Error and as a log field.
const (
	StagePlan      = "plan"
	StageDiscover  = "discover"
	StageFetch     = "fetch"
	StageJoin      = "join"
	StageNormalize = "normalize"
	StageWrite     = "write"
	StageRegister  = "register"
)

// Error wraps an underlying cause with its classification and the stage of
// the pipeline that produced it.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind. A nil err is replaced by a generic
// message so the result is always printable.
func New(kind Kind, stage string, err error) *Error {
	if err == nil {
		err = errors.New("unspecified error")
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, stage, format string, args ...interface{}) *Error {
	return New(kind, stage, fmt.Errorf(format, args...))
}

// Configuration returns a KindConfiguration error.
func Configuration(format string, args ...interface{}) *Error {
	return Newf(KindConfiguration, StagePlan, format, args...)
}

// SourceUnavailable returns a KindSourceUnavailable error.
func SourceUnavailable(stage string, err error) *Error {
	return New(KindSourceUnavailable, stage, err)
}

// EmptyResult returns a KindEmptyResult error.
func EmptyResult(stage, format string, args ...interface{}) *Error {
	return Newf(KindEmptyResult, stage, format, args...)
}

// TypeCoercion returns a KindTypeCoercion error.
func TypeCoercion(format string, args ...interface{}) *Error {
	return Newf(KindTypeCoercion, StageNormalize, format, args...)
}

// StoreWrite returns a KindStoreWrite error.
func StoreWrite(stage string, err error) *Error {
	return New(KindStoreWrite, stage, err)
}

// StoreRead returns a KindStoreRead error.
func StoreRead(stage string, err error) *Error {
	return New(KindStoreRead, stage, err)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// StageOf returns the stage of the first classified error in err's chain.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// AbortsRun reports whether err must end the whole run regardless of the
// per-period failure policy. Configuration errors, an unreachable source
// and an unreadable store will fail every remaining period the same way.
func AbortsRun(err error) bool {
	return Is(err, KindConfiguration) || Is(err, KindSourceUnavailable) || Is(err, KindStoreRead)
}
