package sandbox

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a transformation unit did not produce a value.
type FailureKind string

const (
	// CompileFailure means the unit does not compile or its default export is
	// not callable. It is detected once per compiled text and cached.
	CompileFailure FailureKind = "compile"
	// RuntimeFailure means the function threw or returned a value that does
	// not serialize to JSON.
	RuntimeFailure FailureKind = "runtime"
	// TimeoutFailure means the run exceeded its budget or was cancelled.
	TimeoutFailure FailureKind = "timeout"
)

// Failure is the error every unsuccessful Run returns.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func compileFailure(format string, args ...any) *Failure {
	return &Failure{Kind: CompileFailure, Message: fmt.Sprintf(format, args...)}
}

func runtimeFailure(err error, format string, args ...any) *Failure {
	return &Failure{Kind: RuntimeFailure, Message: fmt.Sprintf(format, args...), Err: err}
}
