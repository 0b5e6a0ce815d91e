package snapshot

import (
	"context"
	"errors"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind defines snapshot error kinds.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindBusy         ErrorKind = "busy"
	KindResourceLoad ErrorKind = "resource_load"
	KindCapture      ErrorKind = "capture"
	KindComposition  ErrorKind = "composition"
	KindPackaging    ErrorKind = "packaging"
	KindTimeout      ErrorKind = "timeout"
	KindCanceled     ErrorKind = "canceled"
	KindInternal     ErrorKind = "internal"
	KindNotImpl      ErrorKind = "not_implemented"
)

// Error wraps errors with a kind.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new snapshot error.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Fatal reports whether an error of this kind aborts a job.
func (k ErrorKind) Fatal() bool {
	return k != KindResourceLoad && k != ""
}

// AsGoError maps an error into a go-errors error.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	kind := KindInternal
	msg := err.Error()

	var snapErr *Error
	if errors.As(err, &snapErr) {
		kind = snapErr.Kind
		if snapErr.Msg != "" {
			msg = snapErr.Msg
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		kind = KindCanceled
	}

	switch kind {
	case KindValidation:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("validation")
	case KindNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode("not_found")
	case KindBusy:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("busy")
	case KindTimeout:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("timeout")
	case KindCanceled:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("canceled")
	case KindNotImpl:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("not_implemented")
	case KindCapture:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode("capture")
	case KindComposition:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode("composition")
	case KindPackaging:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode("packaging")
	default:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode("internal")
	}
}

// KindFromError maps an error to its snapshot error kind.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var snapErr *Error
	if errors.As(err, &snapErr) {
		return snapErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		switch ErrorKind(ge.TextCode) {
		case KindValidation, KindNotFound, KindBusy, KindResourceLoad, KindCapture,
			KindComposition, KindPackaging, KindTimeout, KindCanceled, KindNotImpl:
			return ErrorKind(ge.TextCode)
		}
	}

	return KindInternal
}

// UserMessage returns the end-user text for a failed export. Raw error detail
// never leaves this function.
func UserMessage(err error) string {
	switch KindFromError(err) {
	case "":
		return ""
	case KindBusy:
		return "An export is already in progress. Please wait for it to finish."
	case KindValidation, KindNotFound:
		return "This export format is not available. Please choose another format."
	case KindTimeout, KindCanceled:
		return "The export took too long and was stopped. Please try again."
	default:
		return "Export failed. Please try again."
	}
}
