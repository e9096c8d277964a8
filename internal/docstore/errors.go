package docstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a partial update targets an absent document.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when a create targets an existing document.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrPermissionDenied is returned when the backend rejects an operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidPath is returned for malformed collection paths or document ids.
	ErrInvalidPath = errors.New("invalid path")
	// ErrInvalidQuery is returned for queries the store cannot evaluate.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// Code classifies a StoreError.
type Code string

const (
	CodeInvalidArgument  Code = "invalid-argument"
	CodeNotFound         Code = "not-found"
	CodeAlreadyExists    Code = "already-exists"
	CodePermissionDenied Code = "permission-denied"
	CodeUnavailable      Code = "unavailable"
	CodeCanceled         Code = "canceled"
	CodeInternal         Code = "internal"
)

// StoreError reports a rejected read or write.
type StoreError struct {
	Op   string
	Path string
	Code Code
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Code, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Path: path, Code: codeOf(err), Err: err}
}

func codeOf(err error) Code {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrInvalidQuery):
		return CodeInvalidArgument
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
