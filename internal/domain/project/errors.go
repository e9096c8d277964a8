package project

import "errors"

var (
	// ErrProjectNotFound indicates the project does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectExists indicates a create with an ID that is already taken.
	ErrProjectExists = errors.New("project already exists")
	// ErrNotOwner indicates a change only the project owner may make.
	ErrNotOwner = errors.New("only the project owner may do this")
	// ErrInvalidInput indicates a rejected draft: empty title or a malformed
	// contributor address.
	ErrInvalidInput = errors.New("invalid project input")
)
