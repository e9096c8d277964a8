package task

import "errors"

var (
	// ErrTaskNotFound indicates the task doesn't exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidStatus indicates a status outside the three lanes.
	ErrInvalidStatus = errors.New("invalid task status")
	// ErrSameLane indicates a transition into the lane the task is already in.
	ErrSameLane = errors.New("task already in lane")
	// ErrInvalidInput indicates invalid task input.
	ErrInvalidInput = errors.New("invalid task input")
)
