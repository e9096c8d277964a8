package task

import "fmt"

// ValidateTransition checks a lane change. Any lane may move to any other
// lane; staying in place is not a transition.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, from)
	}
	if from == to {
		return ErrSameLane
	}
	return nil
}
