package sqlite

import (
	"fmt"
	"strings"

	"github.com/rpggio/lanes/internal/docstore"
)

func isReadOnly(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "readonly database")
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// mapError translates driver failures into docstore sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case isReadOnly(err):
		return fmt.Errorf("%w: %v", docstore.ErrPermissionDenied, err)
	case isBusy(err):
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	default:
		return err
	}
}
