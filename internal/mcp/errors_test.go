package mcp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rpggio/lanes/internal/app"
	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/domain/project"
	"github.com/rpggio/lanes/internal/domain/task"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"not signed in", app.ErrNotSignedIn, "NOT_SIGNED_IN"},
		{"project missing", fmt.Errorf("getting: %w", project.ErrProjectNotFound), "PROJECT_NOT_FOUND"},
		{"not owner", fmt.Errorf("%w: p1", project.ErrNotOwner), "NOT_OWNER"},
		{"task missing", task.ErrTaskNotFound, "TASK_NOT_FOUND"},
		{"bad lane", task.ErrInvalidStatus, "INVALID_STATUS"},
		{"auth", &identity.AuthError{Code: identity.CodeExpiredLink, Err: errors.New("expired")}, "AUTH_EXPIRED_LINK"},
		{"store", &docstore.StoreError{Op: "write", Path: "projects/p1", Code: docstore.CodePermissionDenied, Err: docstore.ErrPermissionDenied}, "STORE_PERMISSION_DENIED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := MapError(tt.err)
			require.NotNil(t, apiErr)
			require.Equal(t, tt.code, apiErr.Code)
		})
	}

	require.Nil(t, MapError(nil))
	require.Nil(t, MapError(errors.New("boom")))
}
