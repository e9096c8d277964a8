package mcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rpggio/lanes/internal/app"
	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/domain/project"
	"github.com/rpggio/lanes/internal/domain/task"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/navigation"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes. Unknown errors map to nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		return &APIError{
			Code:         "AUTH_" + constantCase(string(authErr.Code)),
			Message:      authErr.Error(),
			RecoveryHint: authHint(authErr.Code),
		}
	}

	switch {
	case errors.Is(err, app.ErrNotSignedIn):
		return &APIError{Code: "NOT_SIGNED_IN", Message: "not signed in", RecoveryHint: "Call sign_in or begin_email_link first"}
	case errors.Is(err, project.ErrProjectNotFound):
		return &APIError{Code: "PROJECT_NOT_FOUND", Message: "project not found", RecoveryHint: "Check the id with list_projects"}
	case errors.Is(err, project.ErrNotOwner):
		return &APIError{Code: "NOT_OWNER", Message: err.Error(), RecoveryHint: "Ask the project owner to make this change"}
	case errors.Is(err, project.ErrProjectExists):
		return &APIError{Code: "PROJECT_EXISTS", Message: err.Error()}
	case errors.Is(err, project.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, task.ErrTaskNotFound):
		return &APIError{Code: "TASK_NOT_FOUND", Message: "task not found", RecoveryHint: "Check the id with get_board"}
	case errors.Is(err, task.ErrInvalidStatus):
		return &APIError{Code: "INVALID_STATUS", Message: err.Error(), RecoveryHint: "Use backlog, in-progress or done"}
	case errors.Is(err, task.ErrSameLane):
		return &APIError{Code: "SAME_LANE", Message: "task is already in that lane"}
	case errors.Is(err, task.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, navigation.ErrRedirectLoop):
		return &APIError{Code: "REDIRECT_LOOP", Message: err.Error()}
	}

	var storeErr *docstore.StoreError
	if errors.As(err, &storeErr) {
		return &APIError{
			Code:    "STORE_" + constantCase(string(storeErr.Code)),
			Message: storeErr.Error(),
		}
	}
	return nil
}

// toolError returns the mapped error when there is one.
func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}

func authHint(code identity.AuthCode) string {
	switch code {
	case identity.CodeExpiredLink, identity.CodeInvalidLink:
		return "Request a new link with begin_email_link"
	case identity.CodeQuotaExceeded:
		return "Wait before requesting another link"
	case identity.CodeInvalidEmail:
		return "Pass the address the link was sent to"
	default:
		return ""
	}
}

func constantCase(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
}
