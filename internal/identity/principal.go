// Package identity tracks who is signed in and implements the sign-in flows.
package identity

import (
	"strings"

	"github.com/google/uuid"
)

// Principal is an authenticated user.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// State is the identity state. Until Resolved is set the session is unknown;
// after that a nil Principal means signed out.
type State struct {
	Resolved  bool
	Principal *Principal
}

// Unknown is the state before persisted auth has been checked.
func Unknown() State { return State{} }

// SignedOut is the resolved, anonymous state.
func SignedOut() State { return State{Resolved: true} }

// SignedIn is the resolved state for p.
func SignedIn(p Principal) State { return State{Resolved: true, Principal: &p} }

// SignedIn reports whether the state holds a principal.
func (s State) SignedIn() bool {
	return s.Resolved && s.Principal != nil
}

// PrincipalID returns the principal id, or "" when nobody is signed in.
func (s State) PrincipalID() string {
	if s.Principal == nil {
		return ""
	}
	return s.Principal.ID
}

func (s State) String() string {
	switch {
	case !s.Resolved:
		return "unknown"
	case s.Principal == nil:
		return "signed-out"
	default:
		return "signed-in:" + s.Principal.ID
	}
}

// emailNamespace scopes principal ids derived from email addresses.
var emailNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("lanes:principal:email"))

// PrincipalIDForEmail returns the stable principal id of an email-link user.
func PrincipalIDForEmail(email string) string {
	return uuid.NewSHA1(emailNamespace, []byte(strings.ToLower(strings.TrimSpace(email)))).String()
}
