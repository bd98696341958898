package collab

import (
	"errors"

	"codecollab/api/internal/rbac"
)

// Identity is the authenticated requester as seen by role derivation.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// Invite is one entry of a session's invite list.
type Invite struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the read model of a collaborative session entity. The session
// service owns the records; this layer only consumes them for role lookup.
type Session struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Slug       string   `json:"slug"`
	OwnerID    string   `json:"ownerId"`
	OwnerEmail string   `json:"ownerEmail"`
	OwnerName  string   `json:"ownerName"`
	Invites    []Invite `json:"invites"`
}

// ErrNotInvited means the requester is neither the owner nor on the invite
// list of the session.
var ErrNotInvited = errors.New("not invited")

// DeriveRole resolves the role an identity holds in a room. A nil session
// means the room is not session-backed and grants the default editor role.
// For session rooms the owner email wins, then the invite list, then
// ErrNotInvited. Emails are normalized before comparison.
func DeriveRole(identity Identity, session *Session) (rbac.Role, error) {
	if session == nil {
		return rbac.RoleEditor, nil
	}

	email := NormalizeEmail(identity.Email)
	ownerEmail := NormalizeEmail(session.OwnerEmail)
	if email != "" && email == ownerEmail {
		return rbac.RoleOwner, nil
	}

	for _, invite := range session.Invites {
		if NormalizeEmail(invite.Email) == email && email != "" {
			if invite.Role == "" {
				return rbac.RoleEditor, nil
			}
			return rbac.Normalize(invite.Role), nil
		}
	}
	return "", ErrNotInvited
}
