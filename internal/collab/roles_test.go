package collab

import (
	"errors"
	"testing"

	"codecollab/api/internal/rbac"
)

func TestDeriveRoleDefaultRoom(t *testing.T) {
	role, err := DeriveRole(Identity{UserID: "u1", Email: "a@example.com"}, nil)
	if err != nil {
		t.Fatalf("DeriveRole() error = %v", err)
	}
	if role != rbac.RoleEditor {
		t.Fatalf("default room role = %s, want editor", role)
	}
}

func TestDeriveRoleOwnerMatch(t *testing.T) {
	session := &Session{ID: "s1", OwnerEmail: "Owner@Example.com"}
	role, err := DeriveRole(Identity{UserID: "u1", Email: "owner@example.com"}, session)
	if err != nil {
		t.Fatalf("DeriveRole() error = %v", err)
	}
	if role != rbac.RoleOwner {
		t.Fatalf("owner role = %s, want owner", role)
	}
}

func TestDeriveRoleFromInviteList(t *testing.T) {
	session := &Session{
		ID:         "s1",
		OwnerEmail: "owner@example.com",
		Invites: []Invite{
			{Email: "viewer@example.com", Role: "viewer"},
			{Email: "editor@example.com", Role: ""},
		},
	}

	role, err := DeriveRole(Identity{UserID: "u2", Email: "VIEWER@example.com "}, session)
	if err != nil {
		t.Fatalf("DeriveRole() error = %v", err)
	}
	if role != rbac.RoleViewer {
		t.Fatalf("invited role = %s, want viewer", role)
	}

	role, err = DeriveRole(Identity{UserID: "u3", Email: "editor@example.com"}, session)
	if err != nil {
		t.Fatalf("DeriveRole() error = %v", err)
	}
	if role != rbac.RoleEditor {
		t.Fatalf("invite with empty role = %s, want editor fallback", role)
	}
}

func TestDeriveRoleNotInvited(t *testing.T) {
	session := &Session{ID: "s1", OwnerEmail: "owner@example.com"}
	_, err := DeriveRole(Identity{UserID: "u2", Email: "stranger@example.com"}, session)
	if !errors.Is(err, ErrNotInvited) {
		t.Fatalf("DeriveRole() error = %v, want ErrNotInvited", err)
	}
}

func TestDeriveRoleEmptyEmailNeverOwns(t *testing.T) {
	// A session without an owner email must not grant ownership to a
	// requester who also has no email.
	session := &Session{ID: "s1", OwnerEmail: ""}
	_, err := DeriveRole(Identity{UserID: "u1", Email: ""}, session)
	if !errors.Is(err, ErrNotInvited) {
		t.Fatalf("DeriveRole() error = %v, want ErrNotInvited", err)
	}
}

func TestRoomCanonicalization(t *testing.T) {
	if !IsSessionRoom("session:abc") {
		t.Error("session:abc should be a session room")
	}
	if IsSessionRoom("global") {
		t.Error("global is not a session room")
	}
	if got := SessionKey("session: my-slug "); got != "my-slug" {
		t.Errorf("SessionKey() = %q, want %q", got, "my-slug")
	}
	if got := CanonicalRoom("65a1"); got != "session:65a1" {
		t.Errorf("CanonicalRoom() = %q", got)
	}
	if got := NormalizeRoom("  "); got != DefaultRoom {
		t.Errorf("NormalizeRoom(blank) = %q, want %q", got, DefaultRoom)
	}
	if got := NormalizeRoom("global"); got != "global" {
		t.Errorf("NormalizeRoom(global) = %q", got)
	}
}
