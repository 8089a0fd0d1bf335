package store

import (
	"context"
	"testing"

	"github.com/erazemk/zavod/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, f.db, f.instA.ID, "testuser", "hash123", model.RoleStaff)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if user.Role != model.RoleStaff || user.InstituteID != f.instA.ID {
		t.Errorf("unexpected user: %+v", user)
	}

	got, err := GetInstituteUser(ctx, f.db, f.instA.ID, user.ID)
	if err != nil {
		t.Fatalf("GetInstituteUser: %v", err)
	}
	if got == nil || got.Username != "testuser" {
		t.Fatalf("expected testuser, got %+v", got)
	}

	other, err := GetInstituteUser(ctx, f.db, f.instB.ID, user.ID)
	if err != nil {
		t.Fatalf("GetInstituteUser: %v", err)
	}
	if other != nil {
		t.Error("expected user to be invisible to another institute")
	}
}

func TestGetUserByUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := GetUserByUsername(ctx, f.db, "admin-a")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.InstituteID != f.instA.ID {
		t.Errorf("expected institute %d, got %d", f.instA.ID, user.InstituteID)
	}

	missing, err := GetUserByUsername(ctx, f.db, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	users, pg, err := ListUsers(ctx, f.db, f.instA.ID, "", model.Page{})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 3 || pg.Total != 3 {
		t.Errorf("expected 3 users in institute A, got %d (total %d)", len(users), pg.Total)
	}
	for _, u := range users {
		if u.InstituteID != f.instA.ID {
			t.Errorf("user %q leaked from institute %d", u.Username, u.InstituteID)
		}
	}

	users, _, err = ListUsers(ctx, f.db, f.instA.ID, "vice", model.Page{})
	if err != nil {
		t.Fatalf("ListUsers search: %v", err)
	}
	if len(users) != 1 || users[0].Username != "vice-a" {
		t.Errorf("expected only vice-a, got %+v", users)
	}
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := DeleteUser(ctx, f.db, f.instA.ID, f.staffA.UserID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	users, _, _ := ListUsers(ctx, f.db, f.instA.ID, "", model.Page{})
	if len(users) != 2 {
		t.Errorf("expected 2 users after delete, got %d", len(users))
	}

	u, _ := GetUserByUsername(ctx, f.db, "staff-a")
	if u != nil {
		t.Error("deleted user should not be found by username")
	}
}

func TestUpdateUserPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := UpdateUserPassword(ctx, f.db, f.staffA.UserID, "newhash"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}

	got, _ := GetUser(ctx, f.db, f.staffA.UserID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}
