package shopauth

import (
	"testing"
	"time"
)

func TestRolePolicies(t *testing.T) {
	admin := &Principal{Roles: []string{"admin"}}
	manager := &Principal{Roles: []string{RoleManager}}
	user := &Principal{Roles: []string{RoleUser}}
	now := time.Now()

	tests := []struct {
		policy Policy
		p      *Principal
		want   bool
	}{
		{RequireAdminRole, admin, true},
		{RequireAdminRole, manager, false},
		{RequireManagerRole, manager, true},
		{RequireModeratorRole, user, false},
		{AdminOrManager, admin, true},
		{AdminOrManager, manager, true},
		{AdminOrManager, user, false},
		{RequireAdminRole, nil, false},
	}
	for _, tt := range tests {
		if got := tt.policy.Allows(tt.p, now); got != tt.want {
			t.Errorf("%s(%v) = %v, want %v", tt.policy.Name, tt.p, got, tt.want)
		}
	}
}

func TestVerifiedUser(t *testing.T) {
	now := time.Now()
	if VerifiedUser.Allows(&Principal{}, now) {
		t.Fatal("unconfirmed principal allowed")
	}
	if !VerifiedUser.Allows(&Principal{EmailConfirmed: true}, now) {
		t.Fatal("confirmed principal denied")
	}
}

func TestMinimumAge18(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	dob := func(y int, m time.Month, d int) *Principal {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &Principal{DateOfBirth: &t}
	}

	tests := []struct {
		name string
		p    *Principal
		want bool
	}{
		{"birthday today", dob(2008, 6, 15), true},
		{"birthday tomorrow", dob(2008, 6, 16), false},
		{"well over", dob(1980, 1, 1), true},
		{"no date of birth", &Principal{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinimumAge18.Allows(tt.p, now); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
