package user

import "testing"

func TestValidID(t *testing.T) {
	cases := map[string]bool{
		"abc-123":            true,
		"Gx8uZq2Lr0dPfd3gH1": true,
		"":                   false,
		"has_underscore":     false,
		"space here":         false,
	}
	for id, want := range cases {
		if got := ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleUser.Valid() || !RoleAdmin.Valid() {
		t.Fatal("expected builtin roles to be valid")
	}
	if Role("model").Valid() {
		t.Fatal("expected unknown role to be invalid")
	}
}
