package types

import (
	"encoding/json"
	"testing"
)

func TestValidateToken(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in string
		ok bool
	}{
		{"t1", true}, {"eyJhbGciOi.x.y", true}, {"", false}, {"   ", false},
	}
	for _, c := range cases {
		err := ValidateToken(c.in)
		if c.ok && err != nil {
			t.Fatalf("expected ok for %q, got %v", c.in, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("expected error for %q", c.in)
		}
	}
}

func TestValidateUser(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   *User
		ok   bool
	}{
		{"minimal", &User{ID: "u1", Nickname: "Ann"}, true},
		{"full", &User{ID: "u1", UserID: "ann", Email: "ann@example.com", Nickname: "Ann", ProfileImage: "https://cdn.example.com/a.png"}, true},
		{"nil", nil, false},
		{"missing id", &User{Nickname: "Ann"}, false},
		{"bad email", &User{ID: "u1", Email: "not-an-email"}, false},
		{"bad image", &User{ID: "u1", ProfileImage: "not a url"}, false},
	}
	for _, c := range cases {
		err := ValidateUser(c.in)
		if c.ok && err != nil {
			t.Fatalf("%s: expected ok, got %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
}

func TestSession_AuthenticatedAndClone(t *testing.T) {
	t.Parallel()
	s := Session{Token: "t1", User: &User{ID: "u1"}, Status: StatusAuthenticated}
	if !s.Authenticated() {
		t.Fatalf("expected authenticated")
	}
	c := s.Clone()
	c.User.Nickname = "changed"
	if s.User.Nickname != "" {
		t.Fatalf("clone shares user with original")
	}
	if (Session{Status: StatusAuthenticated}).Authenticated() {
		t.Fatalf("status alone must not authenticate")
	}
}

func TestStatus_JSON(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(Session{Status: StatusAnonymous})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"status":"anonymous"}` {
		t.Fatalf("unexpected json: %s", b)
	}
}
