package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestPublicBodyMatchesAddress(t *testing.T) {
	pb := NewPublicBody("Department of Testing", "info@testing.example.org", uuid.New(), uuid.New())
	pb.OtherEmails = []string{"foi@other.example.net"}

	cases := []struct {
		addr string
		want bool
	}{
		{"info@testing.example.org", true},
		{"INFO@testing.example.org", true},
		{"foi@testing.example.org", true}, // same domain
		{"foi@other.example.net", true},   // listed contact
		{"someone@elsewhere.example.com", false},
		{"", false},
		{"not-an-address", false},
	}
	for _, c := range cases {
		if got := pb.MatchesAddress(c.addr); got != c.want {
			t.Errorf("MatchesAddress(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Test Subject", "test-subject"},
		{"Ümläute & Euros €", "umlaute-euros"},
		{"  spaced   out  ", "spaced-out"},
		{"already-slugged", "already-slugged"},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestUserFullName(t *testing.T) {
	u := NewUser("sw@example.com", "Stefan", "Wehrmeyer")
	if u.FullName() != "Stefan Wehrmeyer" {
		t.Errorf("unexpected full name %q", u.FullName())
	}
	if u.IsStaff() {
		t.Error("new users are not staff")
	}
	if u.Active {
		t.Error("new users start unconfirmed")
	}
}
