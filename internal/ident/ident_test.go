package ident_test

import (
	"strings"
	"testing"

	"github.com/Lack-Of-Name/CadNav/internal/ident"
)

// inAlphabet reports whether every rune of s (dashes aside) is drawn
// from the identifier alphabet.
func inAlphabet(s string) bool {
	for _, r := range s {
		if r == '-' {
			continue
		}
		if !strings.ContainsRune(ident.Alphabet, r) {
			return false
		}
	}
	return true
}

func TestAlphabetOmitsAmbiguousCharacters(t *testing.T) {
	t.Parallel()

	for _, forbidden := range "0O1IL" {
		if strings.ContainsRune(ident.Alphabet, forbidden) {
			t.Errorf("Alphabet contains ambiguous character %q", forbidden)
		}
	}

	if got := len(ident.Alphabet); got != 31 {
		t.Errorf("len(Alphabet) = %d, want 31", got)
	}
}

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		length  int
		wantLen int
	}{
		{"default length", 0, ident.DefaultCodeLength},
		{"negative falls back", -3, ident.DefaultCodeLength},
		{"explicit 6", 6, 6},
		{"explicit 8", 8, 8},
		{"length 1", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, err := ident.Code(tt.length)
			if err != nil {
				t.Fatalf("Code(%d) error: %v", tt.length, err)
			}
			if len(code) != tt.wantLen {
				t.Errorf("len(Code(%d)) = %d, want %d", tt.length, len(code), tt.wantLen)
			}
			if !inAlphabet(code) {
				t.Errorf("Code(%d) = %q, contains characters outside the alphabet", tt.length, code)
			}
		})
	}
}

func TestCodeRoundTripsUppercase(t *testing.T) {
	t.Parallel()

	for range 32 {
		code, err := ident.Code(6)
		if err != nil {
			t.Fatalf("Code(6) error: %v", err)
		}
		if code != strings.ToUpper(code) {
			t.Fatalf("Code(6) = %q, not uppercase", code)
		}
		if got := ident.Normalize(code); got != code {
			t.Fatalf("Normalize(%q) = %q, want unchanged", code, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "abc234", "ABC234"},
		{"mixed", "aBc234", "ABC234"},
		{"whitespace", "  ABC234  ", "ABC234"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ident.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHostID(t *testing.T) {
	t.Parallel()

	id, err := ident.HostID()
	if err != nil {
		t.Fatalf("HostID() error: %v", err)
	}
	if len(id) != 3 {
		t.Errorf("len(HostID()) = %d, want 3", len(id))
	}
	if !inAlphabet(id) {
		t.Errorf("HostID() = %q, contains characters outside the alphabet", id)
	}
}

func TestClientID(t *testing.T) {
	t.Parallel()

	id, err := ident.ClientID()
	if err != nil {
		t.Fatalf("ClientID() error: %v", err)
	}
	// 3-character label, dash, 2-character suffix.
	if len(id) != 6 {
		t.Errorf("len(ClientID()) = %d, want 6", len(id))
	}
	if id[3] != '-' {
		t.Errorf("ClientID() = %q, want a dash separator at index 3", id)
	}
	if !inAlphabet(id) {
		t.Errorf("ClientID() = %q, contains characters outside the alphabet", id)
	}
}

func TestClientIDNeverCollidesWithHostID(t *testing.T) {
	t.Parallel()

	// Host ids are 3 characters, client ids 6; no overlap is possible.
	host, err := ident.HostID()
	if err != nil {
		t.Fatalf("HostID() error: %v", err)
	}
	client, err := ident.ClientID()
	if err != nil {
		t.Fatalf("ClientID() error: %v", err)
	}
	if len(host) == len(client) {
		t.Errorf("host id %q and client id %q have the same length", host, client)
	}
}

func TestResumeToken(t *testing.T) {
	t.Parallel()

	token, err := ident.ResumeToken()
	if err != nil {
		t.Fatalf("ResumeToken() error: %v", err)
	}
	if len(token) != 48 {
		t.Errorf("len(ResumeToken()) = %d, want 48", len(token))
	}
	for _, r := range token {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("ResumeToken() = %q, contains non-hex character %q", token, r)
			break
		}
	}
}

func TestResumeTokensDiffer(t *testing.T) {
	t.Parallel()

	a, err := ident.ResumeToken()
	if err != nil {
		t.Fatalf("ResumeToken() error: %v", err)
	}
	b, err := ident.ResumeToken()
	if err != nil {
		t.Fatalf("ResumeToken() error: %v", err)
	}
	if a == b {
		t.Errorf("two resume tokens are identical: %q", a)
	}
}
