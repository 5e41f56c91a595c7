// Package ident mints the short identifiers used by the relay: session
// codes, participant identifiers, and host resume tokens.
//
// All identifiers are drawn from a restricted alphabet that omits the
// visually ambiguous characters 0/O, 1/I and L, so codes survive being
// read aloud over radio or copied from a screen. Resume tokens come from
// a cryptographically strong source; they are the only secret the relay
// hands out.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Alphabet is the identifier alphabet: digits 2-9 and the unambiguous
// uppercase letters (no 0/O, 1/I, L). 31 characters.
const Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const (
	// DefaultCodeLength is the default session code length.
	DefaultCodeLength = 6

	// labelLength is the base participant identifier length.
	labelLength = 3

	// suffixLength is the extra suffix length appended to client
	// participant identifiers. Host identifiers carry no suffix, so a
	// host identifier can never collide with a client identifier.
	suffixLength = 2

	// tokenBytes is the entropy of a resume token. 24 random bytes
	// hex-encode to the 48-character wire form.
	tokenBytes = 24
)

// Code mints a session code of the given length. Lengths below 1 fall
// back to DefaultCodeLength. Collision handling is the caller's job: on
// a collision with a live session, mint again.
func Code(length int) (string, error) {
	if length < 1 {
		length = DefaultCodeLength
	}
	s, err := randString(length)
	if err != nil {
		return "", fmt.Errorf("mint session code: %w", err)
	}
	return s, nil
}

// HostID mints a host participant identifier (3 characters).
func HostID() (string, error) {
	s, err := randString(labelLength)
	if err != nil {
		return "", fmt.Errorf("mint host id: %w", err)
	}
	return s, nil
}

// ClientID mints a client participant identifier: a 3-character label
// plus a 2-character suffix, e.g. "K7M-2F".
func ClientID() (string, error) {
	base, err := randString(labelLength)
	if err != nil {
		return "", fmt.Errorf("mint client id: %w", err)
	}
	suffix, err := randString(suffixLength)
	if err != nil {
		return "", fmt.Errorf("mint client id: %w", err)
	}
	return base + "-" + suffix, nil
}

// ResumeToken mints an opaque host resume token: 48 hexadecimal
// characters from crypto/rand.
func ResumeToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("mint resume token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Normalize canonicalizes an externally supplied code or identifier:
// trimmed and uppercased. Identifiers round-trip Normalize unchanged.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// randString draws n characters uniformly from Alphabet using rejection
// sampling to avoid modulo bias.
func randString(n int) (string, error) {
	// Largest multiple of len(Alphabet) below 256; bytes at or above it
	// are rejected so every alphabet character is equally likely.
	const limit = byte(256 - (256 % len(Alphabet)))

	var sb strings.Builder
	sb.Grow(n)

	buf := make([]byte, n)
	for sb.Len() < n {
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if sb.Len() == n {
				break
			}
			if b >= limit {
				continue
			}
			sb.WriteByte(Alphabet[int(b)%len(Alphabet)])
		}
	}

	return sb.String(), nil
}
