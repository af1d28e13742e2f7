package identity

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeIdentifier canonicalizes a login identifier (email or username).
// Both forms share the same rules, so one lookup key serves either.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

const (
	UsernameMinLen = 3
	UsernameMaxLen = 32
	EmailMaxLen    = 254
	MaxInterests   = 32
	InterestMaxLen = 64
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateUsername enforces 3..32 characters from [A-Za-z0-9_.-].
// Usernames never contain '@', so they cannot collide with an email identifier.
func ValidateUsername(s string) error {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < UsernameMinLen || n > UsernameMaxLen {
		return invalid("identity.ValidateUsername", "username must be 3..32 characters")
	}
	if !usernameRe.MatchString(s) {
		return invalid("identity.ValidateUsername", "username may only contain letters, digits, '_', '.', '-'")
	}
	return nil
}

// ValidateEmail performs a shallow syntactic check: one '@' with text on both sides.
func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > EmailMaxLen {
		return invalid("identity.ValidateEmail", "email length invalid")
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at != strings.LastIndexByte(s, '@') || at == len(s)-1 {
		return invalid("identity.ValidateEmail", "email must look like name@domain")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return invalid("identity.ValidateEmail", "email must not contain whitespace")
	}
	return nil
}

func normalizeInterests(in []string) ([]string, error) {
	if len(in) > MaxInterests {
		return nil, invalid("identity.normalizeInterests", "too many interests")
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if utf8.RuneCountInString(v) > InterestMaxLen {
			return nil, invalid("identity.normalizeInterests", "interest too long")
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}
