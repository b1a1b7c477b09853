package app

import (
	"net/mail"
	"regexp"
	"strings"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)
	nameRe     = regexp.MustCompile(`^[a-zA-Z ]{2,100}$`)
)

func validUsername(username string) bool {
	return usernameRe.MatchString(username)
}

func validName(name string) bool {
	return nameRe.MatchString(name)
}

// normalizeEmail lowercases and validates an address, returning "" if invalid.
func normalizeEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ""
	}
	return email
}

// NormalizeTags flattens form values into a trimmed tag list. Each value may
// itself be a comma-separated string.
func NormalizeTags(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}
