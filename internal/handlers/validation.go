package handlers

import (
	"net/mail"
	"strings"
)

const minPasswordLength = 8

func usernameRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '.' || r == '-'
}

// normalizeRegisterRequest trims and lowercases the request and returns a
// client-facing message when it is not acceptable.
func normalizeRegisterRequest(req registerRequest) (registerRequest, string) {
	req.Username = strings.TrimSpace(req.Username)
	if msg := validateUsername(req.Username); msg != "" {
		return req, msg
	}

	parsed, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil || parsed.Name != "" {
		return req, "Invalid email format"
	}
	req.Email = strings.ToLower(parsed.Address)

	if len(req.Password) < minPasswordLength {
		return req, "Password must be at least 8 characters"
	}
	return req, ""
}

func validateUsername(username string) string {
	if len(username) < 3 || len(username) > 50 {
		return "username must be between 3 and 50 characters"
	}
	if strings.IndexFunc(username, func(r rune) bool { return !usernameRune(r) }) >= 0 {
		return "username may only contain letters, digits, '.', '_' and '-'"
	}
	return ""
}
