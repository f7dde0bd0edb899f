package api

import "strings"

// unwrapBearer extracts the token from an Authorization header value.
// The scheme match is case-insensitive and surrounding whitespace on the
// token is dropped, so "Bearer   abc123  " yields "abc123". Any other
// scheme, an empty token, or an empty header yields no token.
func unwrapBearer(header string) (string, bool) {
	const prefix = "bearer "

	if len(header) < len(prefix) ||
		!strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}

	return token, true
}
