package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Decode returns the claims carried by token: the base64 encoded JSON object
// at its start. Padding and characters outside the base64 alphabet are
// skipped, and anything after the first "}." of the decoded text or after the
// JSON object itself is ignored.
func Decode(token string) (map[string]any, error) {
	cleaned := strings.Map(func(r rune) rune {
		if isBase64Char(r) {
			return r
		}
		return -1
	}, token)

	// a single leftover character cannot encode a byte
	if len(cleaned)%4 == 1 {
		cleaned = cleaned[:len(cleaned)-1]
	}

	data, err := base64.RawStdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}

	if i := bytes.Index(data, []byte("}.")); i >= 0 {
		data = data[:i+1]
	}

	var claims map[string]any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token claims: %w", err)
	}
	if claims == nil {
		return nil, fmt.Errorf("access token carries no claims")
	}

	return claims, nil
}

// Encode builds a token from claims. Decode(Encode(c)) yields c again.
func Encode(claims map[string]any) (string, error) {
	data, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode access token claims: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func isBase64Char(r rune) bool {
	return (r >= 'A' && r <= 'Z') ||
		(r >= 'a' && r <= 'z') ||
		(r >= '0' && r <= '9') ||
		r == '+' || r == '/'
}
