package client

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TokenClaims is the display-only view of a session token's payload.
type TokenClaims struct {
	Subject     string `json:"sub"`
	Issuer      string `json:"iss"`
	ExpiresAt   int64  `json:"exp"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (tc TokenClaims) Expired() bool {
	return tc.ExpiresAt > 0 && time.Now().Unix() >= tc.ExpiresAt
}

// PreviewClaims decodes a token's payload WITHOUT verifying its
// signature. Use for display purposes only; the server remains the
// authority on whether the token is valid.
func PreviewClaims(token string) (TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return TokenClaims{}, errors.New("malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return TokenClaims{}, errors.Wrap(err, "decoding token payload")
	}
	var claims TokenClaims
	if err = json.Unmarshal(payload, &claims); err != nil {
		return TokenClaims{}, errors.Wrap(err, "unmarshalling token payload")
	}
	return claims, nil
}
