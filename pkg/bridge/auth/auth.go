// Package auth verifies the short-lived signed tokens browser clients
// present before any audio is accepted.
package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/craftline/voicebridge/pkg/core"
)

// TokenUse is the claim value that distinguishes voice tokens from the
// other tokens the surrounding platform issues.
const TokenUse = "voice"

// VoiceClaims are the claims carried by a browser voice token.
type VoiceClaims struct {
	jwt.RegisteredClaims
	TokenUse string `json:"token_use"`
	UserID   string `json:"user_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// VerifyVoiceToken checks signature, expiry and the token_use claim.
// Verification happens strictly before any session resource is allocated.
func VerifyVoiceToken(secret, token string) (*VoiceClaims, error) {
	claims := &VoiceClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, core.NewAuthenticationError("invalid or expired voice token")
	}
	if !parsed.Valid {
		return nil, core.NewAuthenticationError("invalid voice token")
	}
	if claims.TokenUse != TokenUse {
		return nil, core.NewAuthenticationError("token is not a voice token")
	}
	return claims, nil
}
