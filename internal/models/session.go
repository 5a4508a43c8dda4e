package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of a first-party session token. Validity is
// entirely determined by signature and expiry; nothing is stored server-side.
type SessionClaims struct {
	AccountID string `json:"uid"`
	Provider  string `json:"prv"`
	jwt.RegisteredClaims
}
