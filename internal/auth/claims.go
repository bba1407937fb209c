package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeOps TokenType = "ops"

// Claims are the only supported JWT claims shape for this service.
// Operator tokens carry no tenant scope; the internal API is cross-tenant
// by construction and must never be exposed publicly.
type Claims struct {
	jwt.RegisteredClaims

	Operator  string    `json:"operator"`
	TokenType TokenType `json:"token_type"`
}
