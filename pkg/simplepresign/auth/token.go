package auth

import "github.com/golang-jwt/jwt/v5"

// TokenType is the only credential type the verifier accepts
const TokenType = "access_token"

type claims struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
	Type        string   `json:"type,omitempty"`
	jwt.RegisteredClaims
}

func (c *claims) subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}
