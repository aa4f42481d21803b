package types

import "github.com/golang-jwt/jwt/v5"

// Claims represents the access token claims. The registered ID (jti) keys
// the logout denylist.
type Claims struct {
	UserID  uint `json:"user_id"`
	IsStaff bool `json:"is_staff"`
	jwt.RegisteredClaims
}
