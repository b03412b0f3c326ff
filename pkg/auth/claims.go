package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT. UserID
// travels as a string claim; callers parse it back to a UUID where needed.
type AccessTokenPayload struct {
	UserID string
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID string     `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}
