package auth

import "github.com/sealtrack/sealtrack-backend/internal/users"

// LoginRequest carries the credentials presented at login. DeviceID is
// required for field-agent accounts and ignored for the rest.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	DeviceID string `json:"device_id,omitempty" validate:"omitempty,max=128"`

	// ClientIP is populated by the HTTP layer for audit, never by the caller.
	ClientIP string `json:"-"`
}

// LoginResponse returns the issued credential pair and the authenticated user.
type LoginResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *users.UserDTO `json:"user"`
}

// RefreshRequest exchanges a consumed access/refresh pair for a new one.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`

	ClientIP string `json:"-"`
}

// RefreshResponse carries the rotated pair.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
