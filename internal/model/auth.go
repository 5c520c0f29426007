package model

import (
	"github.com/golang-jwt/jwt/v5"
)

type LoginRequest struct {
	Phone    string `json:"phone" binding:"required,phone"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenClaims represents JWT claims
type TokenClaims struct {
	jwt.RegisteredClaims
	TherapistID int64  `json:"therapist_id"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
}
