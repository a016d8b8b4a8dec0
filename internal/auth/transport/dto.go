package transport

import "time"

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SessionResponse struct {
	IdentityID string    `json:"identityId"`
	Email      string    `json:"email"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
