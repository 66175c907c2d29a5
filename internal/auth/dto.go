package auth

import (
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/types"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse contains the tokens and profile produced by a successful login.
type LoginResponse struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresIn    int64              `json:"expires_in"`
	User         *types.UserProfile `json:"user"`
}

// RegisterRequest is the self sign-up payload. Crops and location only matter for farmers.
type RegisterRequest struct {
	Email           string                `json:"email" validate:"required,email"`
	Password        string                `json:"password" validate:"required,min=8"`
	FirstName       string                `json:"first_name" validate:"required,min=1,max=50"`
	LastName        string                `json:"last_name" validate:"required,min=1,max=50"`
	Role            enums.Role            `json:"role" validate:"required,oneof=farmer agronomist"`
	SubscribedCrops []string              `json:"subscribed_crops,omitempty"`
	Location        *types.GeographyPoint `json:"location,omitempty"`
}
