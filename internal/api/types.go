// Package api holds the JSON bodies shared by the HTTP handlers and the
// client.
package api

import (
	"time"

	"buddywalk/internal/models"
)

type RegisterUserRequest struct {
	Name            string `json:"name"`
	DogName         string `json:"dogName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	Gender          string `json:"gender"`
	VisibleToGender string `json:"visibleToGender"`

	// Optional; a keypair generated and wrapped on the registering device.
	PublicKey           string `json:"publicKey,omitempty"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token and, when the account has keys, the
// wrapped private key so the device can unwrap it with the same password.
type LoginResponse struct {
	Success             bool    `json:"success"`
	Token               string  `json:"token,omitempty"`
	Error               string  `json:"error,omitempty"`
	UserID              string  `json:"userId"`
	PublicKey           *string `json:"publicKey"`
	EncryptedPrivateKey *string `json:"encryptedPrivateKey"`
}

type Profile struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DogName         string    `json:"dogName"`
	Email           string    `json:"email"`
	Gender          string    `json:"gender"`
	VisibleToGender string    `json:"visibleToGender"`
	Available       bool      `json:"available"`
	HasKeys         bool      `json:"hasKeys"`
	CreatedAt       time.Time `json:"createdAt"`
}

func NewProfile(u *models.User) *Profile {
	return &Profile{
		ID:              u.ID.String(),
		Name:            u.Name,
		DogName:         u.DogName,
		Email:           u.Email,
		Gender:          u.Gender,
		VisibleToGender: u.VisibleToGender,
		Available:       u.Available,
		HasKeys:         u.HasKeys(),
		CreatedAt:       u.CreatedAt,
	}
}

type UploadKeysRequest struct {
	PublicKey           string `json:"publicKey"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
}

type PublicKeyResponse struct {
	UserID    string  `json:"userId"`
	PublicKey *string `json:"publicKey"`
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	IV         string `json:"iv,omitempty"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

type PartnerNameResponse struct {
	Name string `json:"name"`
}

type BlockRequest struct {
	UserID string `json:"userId"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
