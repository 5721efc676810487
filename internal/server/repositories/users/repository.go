// Package users declares the narrow credential-store contract the auth and
// vault flows depend on.
package users

import (
	"context"

	"passvault/internal/server/models"
)

type Repository interface {
	// Create inserts a new user and returns it with the assigned id.
	// A username or email collision yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns the user with the given email, or common.ErrorNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUnlockNonce returns the stored unlock-secret nonce for the user.
	// A user that never uploaded a vault yields common.ErrorNotFound.
	GetUnlockNonce(ctx context.Context, userID int64) ([]byte, error)

	// SetUnlockNonce overwrites the unlock-secret nonce for the user.
	SetUnlockNonce(ctx context.Context, userID int64, nonce []byte) error
}
