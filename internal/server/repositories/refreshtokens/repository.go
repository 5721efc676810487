// Package refreshtokens declares the refresh-token ledger contract: the
// persisted allow-list of currently-valid refresh tokens.
package refreshtokens

import "context"

type Repository interface {
	// Create records an issued refresh token for userID.
	Create(ctx context.Context, userID int64, token string) error

	// Exists reports whether the exact token string is present in the ledger.
	Exists(ctx context.Context, token string) (bool, error)

	// Delete removes a refresh token by its token string. Deleting a
	// non-existent token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteForUser removes every refresh token recorded for userID.
	DeleteForUser(ctx context.Context, userID int64) error
}
