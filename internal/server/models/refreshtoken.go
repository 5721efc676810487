package models

import "time"

// RefreshToken is a ledger row for an issued refresh token. Presence of the
// exact token string in the ledger is what makes the token valid; the signed
// expiry lives inside the token itself.
type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
}
