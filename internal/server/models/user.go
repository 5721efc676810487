// Package models holds the server-side persistence models.
package models

import "time"

// User is a registered account. UnlockNonce is nil until the first vault
// upload and is overwritten on every subsequent upload.
type User struct {
	ID           int64
	UserName     string
	Email        string
	PasswordHash string
	UnlockNonce  []byte
	CreatedAt    time.Time
}
