// Package repomanager vends repository implementations bound to a database
// handle or transaction, plus a schema migration hook.
package repomanager

import (
	"context"
	"database/sql"

	"passvault/internal/dbx"
	"passvault/internal/server/repositories/refreshtokens"
	"passvault/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
