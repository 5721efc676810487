// Package services contains the server-side business logic: the
// authentication flow (UserService) and the vault flow (VaultService).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"passvault/internal/common"
	"passvault/internal/cryptox"
	"passvault/internal/dbx"
	"passvault/internal/logging"
	"passvault/internal/server/auth"
	"passvault/internal/server/models"
	"passvault/internal/server/repositories/repomanager"
)

// Input bounds enforced on register/login.
const (
	maxUserNameLen = 32
	minPasswordLen = 4
	maxPasswordLen = 64
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserService drives a user's session lifecycle: registration, login,
// access-token refresh, validation, and logout. Refresh tokens are valid only
// while present in the ledger, so deleting the row revokes the token ahead of
// its signed expiry.
type UserService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	codec  *auth.Codec
	logger logging.Logger
}

func NewUserService(db *sql.DB, repos repomanager.RepositoryManager, codec *auth.Codec, logger logging.Logger) *UserService {
	return &UserService{
		db:     db,
		repos:  repos,
		codec:  codec,
		logger: logger.With("module", "user_service"),
	}
}

// Register creates a new user and returns a fresh token pair. A username or
// email collision yields common.ErrorAlreadyExists; the created user is not
// rolled back if the subsequent ledger insert fails.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*TokenPair, error) {
	if err := validateRegisterInput(username, email, password); err != nil {
		return nil, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, common.ErrorInternal
	}

	user := &models.User{UserName: username, Email: email, PasswordHash: hash}
	user, err = s.repos.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		s.logger.Error(ctx, "user creation failed", "error", err)
		return nil, common.ErrorInternal
	}

	return s.issueTokens(ctx, user.ID)
}

// Login verifies credentials and returns a fresh token pair. A missing user
// yields common.ErrorNotFound; a wrong password yields common.ErrorInvalidCreds.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if err := validateLoginInput(email, password); err != nil {
		return nil, err
	}

	user, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return nil, common.ErrorInternal
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, common.ErrorInvalidCreds) {
			return nil, common.ErrorInvalidCreds
		}
		s.logger.Error(ctx, "password verification failed", "error", err)
		return nil, common.ErrorInternal
	}

	return s.issueTokens(ctx, user.ID)
}

// Refresh checks the presented refresh token against both its signature/expiry
// and the ledger, then issues a new access token. The refresh token itself is
// not rotated. A token that fails verification is evicted from the ledger.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, err := s.codec.Verify(auth.TokenClassRefresh, refreshToken)
	if err != nil {
		// Signed expiry passed or the token is forged: the ledger row, if
		// any, is dead weight.
		if delErr := s.repos.RefreshTokens(s.db).Delete(ctx, refreshToken); delErr != nil {
			s.logger.Warn(ctx, "stale refresh token eviction failed", "error", delErr)
		}
		return "", common.ErrRefreshTokenExpired
	}

	exists, err := s.repos.RefreshTokens(s.db).Exists(ctx, refreshToken)
	if err != nil {
		s.logger.Error(ctx, "refresh token lookup failed", "error", err)
		return "", common.ErrorInternal
	}
	if !exists {
		return "", common.ErrRefreshTokenExpired
	}

	access, err := s.codec.Issue(auth.TokenClassAccess, userID)
	if err != nil {
		s.logger.Error(ctx, "access token issue failed", "error", err)
		return "", common.ErrorInternal
	}
	return access, nil
}

// Validate is a pure check of an access token; it returns the embedded user
// id or common.ErrInvalidToken.
func (s *UserService) Validate(accessToken string) (int64, error) {
	return s.codec.Verify(auth.TokenClassAccess, accessToken)
}

// Logout removes the refresh token from the ledger. Best effort: a token that
// was never issued or is already gone is not an error.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repos.RefreshTokens(s.db).Delete(ctx, refreshToken); err != nil {
		s.logger.Error(ctx, "refresh token deletion failed", "error", err)
		return common.ErrorInternal
	}
	return nil
}

// issueTokens mints both token classes and records the refresh token in the
// ledger, replacing any previously active one for the user in a single
// transaction.
func (s *UserService) issueTokens(ctx context.Context, userID int64) (*TokenPair, error) {
	access, err := s.codec.Issue(auth.TokenClassAccess, userID)
	if err != nil {
		s.logger.Error(ctx, "access token issue failed", "error", err)
		return nil, common.ErrorInternal
	}
	refresh, err := s.codec.Issue(auth.TokenClassRefresh, userID)
	if err != nil {
		s.logger.Error(ctx, "refresh token issue failed", "error", err)
		return nil, common.ErrorInternal
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.RefreshTokens(tx)
		if err := repo.DeleteForUser(ctx, userID); err != nil {
			return fmt.Errorf("replacing refresh token: %w", err)
		}
		return repo.Create(ctx, userID, refresh)
	})
	if err != nil {
		s.logger.Error(ctx, "refresh token persistence failed", "error", err)
		return nil, common.ErrorInternal
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func validateRegisterInput(username, email, password string) error {
	if username == "" || len(username) > maxUserNameLen {
		return fmt.Errorf("%w: invalid username", common.ErrorValidation)
	}
	return validateLoginInput(email, password)
}

func validateLoginInput(email, password string) error {
	if email == "" {
		return fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return fmt.Errorf("%w: invalid password", common.ErrorValidation)
	}
	return nil
}
