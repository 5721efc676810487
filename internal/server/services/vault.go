package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"passvault/internal/common"
	"passvault/internal/cryptox"
	"passvault/internal/logging"
	"passvault/internal/server/repositories/repomanager"
	"passvault/internal/server/storage"
)

const (
	vaultObjectName  = "vault.pm"
	secretObjectName = "secret.bin"

	// maxUnlockSecretLen bounds the encrypted secret object so download can
	// read it whole.
	maxUnlockSecretLen = 4096
)

func vaultKey(userID int64) string {
	return fmt.Sprintf("users/%d/%s", userID, vaultObjectName)
}

func secretKey(userID int64) string {
	return fmt.Sprintf("users/%d/%s", userID, secretObjectName)
}

// VaultService stores and retrieves each user's single encrypted vault blob
// together with its encrypted unlock secret. The blob and the secret
// ciphertext live in the blob store; the cipher nonce lives in the user row.
type VaultService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  storage.BlobStore
	cipher *cryptox.VaultCipher
	logger logging.Logger
}

func NewVaultService(db *sql.DB, repos repomanager.RepositoryManager, store storage.BlobStore, cipher *cryptox.VaultCipher, logger logging.Logger) *VaultService {
	return &VaultService{
		db:     db,
		repos:  repos,
		store:  store,
		cipher: cipher,
		logger: logger.With("module", "vault_service"),
	}
}

// Upload streams blob into the user's storage location, replacing any prior
// vault, then encrypts unlockSecret and persists the ciphertext next to the
// blob and the nonce in the user record. The blob is published atomically by
// the store; an aborted stream never replaces the previous vault. A zero-byte
// blob is accepted.
func (s *VaultService) Upload(ctx context.Context, userID int64, blob io.Reader, unlockSecret string) error {
	if len(unlockSecret) > maxUnlockSecretLen {
		return fmt.Errorf("%w: unlock secret too long", common.ErrorValidation)
	}

	if err := s.store.Put(ctx, vaultKey(userID), blob); err != nil {
		s.logger.Error(ctx, "vault blob write failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	ciphertext, nonce, err := s.cipher.Encrypt([]byte(unlockSecret))
	if err != nil {
		s.logger.Error(ctx, "unlock secret encryption failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	if err := s.store.Put(ctx, secretKey(userID), bytes.NewReader(ciphertext)); err != nil {
		s.logger.Error(ctx, "unlock secret write failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	if err := s.repos.Users(s.db).SetUnlockNonce(ctx, userID, nonce); err != nil {
		s.logger.Error(ctx, "unlock nonce update failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	return nil
}

// Download recovers the unlock secret and opens the vault blob as a stream.
// The caller must close the stream. Any half-present state (missing blob,
// missing ciphertext, or missing nonce) is reported as common.ErrorNotFound,
// since the client cannot act on a vault without its secret.
func (s *VaultService) Download(ctx context.Context, userID int64) (io.ReadCloser, string, error) {
	nonce, err := s.repos.Users(s.db).GetUnlockNonce(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorNotFound
		}
		s.logger.Error(ctx, "unlock nonce lookup failed", "user_id", userID, "error", err)
		return nil, "", common.ErrorInternal
	}

	// The blob may be absent even when a nonce exists (interrupted upload);
	// check it up front so a half-present vault is reported before any
	// decryption work.
	ok, err := s.store.Exists(ctx, vaultKey(userID))
	if err != nil {
		s.logger.Error(ctx, "vault blob check failed", "user_id", userID, "error", err)
		return nil, "", common.ErrorInternal
	}
	if !ok {
		return nil, "", common.ErrorNotFound
	}

	ciphertext, err := s.readSecretObject(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorNotFound
		}
		s.logger.Error(ctx, "unlock secret read failed", "user_id", userID, "error", err)
		return nil, "", common.ErrorInternal
	}

	secret, err := s.cipher.Decrypt(ciphertext, nonce)
	if err != nil {
		// Tag mismatch means the nonce and ciphertext are out of sync
		// (interrupted upload) or the data was tampered with. Fatal either way.
		s.logger.Error(ctx, "unlock secret decryption failed", "user_id", userID, "error", err)
		return nil, "", common.ErrDecryptionFailed
	}

	blob, err := s.store.Get(ctx, vaultKey(userID))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorNotFound
		}
		s.logger.Error(ctx, "vault blob read failed", "user_id", userID, "error", err)
		return nil, "", common.ErrorInternal
	}

	return blob, string(secret), nil
}

func (s *VaultService) readSecretObject(ctx context.Context, userID int64) ([]byte, error) {
	rc, err := s.store.Get(ctx, secretKey(userID))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(io.LimitReader(rc, maxUnlockSecretLen+1024))
}
