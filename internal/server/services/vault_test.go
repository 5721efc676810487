package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passvault/internal/common"
	"passvault/internal/cryptox"
	"passvault/internal/server/storage"
)

func newVaultFixture(t *testing.T) (*VaultService, *fakeRepoManager) {
	t.Helper()

	repos := newFakeRepoManager()
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	cipher, err := cryptox.NewVaultCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	return NewVaultService(testDB(t), repos, store, cipher, testLogger()), repos
}

func registerVaultUser(t *testing.T, repos *fakeRepoManager) int64 {
	t.Helper()
	user, err := repos.users.Create(context.Background(), testUser())
	require.NoError(t, err)
	return user.ID
}

func TestVaultService_UploadDownloadRoundtrip(t *testing.T) {
	ctx := context.Background()
	svc, repos := newVaultFixture(t)
	userID := registerVaultUser(t, repos)

	blob := make([]byte, 64*1024)
	_, err := rand.Read(blob)
	require.NoError(t, err)

	require.NoError(t, svc.Upload(ctx, userID, bytes.NewReader(blob), "master-passphrase"))

	rc, secret, err := svc.Download(ctx, userID)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, blob, got, "blob must come back byte-identical")
	assert.Equal(t, "master-passphrase", secret)
}

func TestVaultService_UploadReplacesPreviousVault(t *testing.T) {
	ctx := context.Background()
	svc, repos := newVaultFixture(t)
	userID := registerVaultUser(t, repos)

	require.NoError(t, svc.Upload(ctx, userID, strings.NewReader("first"), "secret-one"))
	require.NoError(t, svc.Upload(ctx, userID, strings.NewReader("second"), "secret-two"))

	rc, secret, err := svc.Download(ctx, userID)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
	assert.Equal(t, "secret-two", secret)
}

func TestVaultService_ZeroByteBlob(t *testing.T) {
	ctx := context.Background()
	svc, repos := newVaultFixture(t)
	userID := registerVaultUser(t, repos)

	require.NoError(t, svc.Upload(ctx, userID, bytes.NewReader(nil), "empty-vault"))

	rc, secret, err := svc.Download(ctx, userID)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, "empty-vault", secret)
}

func TestVaultService_EmptyUnlockSecret(t *testing.T) {
	ctx := context.Background()
	svc, repos := newVaultFixture(t)
	userID := registerVaultUser(t, repos)

	require.NoError(t, svc.Upload(ctx, userID, strings.NewReader("data"), ""))

	rc, secret, err := svc.Download(ctx, userID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "", secret)
}

func TestVaultService_UnlockSecretTooLong(t *testing.T) {
	ctx := context.Background()
	svc, repos := newVaultFixture(t)
	userID := registerVaultUser(t, repos)

	err := svc.Upload(ctx, userID, strings.NewReader("data"), strings.Repeat("s", maxUnlockSecretLen+1))
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestVaultService_DownloadWithoutUpload(t *testing.T) {
	ctx := context.Background()
	svc, repos := newVaultFixture(t)
	userID := registerVaultUser(t, repos)

	_, _, err := svc.Download(ctx, userID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestVaultService_DownloadMissingNonce(t *testing.T) {
	ctx := context.Background()
	svc, repos := newVaultFixture(t)
	userID := registerVaultUser(t, repos)

	require.NoError(t, svc.Upload(ctx, userID, strings.NewReader("data"), "secret"))

	// Wipe the nonce: the stored ciphertext can no longer be opened and the
	// vault must look absent.
	repos.users.byID[userID].UnlockNonce = nil

	_, _, err := svc.Download(ctx, userID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestVaultService_DownloadMissingBlob(t *testing.T) {
	ctx := context.Background()
	svc, repos := newVaultFixture(t)
	userID := registerVaultUser(t, repos)

	// Secret and nonce are in place but the blob itself never landed
	// (interrupted upload). The vault must look absent.
	ciphertext, nonce, err := svc.cipher.Encrypt([]byte("secret"))
	require.NoError(t, err)
	require.NoError(t, svc.store.Put(ctx, secretKey(userID), bytes.NewReader(ciphertext)))
	require.NoError(t, repos.users.SetUnlockNonce(ctx, userID, nonce))

	_, _, err = svc.Download(ctx, userID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestVaultService_PerUserIsolation(t *testing.T) {
	ctx := context.Background()
	svc, repos := newVaultFixture(t)
	aliceID := registerVaultUser(t, repos)
	bob, err := repos.users.Create(ctx, testUserNamed("bob", "bob@example.com"))
	require.NoError(t, err)

	require.NoError(t, svc.Upload(ctx, aliceID, strings.NewReader("alice data"), "alice secret"))

	_, _, err = svc.Download(ctx, bob.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
