package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"passvault/internal/common"
	"passvault/internal/cryptox"
	"passvault/internal/dbx"
	"passvault/internal/logging"
	"passvault/internal/server/auth"
	"passvault/internal/server/models"
	"passvault/internal/server/repositories/refreshtokens"
	"passvault/internal/server/repositories/repomanager"
	"passvault/internal/server/repositories/users"
	"passvault/internal/server/services"
	"passvault/internal/server/storage"
)

// In-memory repositories backing the end-to-end tests. The DBTX argument is
// ignored; state lives in the maps.

type memUserRepo struct {
	nextID int64
	byID   map[int64]*models.User
	byMail map[string]*models.User
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if _, ok := r.byMail[user.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	for _, u := range r.byID {
		if u.UserName == user.UserName {
			return nil, common.ErrorAlreadyExists
		}
	}
	u := *user
	u.ID = r.nextID
	r.nextID++
	r.byID[u.ID] = &u
	r.byMail[u.Email] = &u
	return &u, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := r.byMail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetUnlockNonce(ctx context.Context, userID int64) ([]byte, error) {
	u, ok := r.byID[userID]
	if !ok || u.UnlockNonce == nil {
		return nil, common.ErrorNotFound
	}
	return u.UnlockNonce, nil
}

func (r *memUserRepo) SetUnlockNonce(ctx context.Context, userID int64, nonce []byte) error {
	u, ok := r.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.UnlockNonce = nonce
	return nil
}

type memRefreshTokenRepo struct {
	tokens map[string]int64
}

func (r *memRefreshTokenRepo) Create(ctx context.Context, userID int64, token string) error {
	r.tokens[token] = userID
	return nil
}

func (r *memRefreshTokenRepo) Exists(ctx context.Context, token string) (bool, error) {
	_, ok := r.tokens[token]
	return ok, nil
}

func (r *memRefreshTokenRepo) Delete(ctx context.Context, token string) error {
	delete(r.tokens, token)
	return nil
}

func (r *memRefreshTokenRepo) DeleteForUser(ctx context.Context, userID int64) error {
	for t, id := range r.tokens {
		if id == userID {
			delete(r.tokens, t)
		}
	}
	return nil
}

type memRepoManager struct {
	users   *memUserRepo
	refresh *memRefreshTokenRepo
}

func (m *memRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *memRepoManager) Users(db dbx.DBTX) users.Repository                  { return m.users }
func (m *memRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository  { return m.refresh }

var _ repomanager.RepositoryManager = (*memRepoManager)(nil)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := sql.Open("sqlite", "file:httpapi_tests?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = db.Close() })

	repos := &memRepoManager{
		users:   &memUserRepo{nextID: 1, byID: map[int64]*models.User{}, byMail: map[string]*models.User{}},
		refresh: &memRefreshTokenRepo{tokens: map[string]int64{}},
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	codec := auth.NewCodec([]byte("access-secret"), []byte("refresh-secret"), time.Hour, 7*24*time.Hour)

	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	cipher, err := cryptox.NewVaultCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	us := services.NewUserService(db, repos, codec, logger)
	vs := services.NewVaultService(db, repos, store, cipher, logger)

	srv := NewHTTPServer(":0", logger, us, vs)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeTokens(t *testing.T, resp *http.Response) (access, refresh string) {
	t.Helper()
	defer resp.Body.Close()
	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.AccessToken, body.RefreshToken
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.ErrorMsg)
	return body
}

func registerUser(t *testing.T, ts *httptest.Server) (access, refresh string) {
	t.Helper()
	resp := postJSON(t, ts.URL+"/register", `{"username":"alice","email":"alice@example.com","password":"secret"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeTokens(t, resp)
}

func uploadVault(t *testing.T, ts *httptest.Server, access string, blob []byte, secret string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "vault.pm")
	require.NoError(t, err)
	_, err = fw.Write(blob)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)
	req.Header.Set(common.PasswordHeaderName, secret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	access, refresh := registerUser(t, ts)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
}

func TestRegister_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	registerUser(t, ts)

	resp := postJSON(t, ts.URL+"/register", `{"username":"alice","email":"alice@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "user_already_exists", decodeError(t, resp).ErrorType)
}

func TestRegister_BadBody(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"username":`},
		{"unknown field", `{"username":"a","email":"a@b.c","password":"secret","extra":1}`},
		{"validation failure", `{"username":"","email":"a@b.c","password":"secret"}`},
		{"short password", `{"username":"a","email":"a@b.c","password":"abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "bad_data", decodeError(t, resp).ErrorType)
		})
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	registerUser(t, ts)

	resp := postJSON(t, ts.URL+"/login", `{"email":"alice@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	access, refresh := decodeTokens(t, resp)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
}

func TestLogin_UnknownUser(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/login", `{"email":"ghost@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "user_not_exists", decodeError(t, resp).ErrorType)
}

func TestLogin_WrongPassword(t *testing.T) {
	ts := newTestServer(t)
	registerUser(t, ts)

	resp := postJSON(t, ts.URL+"/login", `{"email":"alice@example.com","password":"wrong password"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_creds", decodeError(t, resp).ErrorType)
}

func TestToken(t *testing.T) {
	ts := newTestServer(t)
	_, refresh := registerUser(t, ts)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/token", nil)
	require.NoError(t, err)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+refresh)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A fresh access token comes back as plain text and authorizes protected
	// routes.
	access, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotEmpty(t, access)

	vr, err := http.Get(ts.URL + "/validate?token=" + string(access))
	require.NoError(t, err)
	defer vr.Body.Close()
	assert.Equal(t, http.StatusOK, vr.StatusCode)
}

func TestToken_NoHeader(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/token")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no_auth_header", decodeError(t, resp).ErrorType)
}

func TestToken_AfterLogout(t *testing.T) {
	ts := newTestServer(t)
	_, refresh := registerUser(t, ts)

	resp := postJSON(t, ts.URL+"/logout", `{"refresh_token":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/token", nil)
	require.NoError(t, err)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+refresh)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "refresh_token_expired", decodeError(t, resp).ErrorType)
}

func TestValidate(t *testing.T) {
	ts := newTestServer(t)
	access, _ := registerUser(t, ts)

	resp, err := http.Get(ts.URL + "/validate?token=" + access)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestValidate_MissingToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/validate")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_data", decodeError(t, resp).ErrorType)
}

func TestValidate_BadToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/validate?token=not.a.token")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "jwt_token_expired", decodeError(t, resp).ErrorType)
}

func TestLogout_UnknownTokenStillOK(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/logout", `{"refresh_token":"never-issued"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadDownload(t *testing.T) {
	ts := newTestServer(t)
	access, _ := registerUser(t, ts)

	blob := []byte("sqlite vault bytes")

	resp := uploadVault(t, ts, access, blob, "master-passphrase")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/download", nil)
	require.NoError(t, err)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)

	dl, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)

	assert.Equal(t, "application/vnd.sqlite3", dl.Header.Get("Content-Type"))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "attachment")
	assert.Equal(t, "master-passphrase", dl.Header.Get(common.PasswordHeaderName))

	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestUpload_MissingPasswordHeader(t *testing.T) {
	ts := newTestServer(t)
	access, _ := registerUser(t, ts)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_, err := mw.CreateFormFile("file", "vault.pm")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_data", decodeError(t, resp).ErrorType)
}

func TestUpload_NoAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/upload", "multipart/form-data", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no_auth_header", decodeError(t, resp).ErrorType)
}

func TestUpload_BadToken(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", nil)
	require.NoError(t, err)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer not.a.token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "jwt_token_expired", decodeError(t, resp).ErrorType)
}

func TestDownload_NoVault(t *testing.T) {
	ts := newTestServer(t)
	access, _ := registerUser(t, ts)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/download", nil)
	require.NoError(t, err)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "vault_not_found", decodeError(t, resp).ErrorType)
}

func TestUpload_LastPartWins(t *testing.T) {
	ts := newTestServer(t)
	access, _ := registerUser(t, ts)

	// A leading non-file field must not shadow the vault file that follows:
	// parts are written in order and the last one is what sticks.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("comment", "not the vault"))
	fw, err := mw.CreateFormFile("file", "vault.pm")
	require.NoError(t, err)
	_, err = fw.Write([]byte("actual vault bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)
	req.Header.Set(common.PasswordHeaderName, "secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dlReq, err := http.NewRequest(http.MethodGet, ts.URL+"/download", nil)
	require.NoError(t, err)
	dlReq.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)

	dl, err := http.DefaultClient.Do(dlReq)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)

	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "actual vault bytes", string(got))
}

func TestUpload_EmptyMultipartBody(t *testing.T) {
	ts := newTestServer(t)
	access, _ := registerUser(t, ts)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)
	req.Header.Set(common.PasswordHeaderName, "secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_data", decodeError(t, resp).ErrorType)
}

func TestUpload_ReplacesVault(t *testing.T) {
	ts := newTestServer(t)
	access, _ := registerUser(t, ts)

	resp := uploadVault(t, ts, access, []byte("first"), "secret-one")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = uploadVault(t, ts, access, []byte("second"), "secret-two")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/download", nil)
	require.NoError(t, err)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)

	dl, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)

	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
	assert.Equal(t, "secret-two", dl.Header.Get(common.PasswordHeaderName))
}
