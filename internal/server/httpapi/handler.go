package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"

	"passvault/internal/common"
	"passvault/internal/logging"
	"passvault/internal/server/services"
)

const maxJSONBodyBytes = 1 << 20

// Handler exposes the auth and vault flows over HTTP.
type Handler struct {
	users  *services.UserService
	vault  *services.VaultService
	logger logging.Logger
}

func NewHandler(users *services.UserService, vault *services.VaultService, logger logging.Logger) *Handler {
	return &Handler{
		users:  users,
		vault:  vault,
		logger: logger.With("module", "httpapi"),
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, ErrTypeBadData, "invalid json body")
		return
	}

	pair, err := h.users.Register(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorValidation):
			writeError(w, ErrTypeBadData, "provided data is bad")
		case errors.Is(err, common.ErrorAlreadyExists):
			writeError(w, ErrTypeUserAlreadyExists, "user is already registered")
		default:
			sentry.CaptureException(err)
			writeError(w, ErrTypeInternal, "failed to register")
		}
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, ErrTypeBadData, "invalid json body")
		return
	}

	pair, err := h.users.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorValidation):
			writeError(w, ErrTypeBadData, "provided data is bad")
		case errors.Is(err, common.ErrorNotFound):
			writeError(w, ErrTypeUserNotExists, "user does not exist, please register")
		case errors.Is(err, common.ErrorInvalidCreds):
			writeError(w, ErrTypeInvalidCreds, "invalid credentials")
		default:
			sentry.CaptureException(err)
			writeError(w, ErrTypeInternal, "failed to login")
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Token exchanges a valid, non-revoked refresh token for a new access token,
// returned as plain text.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	refreshToken, err := bearerToken(r)
	if err != nil {
		writeError(w, ErrTypeNoAuthHeader, "no auth header")
		return
	}

	access, err := h.users.Refresh(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrRefreshTokenExpired) {
			writeError(w, ErrTypeRefreshTokenExpired, "refresh token expired, please log in")
			return
		}
		sentry.CaptureException(err)
		writeError(w, ErrTypeInternal, "failed to refresh token")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(access))
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, ErrTypeBadData, "missing token parameter")
		return
	}

	if _, err := h.users.Validate(token); err != nil {
		writeError(w, ErrTypeJwtTokenExpired, "token update requested")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body logoutRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, ErrTypeBadData, "invalid json body")
		return
	}

	// Best effort: deleting an unknown token is still a successful logout.
	if err := h.users.Logout(r.Context(), body.RefreshToken); err != nil {
		sentry.CaptureException(err)
		writeError(w, ErrTypeInternal, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Upload consumes a multipart request part by part and streams the vault blob
// into storage without buffering it in memory.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, ErrTypeJwtTokenExpired, "invalid or expired token")
		return
	}

	unlockSecret := r.Header.Get(common.PasswordHeaderName)
	if unlockSecret == "" {
		writeError(w, ErrTypeBadData, "missing password header")
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, ErrTypeBadData, "expected multipart body")
		return
	}

	// Every part is streamed into the vault in order; each write replaces the
	// previous one, so the last part's bytes win.
	uploaded := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, ErrTypeBadData, "malformed multipart body")
			return
		}

		err = h.vault.Upload(r.Context(), userID, part, unlockSecret)
		part.Close()
		if err != nil {
			if errors.Is(err, common.ErrorValidation) {
				writeError(w, ErrTypeBadData, "provided data is bad")
				return
			}
			sentry.CaptureException(err)
			writeError(w, ErrTypeInternal, "failed to store vault")
			return
		}
		uploaded = true
	}

	if !uploaded {
		writeError(w, ErrTypeBadData, "multipart body contains no file")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Download streams the vault blob back to the client with the recovered
// unlock secret in a response header.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, ErrTypeJwtTokenExpired, "invalid or expired token")
		return
	}

	blob, secret, err := h.vault.Download(r.Context(), userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, ErrTypeVaultNotFound, "no vault uploaded")
			return
		}
		sentry.CaptureException(err)
		writeError(w, ErrTypeInternal, "failed to read vault")
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", `attachment; filename="vault.pm"`)
	w.Header().Set(common.PasswordHeaderName, secret)
	w.WriteHeader(http.StatusOK)

	// Headers are out by now; a mid-stream failure can only be logged.
	if _, err := io.Copy(w, blob); err != nil {
		h.logger.Error(r.Context(), "vault download interrupted", "user_id", userID, "error", err)
	}
}
