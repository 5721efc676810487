package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorType is the closed set of wire error kinds. Every case maps to exactly
// one HTTP status and one string; the exhaustive switches below fail to
// compile if a case is added without its mapping.
type ErrorType int

const (
	ErrTypeInternal ErrorType = iota
	ErrTypeJwtTokenExpired
	ErrTypeRefreshTokenExpired
	ErrTypeBadData
	ErrTypeUserAlreadyExists
	ErrTypeUserNotExists
	ErrTypeInvalidCreds
	ErrTypeNoAuthHeader
	ErrTypeVaultNotFound
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeInternal:
		return "internal_error"
	case ErrTypeJwtTokenExpired:
		return "jwt_token_expired"
	case ErrTypeRefreshTokenExpired:
		return "refresh_token_expired"
	case ErrTypeBadData:
		return "bad_data"
	case ErrTypeUserAlreadyExists:
		return "user_already_exists"
	case ErrTypeUserNotExists:
		return "user_not_exists"
	case ErrTypeInvalidCreds:
		return "invalid_creds"
	case ErrTypeNoAuthHeader:
		return "no_auth_header"
	case ErrTypeVaultNotFound:
		return "vault_not_found"
	}
	return "internal_error"
}

func (t ErrorType) status() int {
	switch t {
	case ErrTypeInternal:
		return http.StatusInternalServerError
	case ErrTypeJwtTokenExpired:
		return http.StatusUnauthorized
	case ErrTypeRefreshTokenExpired:
		return http.StatusForbidden
	case ErrTypeBadData:
		return http.StatusBadRequest
	case ErrTypeUserAlreadyExists:
		return http.StatusConflict
	case ErrTypeUserNotExists:
		return http.StatusBadRequest
	case ErrTypeInvalidCreds:
		return http.StatusUnauthorized
	case ErrTypeNoAuthHeader:
		return http.StatusBadRequest
	case ErrTypeVaultNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the single wire shape for all error bodies.
type ErrorResponse struct {
	ErrorType string `json:"error_type"`
	ErrorMsg  string `json:"error_msg"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, t ErrorType, msg string) {
	writeJSON(w, t.status(), ErrorResponse{ErrorType: t.String(), ErrorMsg: msg})
}
