// Package auth implements the token codec: issuing and verifying compact
// signed tokens carrying a user id and expiry. Access and refresh tokens are
// the same claim shape signed with independent secrets, so possession of one
// secret cannot forge the other token class.
package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"passvault/internal/common"
)

// TokenClass selects which signing secret and lifetime a token is issued and
// verified under.
type TokenClass int

const (
	TokenClassAccess TokenClass = iota
	TokenClassRefresh
)

// Claims is the signed claim set: standard registered claims plus UserID.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64
}

type classParams struct {
	secret   []byte
	validity time.Duration
}

// Codec issues and verifies tokens of both classes. Secrets and lifetimes are
// injected at construction so tests can run with their own keys.
type Codec struct {
	classes map[TokenClass]classParams
}

func NewCodec(accessSecret, refreshSecret []byte, accessValidity, refreshValidity time.Duration) *Codec {
	return &Codec{
		classes: map[TokenClass]classParams{
			TokenClassAccess:  {secret: accessSecret, validity: accessValidity},
			TokenClassRefresh: {secret: refreshSecret, validity: refreshValidity},
		},
	}
}

// Issue signs a new token of the given class for userID, expiring at
// now + the class validity.
func (c *Codec) Issue(class TokenClass, userID int64) (string, error) {
	params := c.classes[class]

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(params.validity)),
		},
		UserID: userID,
	})

	return token.SignedString(params.secret)
}

// Verify checks the signature and expiry of tokenString against the given
// class and returns the embedded user id. Bad signature, malformed payload,
// and expiry are reported uniformly as common.ErrInvalidToken: the caller
// cannot distinguish a forged token from a stale one.
func (c *Codec) Verify(class TokenClass, tokenString string) (int64, error) {
	params := c.classes[class]
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return params.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, common.ErrInvalidToken
	}

	return claims.UserID, nil
}
