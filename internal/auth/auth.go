// Package auth holds the credential primitives: argon2id password hashing,
// opaque session tokens and the short-lived access JWT.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/model"
)

// PasswordHasher derives and checks salted argon2id hashes.
type PasswordHasher struct {
	params *argon2id.Params
}

// NewPasswordHasher returns a hasher using params, or argon2id.DefaultParams
// when params is nil.
func NewPasswordHasher(params *argon2id.Params) *PasswordHasher {
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &PasswordHasher{params: params}
}

func (h *PasswordHasher) HashPassword(password string) (string, error) {
	hashed, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", fmt.Errorf("internal/auth: pw hash failed: %w", err)
	}

	return hashed, nil
}

// CheckPasswordHash compares password against hash in constant time. A
// mismatch is reported as false with a nil error; the error is reserved for
// a hash that cannot be decoded.
func (h *PasswordHasher) CheckPasswordHash(password, hash string) (bool, error) {
	isMatch, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("internal/auth: pw and hash comparison failed: %w", err)
	}

	return isMatch, nil
}

// Claims is the payload of the access JWT.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTIssuer signs and checks HS256 access tokens.
type JWTIssuer struct {
	secret []byte
	issuer string
}

func NewJWTIssuer(secret, issuer string) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secret), issuer: issuer}
}

func (j *JWTIssuer) MakeJWT(acct model.Account, expiresIn time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: acct.Username,
		Roles:    model.RoleNames(acct.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   acct.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})

	return token.SignedString(j.secret)
}

func (j *JWTIssuer) ValidateJWT(tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(j.issuer),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}

	if !token.Valid {
		return Principal{}, errors.New("internal/auth: token is invalid")
	}

	if claims.Subject == "" {
		return Principal{}, errors.New("internal/auth: subject claim is missing")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("internal/auth: bad subject claim: %w", err)
	}

	roles, err := model.ParseRoles(claims.Roles)
	if err != nil {
		return Principal{}, fmt.Errorf("internal/auth: bad roles claim: %w", err)
	}

	return Principal{AccountID: id, Username: claims.Username, Roles: roles}, nil
}
