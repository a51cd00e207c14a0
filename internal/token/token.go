// Package token issues and verifies the signed bearer tokens that identify a
// user to the API.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL is the fixed validity window of an issued token.
const TTL = 7 * 24 * time.Hour

var (
	// ErrExpired is returned when a token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned when a token is malformed or its signature does
	// not validate.
	ErrInvalid = errors.New("invalid token")
)

// Claims defines the information stored in the JWT.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Assertion is the verified content of a token.
type Assertion struct {
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer signs and verifies HS256 tokens with a server-held secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer returns an Issuer using secret. A nil clock uses time.Now.
func NewIssuer(secret []byte, now func() time.Time) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: secret, now: now}, nil
}

// Issue produces a token for userID and email valid for TTL from now.
func (i *Issuer) Issue(userID, email string) (string, error) {
	now := i.now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString and returns its
// assertion. It fails with ErrExpired or ErrInvalid.
func (i *Issuer) Verify(tokenString string) (Assertion, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Assertion{}, ErrExpired
	default:
		return Assertion{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if claims.Subject == "" {
		return Assertion{}, fmt.Errorf("%w: missing subject", ErrInvalid)
	}

	a := Assertion{
		Subject:   claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		a.IssuedAt = claims.IssuedAt.Time
	}
	return a, nil
}
