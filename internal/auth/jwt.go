// Package auth guards the execution endpoints with an optional JWT check.
//
// The service does not own user accounts. The quiz application that embeds
// it logs students in and hands them a token signed with a shared secret;
// this package only verifies that token. When no secret is configured the
// check is off and every request is let through.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"student-42","iss":"newcd","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the "iss" claim expected when none is configured.
const DefaultIssuer = "newcd"

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: CODEEXEC_AUTH_JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TokenService{secret: []byte(secret), issuer: issuer}, nil
}

// Generate signs a token for subject that expires after ttl. The server never
// calls this itself; it backs the "token" CLI command used to mint tokens for
// scripts and smoke tests.
func (s *TokenService) Generate(subject string, ttl time.Duration) (string, error) {
	now := time.Now()

	c := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    s.issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string and returns its subject.
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, a token signed with "none" (or with the
// secret used as an RSA public key) might be accepted. jwt.WithValidMethods
// rejects everything but HS256.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	c := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}
	return c.Subject, nil
}
