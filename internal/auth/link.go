// File: internal/auth/link.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidLink = errors.New("invalid download link")
	ErrExpiredLink = errors.New("download link expired")
)

const linkIssuer = "mcp-openai"

// LinkSigner issues short-lived HS256 tokens that bind a download link to
// one stored file name.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewLinkSigner(secret []byte, ttl time.Duration) (*LinkSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("link secret cannot be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("link ttl must be positive")
	}
	return &LinkSigner{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Sign returns a token for filename and the time it stops being accepted.
func (s *LinkSigner) Sign(filename string) (string, time.Time, error) {
	if filename == "" {
		return "", time.Time{}, errors.New("filename cannot be empty")
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    linkIssuer,
		Subject:   filename,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign link: %w", err)
	}
	return token, expires, nil
}

// Verify checks the signature, expiry and that the token was issued for
// filename.
func (s *LinkSigner) Verify(tokenString, filename string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithIssuer(linkIssuer),
		jwt.WithSubject(filename),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredLink
	default:
		return fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
}
