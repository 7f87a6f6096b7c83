package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	// ErrMalformedToken signals the token does not match the expected shape.
	ErrMalformedToken = errors.New("qr: malformed token")
	// ErrBadSignature signals the token signature does not verify against the secret.
	ErrBadSignature = errors.New("qr: bad signature")
)

// Signer mints and verifies pickup tokens. A token is the order id joined to a
// base64url HMAC-SHA256 of that id, so it is deterministic per order and
// verifiable without touching the store.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer from the shared signing secret.
func NewSigner(secret string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("qr: signing secret is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Mint produces the signed token for the given order id.
func (s *Signer) Mint(orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", errors.New("qr: order id is required")
	}
	return orderID + "." + s.sign(orderID), nil
}

// Verify checks the token shape and signature and returns the embedded order id.
// It never consults storage, so a forged token is rejected before any lookup.
func (s *Signer) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedToken
	}

	idx := strings.LastIndexByte(token, '.')
	if idx <= 0 || idx == len(token)-1 {
		return "", ErrMalformedToken
	}

	orderID := token[:idx]
	signature := token[idx+1:]

	if !hmac.Equal([]byte(signature), []byte(s.sign(orderID))) {
		return "", ErrBadSignature
	}
	return orderID, nil
}

func (s *Signer) sign(orderID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
