// Package tokens issues the secret that lets a customer manage a booking
// without an account. Only a bcrypt hash is persisted.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrMismatch = errors.New("token mismatch")

type Issuer struct {
	cost int
}

// NewIssuer uses bcrypt.DefaultCost when cost is out of range.
func NewIssuer(cost int) *Issuer {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Issuer{cost: cost}
}

// New returns a fresh URL-safe token and its hash.
func (i *Issuer) New() (plain string, hash string, err error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	plain = base64.RawURLEncoding.EncodeToString(b[:])
	h, err := bcrypt.GenerateFromPassword([]byte(plain), i.cost)
	if err != nil {
		return "", "", fmt.Errorf("hash token: %w", err)
	}
	return plain, string(h), nil
}

func (i *Issuer) Verify(hash, plain string) error {
	if hash == "" || plain == "" {
		return ErrMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrMismatch
	}
	return nil
}
