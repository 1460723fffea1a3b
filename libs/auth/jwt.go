package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies an operator of an agency. Expiry is optional; when
// present it is enforced.
type Claims struct {
	jwt.RegisteredClaims
	AgencyID string `json:"agency_id"`
	Role     string `json:"role"`
}

// NewClaims builds operator claims valid for ttl from now. A zero ttl leaves
// the token without an expiry.
func NewClaims(subject, agencyID, role string, ttl time.Duration) Claims {
	now := time.Now()
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		AgencyID: agencyID,
		Role:     role,
	}
	if ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return c
}

const clockSkew = 30 * time.Second

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	return parse(token, jwt.SigningMethodHS256.Alg(), func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
}

func VerifyRS256(token string, pub *rsa.PublicKey) (*Claims, error) {
	return parse(token, jwt.SigningMethodRS256.Alg(), func(*jwt.Token) (any, error) {
		return pub, nil
	})
}

func parse(token string, alg string, keyFunc jwt.Keyfunc) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods([]string{alg}),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
