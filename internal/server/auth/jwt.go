// Package auth signs and parses session bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Sealer encrypts individual claim values so the token body reveals
// nothing about the account.
type Sealer interface {
	Seal(value string) (string, error)
	Open(sealed string) (string, error)
}

// Claims is the wire form of a session token. Usr, Acc and Tid are sealed.
type Claims struct {
	jwt.RegisteredClaims
	Usr string `json:"usr"`
	Acc string `json:"acc"`
	Tid string `json:"tid"`
	// MFA is set while the second factor is still outstanding.
	MFA bool `json:"mfa"`
}

// Identity is the opened content of a token.
type Identity struct {
	Username    string
	AccountID   string
	TokenID     string
	MFARequired bool
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type Signer struct {
	secret []byte
	sealer Sealer
	now    func() time.Time
}

func NewSigner(secret []byte, sealer Sealer, now func() time.Time) (*Signer, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: secret, sealer: sealer, now: now}, nil
}

// GenerateToken signs id with HS256, valid for validity from now.
func (s *Signer) GenerateToken(id Identity, validity time.Duration) (string, error) {
	usr, err := s.sealer.Seal(id.Username)
	if err != nil {
		return "", fmt.Errorf("seal username: %w", err)
	}
	acc, err := s.sealer.Seal(id.AccountID)
	if err != nil {
		return "", fmt.Errorf("seal account id: %w", err)
	}
	tid, err := s.sealer.Seal(id.TokenID)
	if err != nil {
		return "", fmt.Errorf("seal token id: %w", err)
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Usr: usr,
		Acc: acc,
		Tid: tid,
		MFA: id.MFARequired,
	})

	return token.SignedString(s.secret)
}

// ParseToken verifies the signature and expiry of tokenString and opens its
// claims. Expired tokens yield common.ErrTokenExpired, anything else that
// fails yields common.ErrInvalidToken.
func (s *Signer) ParseToken(tokenString string) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	id := &Identity{MFARequired: claims.MFA}
	if id.Username, err = s.sealer.Open(claims.Usr); err != nil {
		return nil, fmt.Errorf("%w: username: %v", common.ErrInvalidToken, err)
	}
	if id.AccountID, err = s.sealer.Open(claims.Acc); err != nil {
		return nil, fmt.Errorf("%w: account id: %v", common.ErrInvalidToken, err)
	}
	if id.TokenID, err = s.sealer.Open(claims.Tid); err != nil {
		return nil, fmt.Errorf("%w: token id: %v", common.ErrInvalidToken, err)
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	id.ExpiresAt = claims.ExpiresAt.Time.UTC()
	return id, nil
}
