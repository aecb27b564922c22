package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reverseSealer stands in for the field codec.
type reverseSealer struct{ failOpen bool }

func (reverseSealer) Seal(v string) (string, error) {
	return base64.RawURLEncoding.EncodeToString([]byte("sealed:" + v)), nil
}

func (r reverseSealer) Open(s string) (string, error) {
	if r.failOpen {
		return "", errors.New("authentication failed")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	v, ok := strings.CutPrefix(string(b), "sealed:")
	if !ok {
		return "", errors.New("not sealed")
	}
	return v, nil
}

var secret = []byte("0123456789abcdef0123456789abcdef")

func newSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	s, err := NewSigner(secret, reverseSealer{}, func() time.Time { return now })
	require.NoError(t, err)
	return s
}

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s := newSigner(t, now)
	id := Identity{Username: "alice", AccountID: "acc-1", TokenID: "tok-1", MFARequired: true}

	tok, err := s.GenerateToken(id, time.Hour)
	require.NoError(t, err)

	got, err := s.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.Equal(t, "tok-1", got.TokenID)
	assert.True(t, got.MFARequired)
	assert.Equal(t, now, got.IssuedAt)
	assert.Equal(t, now.Add(time.Hour), got.ExpiresAt)
}

func TestGenerateToken_ClaimsAreSealed(t *testing.T) {
	t.Parallel()

	s := newSigner(t, time.Now())
	tok, err := s.GenerateToken(Identity{Username: "alice", AccountID: "acc-1", TokenID: "tok-1"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	body, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.NotContains(t, string(body), "alice")
	assert.NotContains(t, string(body), "acc-1")
}

func TestParseToken_Expired(t *testing.T) {
	t.Parallel()

	issued := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tok, err := newSigner(t, issued).GenerateToken(Identity{Username: "u"}, time.Minute)
	require.NoError(t, err)

	_, err = newSigner(t, issued.Add(2*time.Minute)).ParseToken(tok)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := newSigner(t, time.Now()).GenerateToken(Identity{Username: "u"}, time.Hour)
	require.NoError(t, err)

	other, err := NewSigner([]byte("another-secret-of-32-bytes-long!"), reverseSealer{}, nil)
	require.NoError(t, err)
	_, err = other.ParseToken(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_Malformed(t *testing.T) {
	t.Parallel()

	_, err := newSigner(t, time.Now()).ParseToken("not.a.jwt")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newSigner(t, time.Now()).ParseToken(s)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_UnsealFailure(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tok, err := newSigner(t, now).GenerateToken(Identity{Username: "u"}, time.Hour)
	require.NoError(t, err)

	s, err := NewSigner(secret, reverseSealer{failOpen: true}, func() time.Time { return now })
	require.NoError(t, err)
	_, err = s.ParseToken(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestNewSigner_ShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewSigner([]byte("short"), reverseSealer{}, nil)
	assert.Error(t, err)
}
