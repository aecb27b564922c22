// Package cryptox holds the cryptographic primitives behind field encryption:
// AEAD construction, Argon2id key derivation, lookup digests and constant-time
// comparison. It knows nothing about records or schemas.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm identifies an AEAD construction.
type Algorithm string

const (
	AES256GCM         Algorithm = "aes-256-gcm"
	XChaCha20Poly1305 Algorithm = "xchacha20-poly1305"
)

// KeySize is the symmetric key length used by every supported algorithm.
const KeySize = 32

// TagSize is the authentication tag length appended by both algorithms.
const TagSize = 16

var (
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	ErrAuthentication   = errors.New("message authentication failed")
	ErrMalformed        = errors.New("malformed ciphertext")
)

// KDFParams controls Argon2id cost. MemoryKiB is in KiB as required by
// argon2.IDKey.
type KDFParams struct {
	Iterations  uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultKDFParams matches the cost used for master key derivation.
func DefaultKDFParams() KDFParams {
	return KDFParams{Iterations: 1, MemoryKiB: 64 * 1024, Parallelism: 4}
}

// Validate rejects parameters argon2 would panic on or that are useless.
func (p KDFParams) Validate() error {
	if p.Iterations == 0 {
		return fmt.Errorf("kdf iterations must be positive")
	}
	if p.Parallelism == 0 {
		return fmt.Errorf("kdf parallelism must be positive")
	}
	if p.MemoryKiB < 8*uint32(p.Parallelism) {
		return fmt.Errorf("kdf memory must be at least %d KiB", 8*uint32(p.Parallelism))
	}
	return nil
}

// DeriveKey derives a KeySize-byte key from secret and salt with Argon2id.
func DeriveKey(secret, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(secret, salt, p.Iterations, p.MemoryKiB, p.Parallelism, KeySize)
}

// NewAEAD builds the AEAD for alg keyed with key.
func NewAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case XChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}

// NonceSize returns the nonce length used by alg.
func NonceSize(alg Algorithm) (int, error) {
	switch alg {
	case AES256GCM:
		return 12, nil
	case XChaCha20Poly1305:
		return chacha20poly1305.NonceSizeX, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}

// Sealed is the output of Seal with the authentication tag split off the
// ciphertext.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// Seal encrypts plaintext under key with a fresh random nonce.
func Seal(alg Algorithm, key, plaintext []byte) (Sealed, error) {
	aead, err := NewAEAD(alg, key)
	if err != nil {
		return Sealed{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, err
	}

	out := aead.Seal(nil, nonce, plaintext, nil)
	split := len(out) - aead.Overhead()

	return Sealed{Ciphertext: out[:split], Nonce: nonce, Tag: out[split:]}, nil
}

// Open authenticates and decrypts s. Any tampering with the ciphertext, nonce
// or tag, or a wrong key, yields ErrAuthentication.
func Open(alg Algorithm, key []byte, s Sealed) ([]byte, error) {
	aead, err := NewAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() || len(s.Tag) != aead.Overhead() {
		return nil, ErrMalformed
	}

	buf := make([]byte, 0, len(s.Ciphertext)+len(s.Tag))
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)

	plaintext, err := aead.Open(nil, s.Nonce, buf, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// DigestAlgorithm identifies the deterministic lookup digest.
type DigestAlgorithm string

const (
	DigestSHA256     DigestAlgorithm = "sha256"
	DigestHMACSHA256 DigestAlgorithm = "hmac-sha256"
)

// Digester computes deterministic hex digests used as lookup keys.
type Digester struct {
	alg DigestAlgorithm
	key []byte
}

// NewDigester returns a Digester for alg. key is only used by keyed
// algorithms and must be non-empty for them.
func NewDigester(alg DigestAlgorithm, key []byte) (*Digester, error) {
	switch alg {
	case DigestSHA256:
		return &Digester{alg: alg}, nil
	case DigestHMACSHA256:
		if len(key) == 0 {
			return nil, fmt.Errorf("%s requires a key", alg)
		}
		return &Digester{alg: alg, key: append([]byte(nil), key...)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}

// Digest returns the hex digest of data.
func (d *Digester) Digest(data []byte) string {
	if d.alg == DigestHMACSHA256 {
		m := hmac.New(sha256.New, d.key)
		m.Write(data)
		return hex.EncodeToString(m.Sum(nil))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Equal compares a and b in time that depends only on their lengths.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// EqualString is Equal for strings.
func EqualString(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
