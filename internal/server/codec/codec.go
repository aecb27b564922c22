// Package codec turns plaintext field values into stored fields and back.
//
// Every encrypted value gets its own random salt; the AEAD key is derived
// from the master secret and that salt with Argon2id. Indexed fields also get
// a deterministic hex digest of their canonical bytes so they can be looked up
// by equality without decrypting anything.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/cryptox"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
)

// Config selects algorithms and cost parameters.
type Config struct {
	Algorithm  cryptox.Algorithm
	Digest     cryptox.DigestAlgorithm
	SaltLength int
	KDF        cryptox.KDFParams
}

// DefaultConfig is the production configuration.
func DefaultConfig() Config {
	return Config{
		Algorithm:  cryptox.AES256GCM,
		Digest:     cryptox.DigestSHA256,
		SaltLength: 16,
		KDF:        cryptox.KDFParams{Iterations: 1, MemoryKiB: 19 * 1024, Parallelism: 2},
	}
}

// indexKeySalt separates the lookup-digest key from per-value keys.
var indexKeySalt = []byte("learnkeeper/index-hash/v1")

var ErrWrongEncoding = errors.New("value does not match field encoding")

// Codec is safe for concurrent use; it holds no mutable state.
type Codec struct {
	secret   []byte
	cfg      Config
	digester *cryptox.Digester
}

// New builds a Codec for masterSecret.
func New(masterSecret []byte, cfg Config) (*Codec, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("master secret is empty")
	}
	if cfg.SaltLength < 8 {
		return nil, fmt.Errorf("salt length %d is below 8 bytes", cfg.SaltLength)
	}
	if err := cfg.KDF.Validate(); err != nil {
		return nil, err
	}
	if _, err := cryptox.NonceSize(cfg.Algorithm); err != nil {
		return nil, err
	}

	var digestKey []byte
	if cfg.Digest == cryptox.DigestHMACSHA256 {
		digestKey = cryptox.DeriveKey(masterSecret, indexKeySalt, cfg.KDF)
	}
	d, err := cryptox.NewDigester(cfg.Digest, digestKey)
	if err != nil {
		return nil, err
	}

	return &Codec{secret: append([]byte(nil), masterSecret...), cfg: cfg, digester: d}, nil
}

// Canonical returns the bytes that are encrypted and hashed for value.
func Canonical(value string, enc schema.Encoding) ([]byte, error) {
	switch enc {
	case schema.UTF8:
		return []byte(value), nil
	case schema.Base64:
		if b, err := base64.StdEncoding.DecodeString(value); err == nil {
			return b, nil
		}
		b, err := base64.RawStdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrWrongEncoding, enc)
		}
		return b, nil
	case schema.Hex:
		b, err := hex.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrWrongEncoding, enc)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s cannot be encrypted", ErrWrongEncoding, enc)
	}
}

func render(b []byte, enc schema.Encoding) string {
	switch enc {
	case schema.Base64:
		return base64.StdEncoding.EncodeToString(b)
	case schema.Hex:
		return hex.EncodeToString(b)
	default:
		return string(b)
	}
}

// Encrypt encrypts value under a fresh salt and IV.
func (c *Codec) Encrypt(value string, enc schema.Encoding) (*models.EncryptedValue, error) {
	plain, err := Canonical(value, enc)
	if err != nil {
		return nil, err
	}
	return c.encryptBytes(plain)
}

func (c *Codec) encryptBytes(plain []byte) (*models.EncryptedValue, error) {
	salt := common.GenerateRandByteArray(c.cfg.SaltLength)
	key := cryptox.DeriveKey(c.secret, salt, c.cfg.KDF)
	defer common.WipeByteArray(key)

	sealed, err := cryptox.Seal(c.cfg.Algorithm, key, plain)
	if err != nil {
		return nil, err
	}

	b64 := base64.StdEncoding.EncodeToString
	return &models.EncryptedValue{
		Ciphertext: b64(sealed.Ciphertext),
		Salt:       b64(salt),
		IV:         b64(sealed.Nonce),
		AuthTag:    b64(sealed.Tag),
		Alg:        string(c.cfg.Algorithm),
	}, nil
}

// Decrypt authenticates and decrypts ev. Any failure is a decryption error;
// no partial or default value is ever returned.
func (c *Codec) Decrypt(ev *models.EncryptedValue, enc schema.Encoding) (string, error) {
	plain, err := c.decryptBytes(ev)
	if err != nil {
		return "", common.Decryption("", err)
	}
	return render(plain, enc), nil
}

func (c *Codec) decryptBytes(ev *models.EncryptedValue) ([]byte, error) {
	if ev == nil {
		return nil, cryptox.ErrMalformed
	}

	dec := base64.StdEncoding.DecodeString
	ct, err1 := dec(ev.Ciphertext)
	salt, err2 := dec(ev.Salt)
	iv, err3 := dec(ev.IV)
	tag, err4 := dec(ev.AuthTag)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, fmt.Errorf("%w: %v", cryptox.ErrMalformed, err)
	}

	// Values written before an algorithm switch keep their own identifier.
	alg := cryptox.Algorithm(ev.Alg)
	if alg == "" {
		alg = c.cfg.Algorithm
	}

	key := cryptox.DeriveKey(c.secret, salt, c.cfg.KDF)
	defer common.WipeByteArray(key)

	return cryptox.Open(alg, key, cryptox.Sealed{Ciphertext: ct, Nonce: iv, Tag: tag})
}

// IndexHash returns the deterministic lookup digest of value.
func (c *Codec) IndexHash(value string, enc schema.Encoding) (string, error) {
	b, err := Canonical(value, enc)
	if err != nil {
		return "", err
	}
	return c.digester.Digest(b), nil
}

// Seal encrypts a utf8 value into a compact URL-safe string.
func (c *Codec) Seal(value string) (string, error) {
	ev, err := c.encryptBytes([]byte(value))
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Open reverses Seal.
func (c *Codec) Open(sealed string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", common.Decryption("", cryptox.ErrMalformed)
	}
	var ev models.EncryptedValue
	if err := json.Unmarshal(b, &ev); err != nil {
		return "", common.Decryption("", cryptox.ErrMalformed)
	}
	plain, err := c.decryptBytes(&ev)
	if err != nil {
		return "", common.Decryption("", err)
	}
	return string(plain), nil
}
