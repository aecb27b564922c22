package cryptox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKDF = KDFParams{Iterations: 1, MemoryKiB: 64, Parallelism: 1}

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(secret, salt, testKDF)
	key2 := DeriveKey(secret, salt, testKDF)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != KeySize {
		t.Errorf("expected %d byte key, got %d", KeySize, len(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	secret := []byte("secret-password")

	key1 := DeriveKey(secret, []byte("salt-1"), testKDF)
	key2 := DeriveKey(secret, []byte("salt-2"), testKDF)

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestKDFParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultKDFParams().Validate())
	assert.NoError(t, testKDF.Validate())
	assert.Error(t, KDFParams{Iterations: 0, MemoryKiB: 64, Parallelism: 1}.Validate())
	assert.Error(t, KDFParams{Iterations: 1, MemoryKiB: 64, Parallelism: 0}.Validate())
	assert.Error(t, KDFParams{Iterations: 1, MemoryKiB: 8, Parallelism: 4}.Validate())
}

func TestSealOpen_RoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AES256GCM, XChaCha20Poly1305} {
		t.Run(string(alg), func(t *testing.T) {
			key := bytes.Repeat([]byte{7}, KeySize)
			plaintext := []byte("alice@example.com")

			s, err := Seal(alg, key, plaintext)
			require.NoError(t, err)
			assert.Len(t, s.Tag, TagSize)
			n, _ := NonceSize(alg)
			assert.Len(t, s.Nonce, n)
			assert.NotEqual(t, plaintext, s.Ciphertext)

			got, err := Open(alg, key, s)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)
		})
	}
}

func TestOpen_DetectsTampering(t *testing.T) {
	key := bytes.Repeat([]byte{1}, KeySize)
	s, err := Seal(AES256GCM, key, []byte("4242 4242 4242 4242"))
	require.NoError(t, err)

	for i := range s.Ciphertext {
		bad := Sealed{Ciphertext: append([]byte(nil), s.Ciphertext...), Nonce: s.Nonce, Tag: s.Tag}
		bad.Ciphertext[i] ^= 0x01
		_, err := Open(AES256GCM, key, bad)
		assert.ErrorIs(t, err, ErrAuthentication, "ciphertext byte %d", i)
	}
	for i := range s.Tag {
		bad := Sealed{Ciphertext: s.Ciphertext, Nonce: s.Nonce, Tag: append([]byte(nil), s.Tag...)}
		bad.Tag[i] ^= 0x80
		_, err := Open(AES256GCM, key, bad)
		assert.ErrorIs(t, err, ErrAuthentication, "tag byte %d", i)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	s, err := Seal(XChaCha20Poly1305, bytes.Repeat([]byte{1}, KeySize), []byte("x"))
	require.NoError(t, err)

	_, err = Open(XChaCha20Poly1305, bytes.Repeat([]byte{2}, KeySize), s)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestOpen_Malformed(t *testing.T) {
	key := bytes.Repeat([]byte{1}, KeySize)
	_, err := Open(AES256GCM, key, Sealed{Ciphertext: []byte("x"), Nonce: []byte("short"), Tag: make([]byte, TagSize)})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewAEAD_UnknownAlgorithm(t *testing.T) {
	_, err := NewAEAD("rot13", make([]byte, KeySize))
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestDigester(t *testing.T) {
	plain, err := NewDigester(DigestSHA256, nil)
	require.NoError(t, err)
	keyed, err := NewDigester(DigestHMACSHA256, []byte("k"))
	require.NoError(t, err)

	a := plain.Digest([]byte("alice"))
	assert.Equal(t, a, plain.Digest([]byte("alice")))
	assert.NotEqual(t, a, plain.Digest([]byte("alicf")))
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", plain.Digest([]byte("abc")))

	assert.NotEqual(t, a, keyed.Digest([]byte("alice")))
	assert.Equal(t, keyed.Digest([]byte("alice")), keyed.Digest([]byte("alice")))

	_, err = NewDigester(DigestHMACSHA256, nil)
	assert.Error(t, err)
	_, err = NewDigester("md5", nil)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestEqual_ConstantTimeComparator(t *testing.T) {
	assert.True(t, Equal([]byte("same"), []byte("same")))
	assert.False(t, Equal([]byte("same"), []byte("sane")))
	assert.False(t, Equal([]byte("same"), []byte("same-but-longer")))
	assert.False(t, Equal([]byte("xame"), []byte("same")))
	assert.True(t, EqualString("", ""))
	assert.False(t, EqualString("123456", "123457"))
}
