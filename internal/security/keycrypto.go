package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
)

// ErrMasterKey is returned when encrypted key material cannot be decrypted,
// typically because the master secret is wrong or the ciphertext is corrupt.
// Callers must treat this as unrecoverable: the service can neither issue nor
// verify tokens without its signing keys.
var ErrMasterKey = errors.New("master key decryption failed")

// KeyCipher encrypts signing-key material at rest with AES-256-GCM. The AES
// key is derived from the process-wide master secret; the nonce is prepended
// to each ciphertext.
type KeyCipher struct {
	aead cipher.AEAD
}

// NewKeyCipher derives an AES-256 key from masterSecret and returns a cipher
// ready for use. masterSecret must be non-empty.
func NewKeyCipher(masterSecret string) (*KeyCipher, error) {
	if masterSecret == "" {
		return nil, errors.New("master secret is required")
	}
	sum := sha256.Sum256([]byte(masterSecret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &KeyCipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns nonce||ciphertext.
func (c *KeyCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens nonce||ciphertext produced by Encrypt. Returns ErrMasterKey
// when authentication fails or the input is malformed.
func (c *KeyCipher) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, ErrMasterKey
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrMasterKey
	}
	return plaintext, nil
}
