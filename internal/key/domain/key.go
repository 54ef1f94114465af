package domain

import (
	"errors"
	"time"
)

// Key is one RSA signing keypair. The private half is stored encrypted and is
// only decrypted in memory at signing time; the public half is plain PEM so
// verification never needs the master secret.
type Key struct {
	ID                  string
	Purpose             KeyPurpose
	EncryptedPrivateKey []byte
	PublicKey           string
	Active              bool
	CreatedAt           time.Time
	DeletedAt           *time.Time
}

// KeyPurpose binds a keypair to a single token family. Tokens signed for one
// purpose never verify against keys of another.
type KeyPurpose string

const (
	KeyPurposeAccess        KeyPurpose = "access_key"
	KeyPurposeRefresh       KeyPurpose = "refresh_key"
	KeyPurposeConfirmation  KeyPurpose = "confirmation_user_key"
	KeyPurposeResetPassword KeyPurpose = "reset_password_key"
)

// Purposes lists every key purpose, in the order bootstrap provisions them.
func Purposes() []KeyPurpose {
	return []KeyPurpose{
		KeyPurposeAccess,
		KeyPurposeRefresh,
		KeyPurposeConfirmation,
		KeyPurposeResetPassword,
	}
}

// Valid reports whether p is a known purpose.
func (p KeyPurpose) Valid() bool {
	switch p {
	case KeyPurposeAccess, KeyPurposeRefresh, KeyPurposeConfirmation, KeyPurposeResetPassword:
		return true
	}
	return false
}

// Validate validates the key for persistence.
func (k *Key) Validate() error {
	if k.ID == "" {
		return errors.New("id is required")
	}
	if !k.Purpose.Valid() {
		return errors.New("unknown key purpose")
	}
	if len(k.EncryptedPrivateKey) == 0 {
		return errors.New("encrypted private key is required")
	}
	if k.PublicKey == "" {
		return errors.New("public key is required")
	}
	return nil
}
