package e2ee

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecrypt is returned for tampered ciphertext, a wrong IV or wrong keys.
var ErrDecrypt = errors.New("e2ee: message could not be decrypted")

// UndecryptablePlaceholder replaces a message body that failed to decrypt.
const UndecryptablePlaceholder = "[message could not be decrypted]"

// Sealed is an encrypted message body as sent to the server.
type Sealed struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// DeriveSharedKey runs ECDH and returns the 32 raw shared bytes, used as the
// AES-256 key without further expansion. DeriveSharedKey(a, B) equals
// DeriveSharedKey(b, A) for any two P-256 keypairs.
func DeriveSharedKey(myPrivateKey *ecdh.PrivateKey, theirPublicKey *ecdh.PublicKey) ([]byte, error) {
	if myPrivateKey == nil || theirPublicKey == nil {
		return nil, fmt.Errorf("e2ee: derive shared key: missing key")
	}
	secret, err := myPrivateKey.ECDH(theirPublicKey)
	if err != nil {
		return nil, fmt.Errorf("e2ee: derive shared key: %w", err)
	}
	return secret, nil
}

// Encrypt seals plaintext for the peer under a fresh random 12-byte IV.
func Encrypt(myPrivateKey *ecdh.PrivateKey, theirPublicKey *ecdh.PublicKey, plaintext string) (*Sealed, error) {
	key, err := DeriveSharedKey(myPrivateKey, theirPublicKey)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, iv, []byte(plaintext), nil)
	return &Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// Decrypt opens a message sealed by Encrypt. Any failure yields ErrDecrypt.
func Decrypt(myPrivateKey *ecdh.PrivateKey, theirPublicKey *ecdh.PublicKey, ciphertext, iv string) (string, error) {
	rawIV, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(rawIV) != nonceSize {
		return "", ErrDecrypt
	}
	rawCiphertext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}

	key, err := DeriveSharedKey(myPrivateKey, theirPublicKey)
	if err != nil {
		return "", ErrDecrypt
	}
	defer clear(key)

	aead, err := newGCM(key)
	if err != nil {
		return "", ErrDecrypt
	}
	plaintext, err := aead.Open(nil, rawIV, rawCiphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// DecryptOrPlaceholder never fails: a message that cannot be opened renders
// as UndecryptablePlaceholder so the rest of a conversation still displays.
func DecryptOrPlaceholder(myPrivateKey *ecdh.PrivateKey, theirPublicKey *ecdh.PublicKey, ciphertext, iv string) (string, bool) {
	plaintext, err := Decrypt(myPrivateKey, theirPublicKey, ciphertext, iv)
	if err != nil {
		return UndecryptablePlaceholder, false
	}
	return plaintext, true
}
