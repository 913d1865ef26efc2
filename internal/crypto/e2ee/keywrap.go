// Package e2ee implements the client-side end-to-end encryption used for
// direct messages: P-256 identity keys, password based private key wrapping
// for server custody, and AES-256-GCM message sealing under an ECDH shared
// key.
//
// All binary values cross the wire as standard base64 strings so the formats
// stay compatible with WebCrypto based clients (SPKI public keys, PKCS#8
// private keys, raw ECDH bits used directly as the AES key).
package e2ee

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is part of the persisted blob contract; changing it
	// locks out every previously registered account.
	PBKDF2Iterations = 100000

	saltSize    = 16
	nonceSize   = 12
	aesKeyBytes = 32
)

var (
	// ErrUnwrap covers wrong passwords and corrupt blobs alike.
	ErrUnwrap = errors.New("e2ee: unable to unwrap private key")

	ErrMalformedBlob      = errors.New("e2ee: malformed wrapped key blob")
	ErrInvalidPublicKey   = errors.New("e2ee: invalid public key")
	ErrUnsupportedKeyType = errors.New("e2ee: unsupported key type")
)

// WrappedKey is the persisted private key protection blob. The field names
// and base64 encoding are a stability contract with stored accounts.
type WrappedKey struct {
	Salt string `json:"salt"`
	IV   string `json:"iv"`
	Key  string `json:"key"`
}

// Marshal renders the blob as the JSON string stored by the server.
func (w *WrappedKey) Marshal() (string, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseWrappedKey decodes a stored blob and checks that every field is
// present and valid base64. It does not check the password.
func ParseWrappedKey(s string) (*WrappedKey, error) {
	var w WrappedKey
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, ErrMalformedBlob
	}
	if w.Salt == "" || w.IV == "" || w.Key == "" {
		return nil, ErrMalformedBlob
	}
	for _, field := range []string{w.Salt, w.IV, w.Key} {
		if _, err := base64.StdEncoding.DecodeString(field); err != nil {
			return nil, ErrMalformedBlob
		}
	}
	return &w, nil
}

// GenerateIdentityKeyPair creates a P-256 key agreement keypair.
func GenerateIdentityKeyPair() (*ecdh.PrivateKey, error) {
	return ecdh.P256().GenerateKey(rand.Reader)
}

// ExportPublicKey encodes a public key as base64 SPKI DER.
func ExportPublicKey(pub *ecdh.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("e2ee: export public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPublicKey parses a base64 SPKI DER P-256 public key.
func ImportPublicKey(s string) (*ecdh.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	switch k := parsed.(type) {
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, ErrUnsupportedKeyType
		}
		return k.ECDH()
	case *ecdh.PublicKey:
		if k.Curve() != ecdh.P256() {
			return nil, ErrUnsupportedKeyType
		}
		return k, nil
	default:
		return nil, ErrUnsupportedKeyType
	}
}

// MarshalPrivateKey encodes a private key as PKCS#8 DER.
func MarshalPrivateKey(priv *ecdh.PrivateKey) ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(priv)
}

// ParsePrivateKey decodes a PKCS#8 DER P-256 private key.
func ParsePrivateKey(der []byte) (*ecdh.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	switch k := parsed.(type) {
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return nil, ErrUnsupportedKeyType
		}
		return k.ECDH()
	case *ecdh.PrivateKey:
		if k.Curve() != ecdh.P256() {
			return nil, ErrUnsupportedKeyType
		}
		return k, nil
	default:
		return nil, ErrUnsupportedKeyType
	}
}

// WrapPrivateKey seals the private key under an AES-256-GCM key derived from
// password with PBKDF2-SHA256 and a fresh random salt. The PKCS#8 encoding only
// exists inside this function and is zeroed once sealed.
func WrapPrivateKey(priv *ecdh.PrivateKey, password string) (*WrappedKey, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	aead, err := newGCM(deriveWrappingKey(password, salt))
	if err != nil {
		return nil, err
	}

	der, err := MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("e2ee: wrap private key: %w", err)
	}
	defer clear(der)

	wrapped := aead.Seal(nil, iv, der, nil)
	return &WrappedKey{
		Salt: base64.StdEncoding.EncodeToString(salt),
		IV:   base64.StdEncoding.EncodeToString(iv),
		Key:  base64.StdEncoding.EncodeToString(wrapped),
	}, nil
}

// UnwrapPrivateKey reverses WrapPrivateKey. Every failure returns ErrUnwrap.
func UnwrapPrivateKey(blob *WrappedKey, password string) (*ecdh.PrivateKey, error) {
	if blob == nil {
		return nil, ErrUnwrap
	}
	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil || len(salt) == 0 {
		return nil, ErrUnwrap
	}
	iv, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil || len(iv) != nonceSize {
		return nil, ErrUnwrap
	}
	wrapped, err := base64.StdEncoding.DecodeString(blob.Key)
	if err != nil {
		return nil, ErrUnwrap
	}

	aead, err := newGCM(deriveWrappingKey(password, salt))
	if err != nil {
		return nil, ErrUnwrap
	}
	der, err := aead.Open(nil, iv, wrapped, nil)
	if err != nil {
		return nil, ErrUnwrap
	}
	defer clear(der)

	priv, err := ParsePrivateKey(der)
	if err != nil {
		return nil, ErrUnwrap
	}
	return priv, nil
}

// UnwrapPrivateKeyString parses a stored blob and unwraps it.
func UnwrapPrivateKeyString(blob string, password string) (*ecdh.PrivateKey, error) {
	w, err := ParseWrappedKey(blob)
	if err != nil {
		return nil, ErrUnwrap
	}
	return UnwrapPrivateKey(w, password)
}

func deriveWrappingKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, aesKeyBytes, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
