// Package keystore keeps a device's unwrapped private key between runs.
//
// The store is a bbolt file holding one bucket per origin (the server base
// URL), so sessions against different servers never see each other's keys.
// Nothing in here is ever sent over the network.
package keystore

import (
	"crypto/ecdh"
	"errors"
	"fmt"
	"sync"
	"time"

	"buddywalk/internal/crypto/e2ee"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	recordVersion = 1

	privateKeyKey = "privateKey"
	sessionKey    = "session"
)

var ErrIncompatibleRecord = errors.New("keystore: incompatible key record")

type keyRecord struct {
	Version  int    `cbor:"1,keyasint"`
	Curve    string `cbor:"2,keyasint"`
	PKCS8    []byte `cbor:"3,keyasint"`
	StoredAt int64  `cbor:"4,keyasint"`
}

// Store is a persistent, origin scoped private key store.
type Store struct {
	sync.Mutex

	db     *bolt.DB
	bucket []byte
}

// Open opens (or creates) the key store file at path for origin. bbolt holds
// an exclusive file lock, so a second process opening the same file waits
// up to one second and then fails.
func Open(path, origin string) (*Store, error) {
	if origin == "" {
		return nil, fmt.Errorf("keystore: origin required")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("keystore: open %s: %w", path, err)
	}

	s := &Store{db: db, bucket: []byte("origin:" + origin)}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Store persists the private key, replacing any previous one.
func (s *Store) Store(priv *ecdh.PrivateKey) error {
	der, err := e2ee.MarshalPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("keystore: encode private key: %w", err)
	}
	defer clear(der)

	raw, err := cbor.Marshal(&keyRecord{
		Version:  recordVersion,
		Curve:    "P-256",
		PKCS8:    der,
		StoredAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(privateKeyKey), raw)
	})
}

// Load returns the stored private key, or nil if none is stored.
func (s *Store) Load() (*ecdh.PrivateKey, error) {
	raw, err := s.get(privateKeyKey)
	if err != nil || raw == nil {
		return nil, err
	}

	var rec keyRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("keystore: decode record: %w", err)
	}
	defer clear(rec.PKCS8)
	if rec.Version != recordVersion {
		return nil, ErrIncompatibleRecord
	}
	priv, err := e2ee.ParsePrivateKey(rec.PKCS8)
	if err != nil {
		return nil, fmt.Errorf("keystore: parse private key: %w", err)
	}
	return priv, nil
}

// SetSession remembers the bearer token of the current login.
func (s *Store) SetSession(token string) error {
	s.Lock()
	defer s.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(sessionKey), []byte(token))
	})
}

// Session returns the remembered bearer token, or "" if there is none.
func (s *Store) Session() (string, error) {
	raw, err := s.get(sessionKey)
	return string(raw), err
}

// Clear drops everything stored for this origin. It must be called on logout
// and on account deletion.
func (s *Store) Clear() error {
	s.Lock()
	defer s.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
}

func (s *Store) Close() error {
	s.Lock()
	defer s.Unlock()
	return s.db.Close()
}

func (s *Store) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v != nil {
			// Values are only valid for the life of the transaction.
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}
