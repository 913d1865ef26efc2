package client

import (
	"crypto/ecdh"
	"sync"
)

// MemoryKeyStore is a KeyStore that lives only as long as the process. It
// suits simulations and tests; real devices use the bbolt store.
type MemoryKeyStore struct {
	mu      sync.Mutex
	priv    *ecdh.PrivateKey
	session string
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{}
}

func (m *MemoryKeyStore) Store(priv *ecdh.PrivateKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priv = priv
	return nil
}

func (m *MemoryKeyStore) Load() (*ecdh.PrivateKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priv, nil
}

func (m *MemoryKeyStore) SetSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = token
	return nil
}

func (m *MemoryKeyStore) Session() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

func (m *MemoryKeyStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priv, m.session = nil, ""
	return nil
}
