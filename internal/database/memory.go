package database

import (
	"context"
	"strings"
	"sync"
	"time"

	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/google/uuid"
)

type pairKey struct {
	userID  uuid.UUID
	otherID uuid.UUID
}

// MemoryDB is an in-process DBAdapter used for development and tests.
type MemoryDB struct {
	mu sync.RWMutex

	users     map[uuid.UUID]*models.User
	messages  map[uuid.UUID]*models.DirectMessage
	order     []*models.DirectMessage
	reads     map[pairKey]time.Time
	deletions map[pairKey]time.Time
	blocks    map[pairKey]time.Time
	seq       int64
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:     make(map[uuid.UUID]*models.User),
		messages:  make(map[uuid.UUID]*models.DirectMessage),
		reads:     make(map[pairKey]time.Time),
		deletions: make(map[pairKey]time.Time),
		blocks:    make(map[pairKey]time.Time),
	}
}

func (m *MemoryDB) Close(ctx context.Context) error {
	return nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyMessage(msg *models.DirectMessage) *models.DirectMessage {
	c := *msg
	return &c
}

func (m *MemoryDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id.String())
	}
	return copyUser(u), nil
}

func (m *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, utils.NewUserNotFoundError(email)
}

func (m *MemoryDB) SaveUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	stored := copyUser(user)
	// Key columns are only set on insert or through SetUserKeys.
	if existing, ok := m.users[user.ID]; ok {
		stored.PublicKey = existing.PublicKey
		stored.EncryptedPrivateKey = existing.EncryptedPrivateKey
		stored.CreatedAt = existing.CreatedAt
	}
	m.users[user.ID] = stored
	return nil
}

func (m *MemoryDB) SetUserKeys(ctx context.Context, userID uuid.UUID, publicKey, encryptedPrivateKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return utils.NewUserNotFoundError(userID.String())
	}
	if u.PublicKey != nil || u.EncryptedPrivateKey != nil {
		return newKeysExistError(userID)
	}
	u.PublicKey = &publicKey
	u.EncryptedPrivateKey = &encryptedPrivateKey
	return nil
}

func (m *MemoryDB) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ab := m.blocks[pairKey{a, b}]
	_, ba := m.blocks[pairKey{b, a}]
	return ab || ba, nil
}

func (m *MemoryDB) GetBlockedPartners(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uuid.UUID]bool)
	for k := range m.blocks {
		if k.userID == userID {
			out[k.otherID] = true
		}
		if k.otherID == userID {
			out[k.userID] = true
		}
	}
	return out, nil
}

func (m *MemoryDB) AddBlock(ctx context.Context, userID, blockedUserID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey{userID, blockedUserID}
	if _, exists := m.blocks[k]; !exists {
		m.blocks[k] = time.Now()
	}
	return nil
}

func (m *MemoryDB) RemoveBlock(ctx context.Context, userID, blockedUserID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, pairKey{userID, blockedUserID})
	return nil
}

func (m *MemoryDB) GetBlocksByUser(ctx context.Context, userID uuid.UUID) ([]*models.BlockRelation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.BlockRelation, 0)
	for k, at := range m.blocks {
		if k.userID == userID {
			out = append(out, &models.BlockRelation{UserID: k.userID, BlockedUserID: k.otherID, CreatedAt: at})
		}
	}
	return out, nil
}

func (m *MemoryDB) SaveMessage(ctx context.Context, msg *models.DirectMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	msg.Seq = m.seq
	stored := copyMessage(msg)
	m.messages[msg.ID] = stored
	m.order = append(m.order, stored)
	return nil
}

func (m *MemoryDB) GetMessage(ctx context.Context, msgID uuid.UUID) (*models.DirectMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[msgID]
	if !ok {
		return nil, newMessageNotFoundError(msgID)
	}
	return copyMessage(msg), nil
}

func (m *MemoryDB) DeactivateMessage(ctx context.Context, msgID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[msgID]
	if !ok {
		return newMessageNotFoundError(msgID)
	}
	msg.Active = false
	return nil
}

func (m *MemoryDB) GetConversation(ctx context.Context, a, b uuid.UUID) ([]*models.DirectMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.DirectMessage, 0)
	for _, msg := range m.order {
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			out = append(out, copyMessage(msg))
		}
	}
	return out, nil
}

func (m *MemoryDB) GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.DirectMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.DirectMessage, 0)
	for _, msg := range m.order {
		if msg.SenderID == userID || msg.ReceiverID == userID {
			out = append(out, copyMessage(msg))
		}
	}
	return out, nil
}

func (m *MemoryDB) UpsertReadMarker(ctx context.Context, userID, otherID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[pairKey{userID, otherID}] = at
	return nil
}

func (m *MemoryDB) GetReadMarker(ctx context.Context, userID, otherID uuid.UUID) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.reads[pairKey{userID, otherID}]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (m *MemoryDB) GetReadMarkers(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return markersFor(m.reads, userID), nil
}

func (m *MemoryDB) UpsertDeletionMarker(ctx context.Context, userID, otherID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletions[pairKey{userID, otherID}] = at
	return nil
}

func (m *MemoryDB) GetDeletionMarker(ctx context.Context, userID, otherID uuid.UUID) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.deletions[pairKey{userID, otherID}]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (m *MemoryDB) GetDeletionMarkers(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return markersFor(m.deletions, userID), nil
}

func markersFor(markers map[pairKey]time.Time, userID uuid.UUID) map[uuid.UUID]time.Time {
	out := make(map[uuid.UUID]time.Time)
	for k, at := range markers {
		if k.userID == userID {
			out[k.otherID] = at
		}
	}
	return out
}
