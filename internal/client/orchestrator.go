package client

import (
	"context"
	"crypto/ecdh"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"buddywalk/internal/api"
	"buddywalk/internal/crypto/e2ee"
	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/google/uuid"
)

// EncryptedPlaceholder is shown for an encrypted message when this device
// or the peer has no keypair, so decryption is not even attempted.
const EncryptedPlaceholder = "[encrypted message]"

var (
	ErrNotLoggedIn = errors.New("client: not logged in")

	// ErrSessionInvalid means the server session exists but this device has
	// no private key. The caller has already been logged out.
	ErrSessionInvalid = errors.New("client: session has no private key, log in again")
)

// Backend is the subset of the engine API the orchestrator needs.
type Backend interface {
	SetToken(token string)
	Register(ctx context.Context, req api.RegisterUserRequest) (*api.Profile, error)
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Me(ctx context.Context) (*api.Profile, error)
	PublicKey(ctx context.Context, userID string) (*string, error)
	UploadKeys(ctx context.Context, publicKey, encryptedPrivateKey string) error
	Send(ctx context.Context, req api.SendMessageRequest) (*models.DirectMessage, error)
	History(ctx context.Context, otherID string) (*models.History, error)
	MarkRead(ctx context.Context, otherID string) error
	Inbox(ctx context.Context) ([]*models.InboxItem, error)
}

// KeyStore persists the unwrapped private key and the session token on this
// device. *keystore.Store implements it.
type KeyStore interface {
	Store(priv *ecdh.PrivateKey) error
	Load() (*ecdh.PrivateKey, error)
	SetSession(token string) error
	Session() (string, error)
	Clear() error
}

// SignupInput is the profile sent on registration.
type SignupInput struct {
	Name            string
	DogName         string
	Email           string
	Password        string
	Gender          string
	VisibleToGender string
}

// Message is one rendered chat line.
type Message struct {
	ID        uuid.UUID
	SenderID  uuid.UUID
	Mine      bool
	Text      string
	Encrypted bool
	// Readable is false when Text is a placeholder.
	Readable  bool
	CreatedAt time.Time
}

type Conversation struct {
	PeerID   uuid.UUID
	Messages []Message
	// SeenAt is when the peer last marked this conversation read.
	SeenAt *time.Time
}

type InboxEntry struct {
	PeerID    uuid.UUID
	PeerName  string
	DogName   string
	Preview   Message
	HasUnread bool
}

// Orchestrator wraps the engine API with client side encryption.
type Orchestrator struct {
	backend Backend
	keys    KeyStore

	mu     sync.RWMutex
	priv   *ecdh.PrivateKey
	userID uuid.UUID
}

func NewOrchestrator(backend Backend, keys KeyStore) *Orchestrator {
	return &Orchestrator{backend: backend, keys: keys}
}

// UserID is the logged-in user, or uuid.Nil.
func (o *Orchestrator) UserID() uuid.UUID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.userID
}

func (o *Orchestrator) identity() (*ecdh.PrivateKey, uuid.UUID) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.priv, o.userID
}

// Register creates an account with a keypair generated on this device and
// logs in.
func (o *Orchestrator) Register(ctx context.Context, in SignupInput) error {
	pub, blob, _, err := newWrappedKeyPair(in.Password)
	if err != nil {
		return err
	}
	if _, err := o.backend.Register(ctx, api.RegisterUserRequest{
		Name:                in.Name,
		DogName:             in.DogName,
		Email:               in.Email,
		Password:            in.Password,
		Gender:              in.Gender,
		VisibleToGender:     in.VisibleToGender,
		PublicKey:           pub,
		EncryptedPrivateKey: blob,
	}); err != nil {
		return err
	}
	return o.Login(ctx, in.Email, in.Password)
}

// Login authenticates and makes the private key available on this device:
// the server's wrapped copy is unwrapped with password, or, for accounts that
// predate keys, a fresh keypair is generated and uploaded.
func (o *Orchestrator) Login(ctx context.Context, email, password string) error {
	resp, err := o.backend.Login(ctx, email, password)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(resp.UserID)
	if err != nil {
		o.backend.SetToken("")
		return fmt.Errorf("client: login returned bad user id: %w", err)
	}

	var priv *ecdh.PrivateKey
	if resp.EncryptedPrivateKey != nil {
		priv, err = e2ee.UnwrapPrivateKeyString(*resp.EncryptedPrivateKey, password)
		if err != nil {
			o.backend.SetToken("")
			return err
		}
	} else {
		var pub, blob string
		pub, blob, priv, err = newWrappedKeyPair(password)
		if err != nil {
			o.backend.SetToken("")
			return err
		}
		if err := o.backend.UploadKeys(ctx, pub, blob); err != nil {
			o.backend.SetToken("")
			return err
		}
		log.Printf("Client: issued keys for user %s", userID)
	}

	if err := o.keys.Store(priv); err != nil {
		o.backend.SetToken("")
		return err
	}
	if err := o.keys.SetSession(resp.Token); err != nil {
		o.backend.SetToken("")
		return err
	}

	o.mu.Lock()
	o.priv = priv
	o.userID = userID
	o.mu.Unlock()
	return nil
}

// Restore resumes the session remembered in the key store. A session that
// the server still accepts but that has no local private key is destroyed.
func (o *Orchestrator) Restore(ctx context.Context) error {
	token, err := o.keys.Session()
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNotLoggedIn
	}
	o.backend.SetToken(token)

	profile, err := o.backend.Me(ctx)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			o.Logout()
			return ErrNotLoggedIn
		}
		return err
	}
	userID, err := uuid.Parse(profile.ID)
	if err != nil {
		return fmt.Errorf("client: profile returned bad user id: %w", err)
	}

	priv, err := o.keys.Load()
	if err != nil || priv == nil {
		if err != nil {
			log.Printf("Client: unreadable key store, logging out: %v", err)
		}
		o.Logout()
		return ErrSessionInvalid
	}

	o.mu.Lock()
	o.priv = priv
	o.userID = userID
	o.mu.Unlock()
	return nil
}

// Logout forgets the token and every key held on this device.
func (o *Orchestrator) Logout() error {
	o.backend.SetToken("")
	o.mu.Lock()
	o.priv = nil
	o.userID = uuid.Nil
	o.mu.Unlock()
	return o.keys.Clear()
}

// Send encrypts text for peerID when both sides have keys and falls back to
// plaintext otherwise, then marks the conversation read.
func (o *Orchestrator) Send(ctx context.Context, peerID, text string) (*models.DirectMessage, error) {
	priv, self := o.identity()
	if self == uuid.Nil {
		return nil, ErrNotLoggedIn
	}

	req := api.SendMessageRequest{ReceiverID: peerID, Content: text}
	peerKey, err := o.backend.PublicKey(ctx, peerID)
	if err != nil {
		return nil, unreachable(err)
	}
	if priv != nil && peerKey != nil {
		peerPub, err := e2ee.ImportPublicKey(*peerKey)
		if err != nil {
			return nil, err
		}
		sealed, err := e2ee.Encrypt(priv, peerPub, text)
		if err != nil {
			return nil, err
		}
		req.Content = sealed.Ciphertext
		req.IV = sealed.IV
	}

	msg, err := o.backend.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := o.backend.MarkRead(ctx, peerID); err != nil {
		return nil, err
	}
	return msg, nil
}

// Conversation fetches and decrypts the history with peerID. Messages that
// cannot be decrypted render as placeholders.
func (o *Orchestrator) Conversation(ctx context.Context, peerID string) (*Conversation, error) {
	priv, self := o.identity()
	if self == uuid.Nil {
		return nil, ErrNotLoggedIn
	}

	history, err := o.backend.History(ctx, peerID)
	if err != nil {
		return nil, err
	}
	peerPub := importOrNil(history.OtherPublicKey)

	conv := &Conversation{SeenAt: history.PartnerLastSeenAt}
	conv.PeerID, _ = uuid.Parse(peerID)
	conv.Messages = make([]Message, 0, len(history.Messages))
	for _, m := range history.Messages {
		text, readable := render(priv, peerPub, m.Content, m.IV)
		conv.Messages = append(conv.Messages, Message{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Mine:      m.SenderID == self,
			Text:      text,
			Encrypted: m.IsEncrypted(),
			Readable:  readable,
			CreatedAt: m.CreatedAt,
		})
	}
	return conv, nil
}

// Inbox fetches and decrypts the inbox previews.
func (o *Orchestrator) Inbox(ctx context.Context) ([]InboxEntry, error) {
	priv, self := o.identity()
	if self == uuid.Nil {
		return nil, ErrNotLoggedIn
	}

	items, err := o.backend.Inbox(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]InboxEntry, 0, len(items))
	for _, item := range items {
		text, readable := render(priv, importOrNil(item.OtherPublicKey), item.Content, item.IV)
		encrypted := item.IV != nil && *item.IV != ""
		entries = append(entries, InboxEntry{
			PeerID:    item.OtherID,
			PeerName:  item.OtherName,
			DogName:   item.OtherDogName,
			HasUnread: item.HasUnread,
			Preview: Message{
				ID:        item.MessageID,
				SenderID:  item.SenderID,
				Mine:      item.SenderID == self,
				Text:      text,
				Encrypted: encrypted,
				Readable:  readable,
				CreatedAt: item.CreatedAt,
			},
		})
	}
	return entries, nil
}

func render(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey, content string, iv *string) (string, bool) {
	if iv == nil || *iv == "" {
		return content, true
	}
	if priv == nil || peerPub == nil {
		return EncryptedPlaceholder, false
	}
	return e2ee.DecryptOrPlaceholder(priv, peerPub, content, *iv)
}

func importOrNil(key *string) *ecdh.PublicKey {
	if key == nil {
		return nil
	}
	pub, err := e2ee.ImportPublicKey(*key)
	if err != nil {
		return nil
	}
	return pub
}

func newWrappedKeyPair(password string) (pub, blob string, priv *ecdh.PrivateKey, err error) {
	priv, err = e2ee.GenerateIdentityKeyPair()
	if err != nil {
		return "", "", nil, err
	}
	pub, err = e2ee.ExportPublicKey(priv.PublicKey())
	if err != nil {
		return "", "", nil, err
	}
	wrapped, err := e2ee.WrapPrivateKey(priv, password)
	if err != nil {
		return "", "", nil, err
	}
	blob, err = wrapped.Marshal()
	if err != nil {
		return "", "", nil, err
	}
	return pub, blob, priv, nil
}

// unreachable folds a failed peer key lookup for an unknown or malformed id
// into the answer the engine gives for every receiver it will not deliver to.
func unreachable(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Status {
	case http.StatusNotFound, http.StatusBadRequest:
		return &APIError{
			Status:  utils.AppErrorToHTTPStatus(utils.ErrReceiverUnreachable),
			Code:    utils.ErrReceiverUnreachable,
			Message: utils.NewReceiverUnreachableError().Message,
		}
	}
	return err
}
