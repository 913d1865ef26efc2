// Package client is the device side of buddywalk messaging: an HTTP client
// for the engine, the orchestrator that encrypts and decrypts around it, and
// a poller that keeps a rendered view fresh.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"buddywalk/internal/api"
	"buddywalk/internal/models"
)

// APIError is a non-2xx answer from the engine.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status: %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// API talks to the engine's HTTP surface. It is safe for concurrent use.
type API struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient}
}

// BaseURL is the origin the key store is scoped to.
func (a *API) BaseURL() string { return a.baseURL }

func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// makeRequest sends data as JSON and decodes the response into out when out
// is non-nil.
func (a *API) makeRequest(ctx context.Context, method, endpoint string, data, out interface{}) error {
	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Code = e.Code
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *API) Register(ctx context.Context, req api.RegisterUserRequest) (*api.Profile, error) {
	var profile api.Profile
	if err := a.makeRequest(ctx, http.MethodPost, "/user/register", req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Login authenticates and, on success, starts using the returned token.
func (a *API) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := a.makeRequest(ctx, http.MethodPost, "/user/login", api.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	a.SetToken(resp.Token)
	return &resp, nil
}

func (a *API) Me(ctx context.Context) (*api.Profile, error) {
	var profile api.Profile
	if err := a.makeRequest(ctx, http.MethodGet, "/user/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (a *API) PublicKey(ctx context.Context, userID string) (*string, error) {
	var resp api.PublicKeyResponse
	if err := a.makeRequest(ctx, http.MethodGet, "/keys/public/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.PublicKey, nil
}

func (a *API) UploadKeys(ctx context.Context, publicKey, encryptedPrivateKey string) error {
	return a.makeRequest(ctx, http.MethodPost, "/keys", api.UploadKeysRequest{
		PublicKey:           publicKey,
		EncryptedPrivateKey: encryptedPrivateKey,
	}, nil)
}

func (a *API) Send(ctx context.Context, req api.SendMessageRequest) (*models.DirectMessage, error) {
	var msg models.DirectMessage
	if err := a.makeRequest(ctx, http.MethodPost, "/messages/send", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *API) History(ctx context.Context, otherID string) (*models.History, error) {
	var history models.History
	if err := a.makeRequest(ctx, http.MethodGet, "/messages/with/"+url.PathEscape(otherID), nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

func (a *API) MarkRead(ctx context.Context, otherID string) error {
	return a.makeRequest(ctx, http.MethodPost, "/messages/mark-read/"+url.PathEscape(otherID), nil, nil)
}

func (a *API) UnreadCount(ctx context.Context) (int, error) {
	var resp api.UnreadCountResponse
	if err := a.makeRequest(ctx, http.MethodGet, "/messages/unread-count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (a *API) Inbox(ctx context.Context) ([]*models.InboxItem, error) {
	var items []*models.InboxItem
	if err := a.makeRequest(ctx, http.MethodGet, "/messages/inbox", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (a *API) PartnerName(ctx context.Context, otherID string) (string, error) {
	var resp api.PartnerNameResponse
	if err := a.makeRequest(ctx, http.MethodGet, "/messages/partner/"+url.PathEscape(otherID), nil, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

func (a *API) DeleteMessage(ctx context.Context, messageID string) error {
	return a.makeRequest(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

func (a *API) DeleteConversation(ctx context.Context, otherID string) error {
	return a.makeRequest(ctx, http.MethodDelete, "/messages/conversation/"+url.PathEscape(otherID), nil, nil)
}

func (a *API) Block(ctx context.Context, userID string) error {
	return a.makeRequest(ctx, http.MethodPost, "/blocks/block", api.BlockRequest{UserID: userID}, nil)
}

func (a *API) Unblock(ctx context.Context, userID string) error {
	return a.makeRequest(ctx, http.MethodPost, "/blocks/unblock", api.BlockRequest{UserID: userID}, nil)
}

func (a *API) Blocks(ctx context.Context) ([]*models.BlockRelation, error) {
	var blocks []*models.BlockRelation
	if err := a.makeRequest(ctx, http.MethodGet, "/blocks", nil, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}
