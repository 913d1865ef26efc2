package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"buddywalk/internal/api"
	"buddywalk/internal/conversation"
	"buddywalk/internal/crypto/e2ee"
	"buddywalk/internal/database"
	"buddywalk/internal/engine"
	"buddywalk/internal/middleware"
	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	system := actor.NewActorSystem()
	metrics := utils.NewMetricsCollector()
	clock := conversation.NewStepClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), time.Second)
	eng := engine.NewEngine(system, database.NewMemoryDB(), clock, metrics, time.Second)
	server := NewServer(system, eng, metrics, middleware.NewTokenIssuer("test-secret", time.Hour), 5*time.Second)
	t.Cleanup(func() { system.Shutdown() })
	return &testAPI{t: t, router: NewRouter(server, middleware.DefaultCORSConfig(nil), true)}
}

func (a *testAPI) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// signup registers and logs in, returning the login response.
func (a *testAPI) signup(name, gender string, withKeys bool) api.LoginResponse {
	req := api.RegisterUserRequest{
		Name:     name,
		DogName:  name + "'s dog",
		Email:    name + "@example.com",
		Password: "pw-" + name,
		Gender:   gender,
	}
	if withKeys {
		priv, err := e2ee.GenerateIdentityKeyPair()
		require.NoError(a.t, err)
		req.PublicKey, err = e2ee.ExportPublicKey(priv.PublicKey())
		require.NoError(a.t, err)
		wrapped, err := e2ee.WrapPrivateKey(priv, req.Password)
		require.NoError(a.t, err)
		req.EncryptedPrivateKey, err = wrapped.Marshal()
		require.NoError(a.t, err)
	}
	rec := a.do(http.MethodPost, "/user/register", "", req)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/user/login", "", api.LoginRequest{Email: req.Email, Password: req.Password})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[api.LoginResponse](a.t, rec)
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, code, decodeBody[api.ErrorResponse](t, rec).Code)
}

func TestHealthAndMetricsAreUnprotected(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody[map[string]interface{}](t, rec)["status"])

	rec = a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "buddywalk_http_requests_total")
}

func TestRegisterAndLogin(t *testing.T) {
	a := newTestAPI(t)
	login := a.signup("alice", "female", true)

	assert.True(t, login.Success)
	assert.NotEmpty(t, login.Token)
	require.NotNil(t, login.PublicKey)
	require.NotNil(t, login.EncryptedPrivateKey)

	_, err := e2ee.UnwrapPrivateKeyString(*login.EncryptedPrivateKey, "pw-alice")
	assert.NoError(t, err)

	rec := a.do(http.MethodGet, "/user/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody[api.Profile](t, rec)
	assert.Equal(t, login.UserID, profile.ID)
	assert.True(t, profile.HasKeys)
	assert.Equal(t, models.VisibleToAll, profile.VisibleToGender)

	rec = a.do(http.MethodPost, "/user/register", "", api.RegisterUserRequest{Name: "x", Email: "ALICE@example.com", Password: "p"})
	assertError(t, rec, http.StatusConflict, utils.ErrDuplicate)

	rec = a.do(http.MethodPost, "/user/login", "", api.LoginRequest{Email: "alice@example.com", Password: "wrong"})
	assertError(t, rec, http.StatusUnauthorized, utils.ErrInvalidCredentials)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newTestAPI(t)

	assertError(t, a.do(http.MethodGet, "/messages/inbox", "", nil), http.StatusUnauthorized, utils.ErrUnauthorized)
	assertError(t, a.do(http.MethodGet, "/messages/inbox", "garbage", nil), http.StatusUnauthorized, utils.ErrInvalidToken)
}

func TestMalformedBody(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice", "female", false)

	req := httptest.NewRequest(http.MethodPost, "/messages/send", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assertError(t, rec, http.StatusBadRequest, utils.ErrInvalidInput)
}

func TestKeyUploadIsOneTime(t *testing.T) {
	a := newTestAPI(t)
	bob := a.signup("bob", "male", false)
	alice := a.signup("alice", "female", false)
	assert.Nil(t, bob.PublicKey)

	rec := a.do(http.MethodGet, "/keys/public/"+bob.UserID, alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[api.PublicKeyResponse](t, rec).PublicKey)

	priv, err := e2ee.GenerateIdentityKeyPair()
	require.NoError(t, err)
	pub, err := e2ee.ExportPublicKey(priv.PublicKey())
	require.NoError(t, err)
	wrapped, err := e2ee.WrapPrivateKey(priv, "pw-bob")
	require.NoError(t, err)
	blob, err := wrapped.Marshal()
	require.NoError(t, err)

	rec = a.do(http.MethodPost, "/keys", bob.Token, api.UploadKeysRequest{PublicKey: pub, EncryptedPrivateKey: blob})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/keys", bob.Token, api.UploadKeysRequest{PublicKey: pub, EncryptedPrivateKey: blob})
	assertError(t, rec, http.StatusConflict, utils.ErrKeysExist)

	rec = a.do(http.MethodGet, "/keys/public/"+bob.UserID, alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[api.PublicKeyResponse](t, rec).PublicKey
	require.NotNil(t, got)
	assert.Equal(t, pub, *got)

	rec = a.do(http.MethodPost, "/keys", alice.Token, api.UploadKeysRequest{PublicKey: "nope", EncryptedPrivateKey: blob})
	assertError(t, rec, http.StatusBadRequest, utils.ErrInvalidInput)
}

func TestConversationFlow(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice", "female", true)
	bob := a.signup("bob", "male", true)

	rec := a.do(http.MethodGet, "/messages/with/"+bob.UserID, alice.Token, nil)
	assertError(t, rec, http.StatusForbidden, utils.ErrNoChatAccess)

	rec = a.do(http.MethodPost, "/messages/send", alice.Token, api.SendMessageRequest{ReceiverID: bob.UserID, Content: "  hello bob  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decodeBody[models.DirectMessage](t, rec)
	assert.Equal(t, "hello bob", sent.Content)
	assert.Nil(t, sent.IV)

	rec = a.do(http.MethodGet, "/messages/unread-count", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[api.UnreadCountResponse](t, rec).Count)

	rec = a.do(http.MethodGet, "/messages/inbox", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := decodeBody[[]models.InboxItem](t, rec)
	require.Len(t, inbox, 1)
	assert.Equal(t, sent.ID, inbox[0].MessageID)
	assert.True(t, inbox[0].HasUnread)
	assert.Equal(t, "alice", inbox[0].OtherName)

	rec = a.do(http.MethodGet, "/messages/with/"+alice.UserID, bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[models.History](t, rec)
	require.Len(t, history.Messages, 1)
	require.NotNil(t, history.OtherPublicKey)
	assert.Equal(t, *alice.PublicKey, *history.OtherPublicKey)

	rec = a.do(http.MethodPost, "/messages/mark-read/"+alice.UserID, bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodGet, "/messages/unread-count", bob.Token, nil)
	assert.Equal(t, 0, decodeBody[api.UnreadCountResponse](t, rec).Count)

	rec = a.do(http.MethodGet, "/messages/partner/"+alice.UserID, bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice's dog (alice)", decodeBody[api.PartnerNameResponse](t, rec).Name)

	rec = a.do(http.MethodDelete, "/messages/"+sent.ID.String(), bob.Token, nil)
	assertError(t, rec, http.StatusForbidden, utils.ErrForbidden)
	rec = a.do(http.MethodDelete, "/messages/"+sent.ID.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/messages/with/"+alice.UserID, bob.Token, nil)
	assertError(t, rec, http.StatusForbidden, utils.ErrNoChatAccess)
}

func TestDeleteConversationIsPerParty(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice", "female", false)
	bob := a.signup("bob", "male", false)

	rec := a.do(http.MethodPost, "/messages/send", alice.Token, api.SendMessageRequest{ReceiverID: bob.UserID, Content: "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(http.MethodDelete, "/messages/conversation/"+alice.UserID, bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assertError(t, a.do(http.MethodGet, "/messages/with/"+alice.UserID, bob.Token, nil), http.StatusForbidden, utils.ErrNoChatAccess)
	rec = a.do(http.MethodGet, "/messages/with/"+bob.UserID, alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[models.History](t, rec).Messages, 1)

	rec = a.do(http.MethodGet, "/messages/inbox", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestBlocks(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice", "female", false)
	bob := a.signup("bob", "male", false)

	rec := a.do(http.MethodPost, "/blocks/block", bob.Token, api.BlockRequest{UserID: alice.UserID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, "/blocks", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	blocks := decodeBody[[]models.BlockRelation](t, rec)
	require.Len(t, blocks, 1)
	assert.Equal(t, alice.UserID, blocks[0].BlockedUserID.String())

	rec = a.do(http.MethodPost, "/messages/send", alice.Token, api.SendMessageRequest{ReceiverID: bob.UserID, Content: "hi"})
	assertError(t, rec, http.StatusForbidden, utils.ErrReceiverUnreachable)

	rec = a.do(http.MethodPost, "/blocks/block", bob.Token, api.BlockRequest{UserID: bob.UserID})
	assertError(t, rec, http.StatusBadRequest, utils.ErrInvalidInput)

	rec = a.do(http.MethodPost, "/blocks/unblock", bob.Token, api.BlockRequest{UserID: alice.UserID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, "/messages/send", alice.Token, api.SendMessageRequest{ReceiverID: bob.UserID, Content: "hi"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/messages/send", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
