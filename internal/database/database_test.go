package database

import (
	"context"
	"os"
	"testing"
	"time"

	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser(name string) *models.User {
	return &models.User{
		ID:              uuid.New(),
		Name:            name,
		DogName:         name + "'s dog",
		Email:           name + "-" + uuid.NewString()[:8] + "@example.com",
		HashedPassword:  "hash",
		Gender:          "female",
		VisibleToGender: models.VisibleToAll,
		Available:       true,
	}
}

func runStoreContract(t *testing.T, db DBAdapter) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	alice := newTestUser("alice")
	bob := newTestUser("bob")
	carol := newTestUser("carol")
	for _, u := range []*models.User{alice, bob, carol} {
		require.NoError(t, db.SaveUser(ctx, u))
	}

	t.Run("users", func(t *testing.T) {
		got, err := db.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.Name, got.Name)
		assert.Equal(t, alice.DogName, got.DogName)
		assert.False(t, got.HasKeys())

		byEmail, err := db.GetUserByEmail(ctx, bob.Email)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, byEmail.ID)

		_, err = db.GetUser(ctx, uuid.New())
		assert.True(t, IsNotFound(err))
	})

	t.Run("keys are issued once", func(t *testing.T) {
		require.NoError(t, db.SetUserKeys(ctx, alice.ID, "pub", "blob"))

		err := db.SetUserKeys(ctx, alice.ID, "pub2", "blob2")
		assert.True(t, utils.IsErrorCode(err, utils.ErrKeysExist))

		got, err := db.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		require.True(t, got.HasKeys())
		assert.Equal(t, "pub", *got.PublicKey)
		assert.Equal(t, "blob", *got.EncryptedPrivateKey)

		err = db.SetUserKeys(ctx, uuid.New(), "pub", "blob")
		assert.True(t, IsNotFound(err))
	})

	t.Run("profile updates keep keys", func(t *testing.T) {
		update := *alice
		update.Name = "Alicia"
		update.PublicKey, update.EncryptedPrivateKey = nil, nil
		require.NoError(t, db.SaveUser(ctx, &update))

		got, err := db.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alicia", got.Name)
		require.True(t, got.HasKeys())
		assert.Equal(t, "pub", *got.PublicKey)
	})

	t.Run("insert carries keys", func(t *testing.T) {
		pub, blob := "dave-pub", "dave-blob"
		dave := newTestUser("dave")
		dave.PublicKey, dave.EncryptedPrivateKey = &pub, &blob
		require.NoError(t, db.SaveUser(ctx, dave))

		got, err := db.GetUser(ctx, dave.ID)
		require.NoError(t, err)
		require.True(t, got.HasKeys())
		assert.Equal(t, blob, *got.EncryptedPrivateKey)

		err = db.SetUserKeys(ctx, dave.ID, "other", "other")
		assert.True(t, utils.IsErrorCode(err, utils.ErrKeysExist))
	})

	t.Run("blocks", func(t *testing.T) {
		require.NoError(t, db.AddBlock(ctx, alice.ID, carol.ID))
		require.NoError(t, db.AddBlock(ctx, alice.ID, carol.ID))

		blocked, err := db.IsBlocked(ctx, carol.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, blocked)

		partners, err := db.GetBlockedPartners(ctx, carol.ID)
		require.NoError(t, err)
		assert.True(t, partners[alice.ID])

		list, err := db.GetBlocksByUser(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, carol.ID, list[0].BlockedUserID)

		require.NoError(t, db.RemoveBlock(ctx, alice.ID, carol.ID))
		blocked, err = db.IsBlocked(ctx, alice.ID, carol.ID)
		require.NoError(t, err)
		assert.False(t, blocked)
	})

	t.Run("messages", func(t *testing.T) {
		iv := "aXY="
		first := &models.DirectMessage{ID: uuid.New(), SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi", CreatedAt: base, Active: true}
		second := &models.DirectMessage{ID: uuid.New(), SenderID: bob.ID, ReceiverID: alice.ID, Content: "ct", IV: &iv, CreatedAt: base, Active: true}
		other := &models.DirectMessage{ID: uuid.New(), SenderID: carol.ID, ReceiverID: alice.ID, Content: "x", CreatedAt: base.Add(time.Second), Active: true}
		for _, m := range []*models.DirectMessage{first, second, other} {
			require.NoError(t, db.SaveMessage(ctx, m))
		}
		assert.Less(t, first.Seq, second.Seq)
		assert.Less(t, second.Seq, other.Seq)

		conv, err := db.GetConversation(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		require.Len(t, conv, 2)
		assert.Equal(t, first.ID, conv[0].ID)
		assert.Equal(t, second.ID, conv[1].ID)
		require.NotNil(t, conv[1].IV)
		assert.Equal(t, iv, *conv[1].IV)
		assert.Nil(t, conv[0].IV)
		assert.True(t, conv[0].CreatedAt.Equal(base))

		all, err := db.GetMessagesByUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		require.NoError(t, db.DeactivateMessage(ctx, first.ID))
		got, err := db.GetMessage(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)

		_, err = db.GetMessage(ctx, uuid.New())
		assert.True(t, IsNotFound(err))
		assert.True(t, IsNotFound(db.DeactivateMessage(ctx, uuid.New())))
	})

	t.Run("markers", func(t *testing.T) {
		none, err := db.GetReadMarker(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Nil(t, none)

		require.NoError(t, db.UpsertReadMarker(ctx, alice.ID, bob.ID, base))
		later := base.Add(time.Minute)
		require.NoError(t, db.UpsertReadMarker(ctx, alice.ID, bob.ID, later))

		at, err := db.GetReadMarker(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		require.NotNil(t, at)
		assert.True(t, at.Equal(later))

		reads, err := db.GetReadMarkers(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, reads, 1)
		assert.True(t, reads[bob.ID].Equal(later))

		require.NoError(t, db.UpsertDeletionMarker(ctx, bob.ID, alice.ID, base))
		del, err := db.GetDeletionMarker(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, del)
		assert.True(t, del.Equal(base))

		none, err = db.GetDeletionMarker(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Nil(t, none)

		dels, err := db.GetDeletionMarkers(ctx, bob.ID)
		require.NoError(t, err)
		assert.Len(t, dels, 1)
	})
}

func TestMemoryDB(t *testing.T) {
	runStoreContract(t, NewMemoryDB())
}

func TestPostgresDB(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pg, err := NewPostgresDB(url)
	require.NoError(t, err)
	defer pg.Close(context.Background())
	require.NoError(t, pg.InitializeTables(context.Background()))

	runStoreContract(t, pg)
}

func TestMongoDB(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}
	mdb, err := NewMongoDB(uri, "buddywalk_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	defer func() {
		mdb.Users.Database().Drop(context.Background())
		mdb.Close(context.Background())
	}()
	require.NoError(t, mdb.EnsureIndexes(context.Background()))

	runStoreContract(t, mdb)
}

func TestMemoryDBReturnsCopies(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	u := newTestUser("dana")
	require.NoError(t, db.SaveUser(ctx, u))

	got, err := db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	got.Name = "changed"

	again, err := db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "dana", again.Name)
}
