package actors

import (
	"context"
	"testing"
	"time"

	"buddywalk/internal/conversation"
	"buddywalk/internal/database"
	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectMessageActor(t *testing.T) {
	system := actor.NewActorSystem()
	db := database.NewMemoryDB()
	clock := conversation.NewStepClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), time.Second)
	engine := conversation.NewEngine(db, clock)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewDirectMessageActor(engine, utils.NewMetricsCollector(), time.Second)
	})
	pid := system.Root.Spawn(props)

	ask := func(msg interface{}) interface{} {
		result, err := system.Root.RequestFuture(pid, msg, 5*time.Second).Result()
		require.NoError(t, err)
		return result
	}

	alice := &models.User{ID: uuid.New(), Name: "Alice", DogName: "Biscuit", Email: "a@example.com", Gender: "female", VisibleToGender: models.VisibleToAll, Available: true}
	bob := &models.User{ID: uuid.New(), Name: "Bob", DogName: "Rex", Email: "b@example.com", Gender: "male", VisibleToGender: models.VisibleToAll, Available: true}
	require.NoError(t, db.SaveUser(context.Background(), alice))
	require.NoError(t, db.SaveUser(context.Background(), bob))

	// No messages yet
	result := ask(&GetConversationMsg{UserID: alice.ID, OtherID: bob.ID.String()})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrNoChatAccess))

	// Test sending a message
	result = ask(&SendDirectMessageMsg{SenderID: alice.ID, ReceiverID: bob.ID.String(), Content: "c1", IV: "x"})
	sent, ok := result.(*models.DirectMessage)
	require.True(t, ok, "unexpected result %T", result)
	assert.Equal(t, "c1", sent.Content)

	result = ask(&SendDirectMessageMsg{SenderID: alice.ID, ReceiverID: alice.ID.String(), Content: "me"})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrInvalidInput))

	// Unread and inbox for bob
	assert.Equal(t, 1, ask(&GetUnreadCountMsg{UserID: bob.ID}))

	inbox := ask(&GetInboxMsg{UserID: bob.ID}).([]*models.InboxItem)
	require.Len(t, inbox, 1)
	assert.Equal(t, alice.ID, inbox[0].OtherID)
	assert.True(t, inbox[0].HasUnread)

	assert.Equal(t, true, ask(&MarkConversationReadMsg{UserID: bob.ID, OtherID: alice.ID.String()}))
	assert.Equal(t, 0, ask(&GetUnreadCountMsg{UserID: bob.ID}))

	history := ask(&GetConversationMsg{UserID: bob.ID, OtherID: alice.ID.String()}).(*models.History)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, sent.ID, history.Messages[0].ID)

	assert.Equal(t, "Biscuit (Alice)", ask(&GetPartnerNameMsg{UserID: bob.ID, OtherID: alice.ID.String()}))

	// Only the sender may delete
	result = ask(&DeleteMessageMsg{UserID: bob.ID, MessageID: sent.ID.String()})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrForbidden))
	assert.Equal(t, true, ask(&DeleteMessageMsg{UserID: alice.ID, MessageID: sent.ID.String()}))

	assert.Equal(t, true, ask(&DeleteConversationMsg{UserID: bob.ID, OtherID: alice.ID.String()}))
	result = ask(&GetConversationMsg{UserID: bob.ID, OtherID: alice.ID.String()})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrNoChatAccess))
}
