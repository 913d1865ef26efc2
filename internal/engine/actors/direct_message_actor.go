package actors

import (
	stdctx "context"
	"log"
	"time"

	"buddywalk/internal/conversation"
	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Message types for DirectMessageActor. Peer and message ids arrive as the
// raw path strings; the engine decides what a malformed one means.
type (
	SendDirectMessageMsg struct {
		SenderID   uuid.UUID `json:"senderId"`
		ReceiverID string    `json:"receiverId"`
		Content    string    `json:"content"`
		IV         string    `json:"iv"`
	}

	GetConversationMsg struct {
		UserID  uuid.UUID `json:"userId"`
		OtherID string    `json:"otherId"`
	}

	MarkConversationReadMsg struct {
		UserID  uuid.UUID `json:"userId"`
		OtherID string    `json:"otherId"`
	}

	GetUnreadCountMsg struct {
		UserID uuid.UUID `json:"userId"`
	}

	GetInboxMsg struct {
		UserID uuid.UUID `json:"userId"`
	}

	DeleteMessageMsg struct {
		MessageID string    `json:"messageId"`
		UserID    uuid.UUID `json:"userId"` // The user deleting the message
	}

	DeleteConversationMsg struct {
		UserID  uuid.UUID `json:"userId"`
		OtherID string    `json:"otherId"`
	}

	GetPartnerNameMsg struct {
		UserID  uuid.UUID `json:"userId"`
		OtherID string    `json:"otherId"`
	}
)

// DirectMessageActor serves the conversation engine to the HTTP layer.
type DirectMessageActor struct {
	engine         *conversation.Engine
	metrics        *utils.MetricsCollector
	requestTimeout time.Duration
}

func NewDirectMessageActor(engine *conversation.Engine, metrics *utils.MetricsCollector, requestTimeout time.Duration) *DirectMessageActor {
	return &DirectMessageActor{
		engine:         engine,
		metrics:        metrics,
		requestTimeout: requestTimeout,
	}
}

func (a *DirectMessageActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *SendDirectMessageMsg:
		a.handleSendMessage(context, msg)
	case *GetConversationMsg:
		a.run(context, "get_conversation", func(ctx stdctx.Context) (interface{}, error) {
			return a.engine.History(ctx, msg.UserID, msg.OtherID)
		})
	case *MarkConversationReadMsg:
		a.run(context, "mark_read", func(ctx stdctx.Context) (interface{}, error) {
			return true, a.engine.MarkRead(ctx, msg.UserID, msg.OtherID)
		})
	case *GetUnreadCountMsg:
		a.run(context, "unread_count", func(ctx stdctx.Context) (interface{}, error) {
			return a.engine.UnreadCount(ctx, msg.UserID)
		})
	case *GetInboxMsg:
		a.run(context, "inbox", func(ctx stdctx.Context) (interface{}, error) {
			return a.engine.Inbox(ctx, msg.UserID)
		})
	case *DeleteMessageMsg:
		a.run(context, "delete_message", func(ctx stdctx.Context) (interface{}, error) {
			if err := a.engine.DeleteMessage(ctx, msg.UserID, msg.MessageID); err != nil {
				return nil, err
			}
			log.Printf("Message %s deleted by %s", msg.MessageID, msg.UserID)
			return true, nil
		})
	case *DeleteConversationMsg:
		a.run(context, "delete_conversation", func(ctx stdctx.Context) (interface{}, error) {
			return true, a.engine.DeleteConversation(ctx, msg.UserID, msg.OtherID)
		})
	case *GetPartnerNameMsg:
		a.run(context, "partner_name", func(ctx stdctx.Context) (interface{}, error) {
			return a.engine.PartnerName(ctx, msg.UserID, msg.OtherID)
		})
	}
}

func (a *DirectMessageActor) run(context actor.Context, operation string, op func(stdctx.Context) (interface{}, error)) {
	respond(context, a.metrics, a.requestTimeout, operation, op)
}

func (a *DirectMessageActor) handleSendMessage(context actor.Context, msg *SendDirectMessageMsg) {
	a.run(context, "send_message", func(ctx stdctx.Context) (interface{}, error) {
		sent, err := a.engine.Send(ctx, msg.SenderID, conversation.SendInput{
			ReceiverID: msg.ReceiverID,
			Content:    msg.Content,
			IV:         msg.IV,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("New message sent from %s to %s (encrypted=%t)", sent.SenderID, sent.ReceiverID, sent.IsEncrypted())
		return sent, nil
	})
}
