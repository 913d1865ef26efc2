// Package conversation decides who may message whom and what each party of a
// conversation gets to see. It holds no state of its own; every call reads
// the store, applies the visibility predicates and, for writes, persists the
// result.
package conversation

import (
	"context"
	"sort"
	"strings"
	"time"

	"buddywalk/internal/database"
	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/google/uuid"
)

// SendInput is the caller-supplied part of a new message. An empty IV marks
// plaintext content.
type SendInput struct {
	ReceiverID string
	Content    string
	IV         string
}

type Engine struct {
	store database.DBAdapter
	clock Clock
}

func NewEngine(store database.DBAdapter, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{store: store, clock: clock}
}

// now is truncated to milliseconds so every store round-trips it exactly.
func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Millisecond)
}

func invalidInput(msg string) *utils.AppError {
	return utils.NewAppError(utils.ErrInvalidInput, msg, nil)
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, utils.NewAppError(utils.ErrInvalidInput, "invalid "+field, err)
	}
	return id, nil
}

// Send validates and stores a new message from senderID. The checks run in a
// fixed order and the first failure wins.
func (e *Engine) Send(ctx context.Context, senderID uuid.UUID, in SendInput) (*models.DirectMessage, error) {
	if in.ReceiverID == "" || strings.TrimSpace(in.Content) == "" {
		return nil, invalidInput("receiverId and content are required")
	}
	receiverID, err := uuid.Parse(in.ReceiverID)
	if err != nil {
		// A malformed id names no user, same as an unknown one.
		return nil, utils.NewReceiverUnreachableError()
	}
	if receiverID == senderID {
		return nil, invalidInput("cannot message self")
	}

	blocked, err := e.store.IsBlocked(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, utils.NewReceiverUnreachableError()
	}

	receiver, err := e.store.GetUser(ctx, receiverID)
	if database.IsNotFound(err) {
		return nil, utils.NewReceiverUnreachableError()
	}
	if err != nil {
		return nil, err
	}
	if !receiver.Available {
		return nil, utils.NewReceiverUnreachableError()
	}

	sender, err := e.store.GetUser(ctx, senderID)
	if database.IsNotFound(err) {
		return nil, utils.NewUnauthorizedError("unknown sender")
	}
	if err != nil {
		return nil, err
	}
	if !receiver.AcceptsMessagesFrom(sender) {
		return nil, utils.NewAppError(utils.ErrReceiverFiltered, "receiver does not accept messages from you", nil)
	}

	msg := &models.DirectMessage{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		CreatedAt:  e.now(),
		Active:     true,
	}
	if in.IV != "" {
		// Ciphertext is stored byte for byte.
		iv := in.IV
		msg.Content = in.Content
		msg.IV = &iv
	} else {
		msg.Content = strings.TrimSpace(in.Content)
	}

	if err := e.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns the messages requester may see with otherID, oldest first.
func (e *Engine) History(ctx context.Context, requester uuid.UUID, otherID string) (*models.History, error) {
	other, err := parseID(otherID, "userId")
	if err != nil {
		return nil, err
	}
	peer, err := e.store.GetUser(ctx, other)
	if database.IsNotFound(err) {
		return nil, utils.NewAppError(utils.ErrNotFound, "user not found", nil)
	}
	if err != nil {
		return nil, err
	}

	blocked, err := e.store.IsBlocked(ctx, requester, other)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, utils.NewAppError(utils.ErrForbidden, "access denied", nil)
	}

	horizon, err := e.horizon(ctx, requester, other)
	if err != nil {
		return nil, err
	}
	all, err := e.store.GetConversation(ctx, requester, other)
	if err != nil {
		return nil, err
	}

	visible := make([]*models.DirectMessage, 0, len(all))
	for _, m := range all {
		if Visible(m, horizon) {
			visible = append(visible, m)
		}
	}
	if len(visible) == 0 {
		return nil, utils.NewAppError(utils.ErrNoChatAccess, "no access to this chat", nil)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return newer(visible[j], visible[i])
	})

	seen, err := e.store.GetReadMarker(ctx, other, requester)
	if err != nil {
		return nil, err
	}
	return &models.History{
		Messages:          visible,
		OtherPublicKey:    peer.PublicKey,
		PartnerLastSeenAt: seen,
	}, nil
}

func (e *Engine) horizon(ctx context.Context, viewer, other uuid.UUID) (time.Time, error) {
	at, err := e.store.GetDeletionMarker(ctx, viewer, other)
	if err != nil {
		return time.Time{}, err
	}
	if at == nil {
		return Epoch, nil
	}
	return *at, nil
}

// MarkRead records that requester has seen the conversation with otherID up
// to now. The partner does not have to exist.
func (e *Engine) MarkRead(ctx context.Context, requester uuid.UUID, otherID string) error {
	other, err := parseID(otherID, "userId")
	if err != nil {
		return err
	}
	return e.store.UpsertReadMarker(ctx, requester, other, e.now())
}

// DeleteConversation hides everything up to now from requester only.
func (e *Engine) DeleteConversation(ctx context.Context, requester uuid.UUID, otherID string) error {
	other, err := parseID(otherID, "userId")
	if err != nil {
		return err
	}
	return e.store.UpsertDeletionMarker(ctx, requester, other, e.now())
}

// DeleteMessage soft deletes a message for both parties. Only its sender may
// do so.
func (e *Engine) DeleteMessage(ctx context.Context, requester uuid.UUID, messageID string) error {
	id, err := parseID(messageID, "message id")
	if err != nil {
		return err
	}
	msg, err := e.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != requester {
		return utils.NewAppError(utils.ErrForbidden, "only the sender can delete a message", nil)
	}
	return e.store.DeactivateMessage(ctx, id)
}

type partnerView struct {
	summaries map[uuid.UUID]*partnerSummary
	reads     map[uuid.UUID]time.Time
	deletions map[uuid.UUID]time.Time
}

func (v *partnerView) hasUnread(other uuid.UUID) bool {
	s := v.summaries[other]
	return HasUnread(s.latestIncoming, markerOr(v.reads, other), markerOr(v.deletions, other))
}

// partners loads everything UnreadCount and Inbox need and drops blocked
// partners.
func (e *Engine) partners(ctx context.Context, requester uuid.UUID) (*partnerView, error) {
	messages, err := e.store.GetMessagesByUser(ctx, requester)
	if err != nil {
		return nil, err
	}
	reads, err := e.store.GetReadMarkers(ctx, requester)
	if err != nil {
		return nil, err
	}
	deletions, err := e.store.GetDeletionMarkers(ctx, requester)
	if err != nil {
		return nil, err
	}
	blocked, err := e.store.GetBlockedPartners(ctx, requester)
	if err != nil {
		return nil, err
	}

	summaries := summarize(requester, messages, deletions)
	for id := range blocked {
		delete(summaries, id)
	}
	return &partnerView{summaries: summaries, reads: reads, deletions: deletions}, nil
}

// UnreadCount is the number of partners with an incoming message newer than
// both the read marker and the deletion horizon.
func (e *Engine) UnreadCount(ctx context.Context, requester uuid.UUID) (int, error) {
	view, err := e.partners(ctx, requester)
	if err != nil {
		return 0, err
	}
	count := 0
	for other := range view.summaries {
		if view.hasUnread(other) {
			count++
		}
	}
	return count, nil
}

// Inbox lists the newest visible message per partner, newest first.
func (e *Engine) Inbox(ctx context.Context, requester uuid.UUID) ([]*models.InboxItem, error) {
	view, err := e.partners(ctx, requester)
	if err != nil {
		return nil, err
	}

	type entry struct {
		item *models.InboxItem
		last *models.DirectMessage
	}
	entries := make([]entry, 0, len(view.summaries))
	for other, s := range view.summaries {
		if s.latestVisible == nil {
			continue
		}
		peer, err := e.store.GetUser(ctx, other)
		if database.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		last := s.latestVisible
		entries = append(entries, entry{
			last: last,
			item: &models.InboxItem{
				OtherID:        other,
				OtherName:      peer.Name,
				OtherDogName:   peer.DogName,
				OtherPublicKey: peer.PublicKey,
				MessageID:      last.ID,
				SenderID:       last.SenderID,
				ReceiverID:     last.ReceiverID,
				Content:        last.Content,
				IV:             last.IV,
				CreatedAt:      last.CreatedAt,
				HasUnread:      view.hasUnread(other),
			},
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return newer(entries[i].last, entries[j].last)
	})
	items := make([]*models.InboxItem, len(entries))
	for i, en := range entries {
		items[i] = en.item
	}
	return items, nil
}

// PartnerName renders the chat header label for otherID.
func (e *Engine) PartnerName(ctx context.Context, requester uuid.UUID, otherID string) (string, error) {
	other, err := parseID(otherID, "userId")
	if err != nil {
		return "", err
	}
	peer, err := e.store.GetUser(ctx, other)
	if database.IsNotFound(err) {
		return "", utils.NewAppError(utils.ErrNotFound, "user not found", nil)
	}
	if err != nil {
		return "", err
	}
	return peer.DisplayName(), nil
}
