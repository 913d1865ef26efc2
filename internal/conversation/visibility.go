package conversation

import (
	"time"

	"buddywalk/internal/models"

	"github.com/google/uuid"
)

// Epoch is the horizon used when a viewer has no marker for a partner.
var Epoch = time.Unix(0, 0).UTC()

// IsActive reports whether the message has not been soft deleted.
func IsActive(m *models.DirectMessage) bool {
	return m.Active
}

// AfterHorizon reports whether m was created strictly after horizon.
func AfterHorizon(m *models.DirectMessage, horizon time.Time) bool {
	return m.CreatedAt.After(horizon)
}

// Visible composes the two predicates for one viewer and partner.
func Visible(m *models.DirectMessage, horizon time.Time) bool {
	return IsActive(m) && AfterHorizon(m, horizon)
}

// Partner returns the other party of m as seen by viewer.
func Partner(m *models.DirectMessage, viewer uuid.UUID) uuid.UUID {
	if m.SenderID == viewer {
		return m.ReceiverID
	}
	return m.SenderID
}

// HasUnread applies the unread rule to the latest incoming message time of
// one partner. A zero latestIncoming means nothing was ever received.
func HasUnread(latestIncoming, readAt, horizon time.Time) bool {
	if latestIncoming.IsZero() {
		return false
	}
	return latestIncoming.After(readAt) && latestIncoming.After(horizon)
}

// newer orders messages by creation time, then by store sequence.
func newer(a, b *models.DirectMessage) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Seq > b.Seq
}

func markerOr(markers map[uuid.UUID]time.Time, id uuid.UUID) time.Time {
	if at, ok := markers[id]; ok {
		return at
	}
	return Epoch
}

// partnerSummary folds one viewer's messages with a single partner.
type partnerSummary struct {
	latestVisible  *models.DirectMessage
	latestIncoming time.Time
}

// summarize groups active messages by partner. latestIncoming is taken over
// every active incoming message; latestVisible additionally respects the
// viewer's deletion horizons.
func summarize(viewer uuid.UUID, messages []*models.DirectMessage, deletions map[uuid.UUID]time.Time) map[uuid.UUID]*partnerSummary {
	out := make(map[uuid.UUID]*partnerSummary)
	for _, m := range messages {
		if !IsActive(m) {
			continue
		}
		other := Partner(m, viewer)
		if other == viewer {
			continue
		}
		s, ok := out[other]
		if !ok {
			s = &partnerSummary{}
			out[other] = s
		}
		if m.ReceiverID == viewer && m.CreatedAt.After(s.latestIncoming) {
			s.latestIncoming = m.CreatedAt
		}
		if AfterHorizon(m, markerOr(deletions, other)) && (s.latestVisible == nil || newer(m, s.latestVisible)) {
			s.latestVisible = m
		}
	}
	return out
}
