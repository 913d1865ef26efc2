package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messageSeqCounter = "messages"

// DirectMessageDocument represents the MongoDB document structure for direct messages
type DirectMessageDocument struct {
	ID         string    `bson:"_id"`
	Seq        int64     `bson:"seq"`
	SenderID   string    `bson:"senderId"`
	ReceiverID string    `bson:"receiverId"`
	Content    string    `bson:"content"`
	IV         *string   `bson:"iv"`
	CreatedAt  time.Time `bson:"createdAt"`
	Active     bool      `bson:"active"`
}

// MarkerDocument stores a read or deletion marker; _id is "user:other".
type MarkerDocument struct {
	ID      string    `bson:"_id"`
	UserID  string    `bson:"userId"`
	OtherID string    `bson:"otherId"`
	At      time.Time `bson:"at"`
}

func (doc *DirectMessageDocument) toModel() (*models.DirectMessage, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid message ID in database: %v", err)
	}
	senderID, err := uuid.Parse(doc.SenderID)
	if err != nil {
		return nil, fmt.Errorf("invalid sender ID in database: %v", err)
	}
	receiverID, err := uuid.Parse(doc.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("invalid receiver ID in database: %v", err)
	}
	return &models.DirectMessage{
		ID:         id,
		Seq:        doc.Seq,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    doc.Content,
		IV:         doc.IV,
		CreatedAt:  doc.CreatedAt,
		Active:     doc.Active,
	}, nil
}

func (m *MongoDB) nextSeq(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := m.Counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// SaveMessage saves a new direct message to MongoDB
func (m *MongoDB) SaveMessage(ctx context.Context, message *models.DirectMessage) error {
	seq, err := m.nextSeq(ctx, messageSeqCounter)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to allocate message sequence", err)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	doc := DirectMessageDocument{
		ID:         message.ID.String(),
		Seq:        seq,
		SenderID:   message.SenderID.String(),
		ReceiverID: message.ReceiverID.String(),
		Content:    message.Content,
		IV:         message.IV,
		CreatedAt:  message.CreatedAt,
		Active:     message.Active,
	}
	if _, err := m.Messages.InsertOne(ctx, doc); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save message", err)
	}
	message.Seq = seq
	return nil
}

func (m *MongoDB) GetMessage(ctx context.Context, msgID uuid.UUID) (*models.DirectMessage, error) {
	var doc DirectMessageDocument
	err := m.Messages.FindOne(ctx, bson.M{"_id": msgID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, newMessageNotFoundError(msgID)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get message", err)
	}
	return doc.toModel()
}

func (m *MongoDB) DeactivateMessage(ctx context.Context, msgID uuid.UUID) error {
	result, err := m.Messages.UpdateOne(ctx, bson.M{"_id": msgID.String()}, bson.M{"$set": bson.M{"active": false}})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to deactivate message", err)
	}
	if result.MatchedCount == 0 {
		return newMessageNotFoundError(msgID)
	}
	return nil
}

func (m *MongoDB) GetConversation(ctx context.Context, a, b uuid.UUID) ([]*models.DirectMessage, error) {
	as, bs := a.String(), b.String()
	return m.findMessages(ctx, bson.M{
		"$or": []bson.M{
			{"senderId": as, "receiverId": bs},
			{"senderId": bs, "receiverId": as},
		},
	})
}

// GetMessagesByUser retrieves all messages for a user (both sent and received)
func (m *MongoDB) GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.DirectMessage, error) {
	id := userID.String()
	return m.findMessages(ctx, bson.M{
		"$or": []bson.M{
			{"senderId": id},
			{"receiverId": id},
		},
	})
}

func (m *MongoDB) findMessages(ctx context.Context, filter bson.M) ([]*models.DirectMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "seq", Value: 1}})
	cursor, err := m.Messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query messages", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*models.DirectMessage, 0)
	for cursor.Next(ctx) {
		var doc DirectMessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode message", err)
		}
		msg, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "message cursor failed", err)
	}
	return messages, nil
}

// --- Conversation markers ---

func markerID(userID, otherID uuid.UUID) string {
	return userID.String() + ":" + otherID.String()
}

func upsertMarker(ctx context.Context, coll *mongo.Collection, userID, otherID uuid.UUID, at time.Time) error {
	filter := bson.M{"_id": markerID(userID, otherID)}
	update := bson.M{"$set": bson.M{
		"userId":  userID.String(),
		"otherId": otherID.String(),
		"at":      at,
	}}
	if _, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to upsert conversation marker", err)
	}
	return nil
}

func getMarker(ctx context.Context, coll *mongo.Collection, userID, otherID uuid.UUID) (*time.Time, error) {
	var doc MarkerDocument
	err := coll.FindOne(ctx, bson.M{"_id": markerID(userID, otherID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get conversation marker", err)
	}
	at := doc.At
	return &at, nil
}

func getMarkers(ctx context.Context, coll *mongo.Collection, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	cursor, err := coll.Find(ctx, bson.M{"userId": userID.String()})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query conversation markers", err)
	}
	defer cursor.Close(ctx)

	var docs []MarkerDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode conversation markers", err)
	}
	out := make(map[uuid.UUID]time.Time, len(docs))
	for _, doc := range docs {
		if otherID, err := uuid.Parse(doc.OtherID); err == nil {
			out[otherID] = doc.At
		}
	}
	return out, nil
}

func (m *MongoDB) UpsertReadMarker(ctx context.Context, userID, otherID uuid.UUID, at time.Time) error {
	return upsertMarker(ctx, m.Reads, userID, otherID, at)
}

func (m *MongoDB) GetReadMarker(ctx context.Context, userID, otherID uuid.UUID) (*time.Time, error) {
	return getMarker(ctx, m.Reads, userID, otherID)
}

func (m *MongoDB) GetReadMarkers(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	return getMarkers(ctx, m.Reads, userID)
}

func (m *MongoDB) UpsertDeletionMarker(ctx context.Context, userID, otherID uuid.UUID, at time.Time) error {
	return upsertMarker(ctx, m.Deletions, userID, otherID, at)
}

func (m *MongoDB) GetDeletionMarker(ctx context.Context, userID, otherID uuid.UUID) (*time.Time, error) {
	return getMarker(ctx, m.Deletions, userID, otherID)
}

func (m *MongoDB) GetDeletionMarkers(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	return getMarkers(ctx, m.Deletions, userID)
}
