// internal/database/user_repository.go
package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDocument represents the MongoDB schema for a user
type UserDocument struct {
	ID                  string    `bson:"_id"`
	Name                string    `bson:"name"`
	DogName             string    `bson:"dogName"`
	Email               string    `bson:"email"`
	HashedPassword      string    `bson:"hashedPassword"`
	Gender              string    `bson:"gender"`
	VisibleToGender     string    `bson:"visibleToGender"`
	Available           bool      `bson:"available"`
	CreatedAt           time.Time `bson:"createdAt"`
	PublicKey           *string   `bson:"publicKey"`
	EncryptedPrivateKey *string   `bson:"encryptedPrivateKey"`
}

// BlockDocument is one directed block edge.
type BlockDocument struct {
	ID            string    `bson:"_id"`
	UserID        string    `bson:"userId"`
	BlockedUserID string    `bson:"blockedUserId"`
	CreatedAt     time.Time `bson:"createdAt"`
}

func (doc *UserDocument) toModel() (*models.User, error) {
	userID, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in database: %v", err)
	}
	return &models.User{
		ID:                  userID,
		Name:                doc.Name,
		DogName:             doc.DogName,
		Email:               doc.Email,
		HashedPassword:      doc.HashedPassword,
		Gender:              doc.Gender,
		VisibleToGender:     doc.VisibleToGender,
		Available:           doc.Available,
		CreatedAt:           doc.CreatedAt,
		PublicKey:           doc.PublicKey,
		EncryptedPrivateKey: doc.EncryptedPrivateKey,
	}, nil
}

// SaveUser creates or updates a user's profile in MongoDB. Keys are left to
// SetUserKeys.
func (m *MongoDB) SaveUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	filter := bson.M{"_id": user.ID.String()}
	update := bson.M{
		"$set": bson.M{
			"name":            user.Name,
			"dogName":         user.DogName,
			"email":           user.Email,
			"hashedPassword":  user.HashedPassword,
			"gender":          user.Gender,
			"visibleToGender": user.VisibleToGender,
			"available":       user.Available,
		},
		"$setOnInsert": bson.M{
			"createdAt":           user.CreatedAt,
			"publicKey":           user.PublicKey,
			"encryptedPrivateKey": user.EncryptedPrivateKey,
		},
	}

	_, err := m.Users.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

// GetUser retrieves a user from MongoDB by their ID
func (m *MongoDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id.String()}, id.String())
}

// GetUserByEmail retrieves a user from MongoDB by their email address
func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	filter := bson.M{"email": bson.M{"$regex": "^" + regexp.QuoteMeta(email) + "$", "$options": "i"}}
	return m.findUser(ctx, filter, email)
}

func (m *MongoDB) findUser(ctx context.Context, filter bson.M, label string) (*models.User, error) {
	var doc UserDocument
	err := m.Users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewUserNotFoundError(label)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get user", err)
	}
	return doc.toModel()
}

// SetUserKeys writes both key fields in one conditional update.
func (m *MongoDB) SetUserKeys(ctx context.Context, userID uuid.UUID, publicKey, encryptedPrivateKey string) error {
	filter := bson.M{
		"_id":                 userID.String(),
		"publicKey":           nil,
		"encryptedPrivateKey": nil,
	}
	update := bson.M{"$set": bson.M{
		"publicKey":           publicKey,
		"encryptedPrivateKey": encryptedPrivateKey,
	}}

	result, err := m.Users.UpdateOne(ctx, filter, update)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to set user keys", err)
	}
	if result.MatchedCount == 1 {
		return nil
	}
	if _, err := m.GetUser(ctx, userID); err != nil {
		return err
	}
	return newKeysExistError(userID)
}

func blockID(userID, blockedUserID uuid.UUID) string {
	return userID.String() + ":" + blockedUserID.String()
}

func (m *MongoDB) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	count, err := m.Blocks.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": []string{blockID(a, b), blockID(b, a)}}})
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check block relation", err)
	}
	return count > 0, nil
}

func (m *MongoDB) GetBlockedPartners(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	id := userID.String()
	docs, err := m.findBlocks(ctx, bson.M{"$or": []bson.M{{"userId": id}, {"blockedUserId": id}}}, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]bool, len(docs))
	for _, doc := range docs {
		other := doc.BlockedUserID
		if other == id {
			other = doc.UserID
		}
		if otherID, err := uuid.Parse(other); err == nil {
			out[otherID] = true
		}
	}
	return out, nil
}

func (m *MongoDB) AddBlock(ctx context.Context, userID, blockedUserID uuid.UUID) error {
	filter := bson.M{"_id": blockID(userID, blockedUserID)}
	update := bson.M{"$setOnInsert": bson.M{
		"userId":        userID.String(),
		"blockedUserId": blockedUserID.String(),
		"createdAt":     time.Now(),
	}}
	if _, err := m.Blocks.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to add block", err)
	}
	return nil
}

func (m *MongoDB) RemoveBlock(ctx context.Context, userID, blockedUserID uuid.UUID) error {
	if _, err := m.Blocks.DeleteOne(ctx, bson.M{"_id": blockID(userID, blockedUserID)}); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to remove block", err)
	}
	return nil
}

func (m *MongoDB) GetBlocksByUser(ctx context.Context, userID uuid.UUID) ([]*models.BlockRelation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	docs, err := m.findBlocks(ctx, bson.M{"userId": userID.String()}, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*models.BlockRelation, 0, len(docs))
	for _, doc := range docs {
		blocked, err := uuid.Parse(doc.BlockedUserID)
		if err != nil {
			continue
		}
		out = append(out, &models.BlockRelation{UserID: userID, BlockedUserID: blocked, CreatedAt: doc.CreatedAt})
	}
	return out, nil
}

func (m *MongoDB) findBlocks(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]BlockDocument, error) {
	cursor, err := m.Blocks.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query block relations", err)
	}
	defer cursor.Close(ctx)

	var docs []BlockDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode block relations", err)
	}
	return docs, nil
}
