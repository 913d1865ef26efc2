// internal/database/database.go
package database

import (
	"context"
	"fmt"
	"time"

	"buddywalk/internal/config"
	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/google/uuid"
)

// DBAdapter defines the storage operations the messaging engine needs.
// Implementations return every stored message row, active or not; visibility
// rules are applied by the caller.
type DBAdapter interface {
	// Connection
	Close(ctx context.Context) error

	// User methods
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	// SetUserKeys stores both key columns at once and fails with ErrKeysExist
	// if the user already has keys.
	SetUserKeys(ctx context.Context, userID uuid.UUID, publicKey, encryptedPrivateKey string) error

	// Block methods
	IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error)
	GetBlockedPartners(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error)
	AddBlock(ctx context.Context, userID, blockedUserID uuid.UUID) error
	RemoveBlock(ctx context.Context, userID, blockedUserID uuid.UUID) error
	GetBlocksByUser(ctx context.Context, userID uuid.UUID) ([]*models.BlockRelation, error)

	// Message methods
	// SaveMessage assigns msg.Seq.
	SaveMessage(ctx context.Context, msg *models.DirectMessage) error
	GetMessage(ctx context.Context, msgID uuid.UUID) (*models.DirectMessage, error)
	DeactivateMessage(ctx context.Context, msgID uuid.UUID) error
	GetConversation(ctx context.Context, a, b uuid.UUID) ([]*models.DirectMessage, error)
	GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.DirectMessage, error)

	// Conversation marker methods
	UpsertReadMarker(ctx context.Context, userID, otherID uuid.UUID, at time.Time) error
	GetReadMarker(ctx context.Context, userID, otherID uuid.UUID) (*time.Time, error)
	GetReadMarkers(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error)
	UpsertDeletionMarker(ctx context.Context, userID, otherID uuid.UUID, at time.Time) error
	GetDeletionMarker(ctx context.Context, userID, otherID uuid.UUID) (*time.Time, error)
	GetDeletionMarkers(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error)
}

// Open connects to the backend selected by cfg.Type and prepares its schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (DBAdapter, error) {
	switch cfg.Type {
	case "postgres":
		pg, err := NewPostgresDB(cfg.URI)
		if err != nil {
			return nil, err
		}
		if err := pg.InitializeTables(ctx); err != nil {
			pg.Close(ctx)
			return nil, err
		}
		return pg, nil
	case "mongodb":
		mdb, err := NewMongoDB(cfg.URI, cfg.Name)
		if err != nil {
			return nil, err
		}
		if err := mdb.EnsureIndexes(ctx); err != nil {
			mdb.Close(ctx)
			return nil, err
		}
		return mdb, nil
	case "memory":
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// IsNotFound reports whether err is a missing-row error from any adapter.
func IsNotFound(err error) bool {
	return utils.IsErrorCode(err, utils.ErrNotFound) || utils.IsErrorCode(err, utils.ErrUserNotFound)
}

func newKeysExistError(userID uuid.UUID) *utils.AppError {
	return utils.NewAppError(utils.ErrKeysExist, "keys already issued for user "+userID.String(), nil)
}

func newMessageNotFoundError(msgID uuid.UUID) *utils.AppError {
	return utils.NewAppError(utils.ErrNotFound, "message not found: "+msgID.String(), nil)
}
