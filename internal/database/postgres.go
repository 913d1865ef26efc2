// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB *sqlx.DB
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL!")

	return &PostgresDB{
		DB: db,
	}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	log.Println("Closing PostgreSQL connection...")
	return p.DB.Close()
}

var schema = []struct {
	name string
	ddl  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			dog_name VARCHAR(100) NOT NULL DEFAULT '',
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(100) NOT NULL,
			gender VARCHAR(20) NOT NULL DEFAULT 'male',
			visible_to_gender VARCHAR(20) NOT NULL DEFAULT 'all',
			available BOOLEAN NOT NULL DEFAULT TRUE,
			public_key TEXT,
			encrypted_private_key TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			CHECK ((public_key IS NULL) = (encrypted_private_key IS NULL))
		)`},
	{"messages", `
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			seq BIGSERIAL UNIQUE,
			sender_id UUID NOT NULL REFERENCES users(id),
			receiver_id UUID NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			iv TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`},
	{"messages pair index", `
		CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, created_at)`},
	{"messages receiver index", `
		CREATE INDEX IF NOT EXISTS messages_receiver_idx ON messages (receiver_id, created_at)`},
	{"conversation_reads", `
		CREATE TABLE IF NOT EXISTS conversation_reads (
			user_id UUID NOT NULL,
			other_id UUID NOT NULL,
			last_seen_at TIMESTAMP WITH TIME ZONE NOT NULL,
			PRIMARY KEY (user_id, other_id)
		)`},
	{"conversation_deletions", `
		CREATE TABLE IF NOT EXISTS conversation_deletions (
			user_id UUID NOT NULL,
			other_id UUID NOT NULL,
			deleted_at TIMESTAMP WITH TIME ZONE NOT NULL,
			PRIMARY KEY (user_id, other_id)
		)`},
	{"blocks", `
		CREATE TABLE IF NOT EXISTS blocks (
			user_id UUID NOT NULL REFERENCES users(id),
			blocked_user_id UUID NOT NULL REFERENCES users(id),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (user_id, blocked_user_id)
		)`},
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.DB.ExecContext(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("failed to create %s: %v", stmt.name, err)
		}
	}
	return nil
}

// --- User Methods ---

const userColumns = `id, name, dog_name, email, password_hash, gender, visible_to_gender, available, public_key, encrypted_private_key, created_at`

func (p *PostgresDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewUserNotFoundError(id.String())
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get user", err)
	}
	return &user, nil
}

func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewUserNotFoundError(email)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get user by email", err)
	}
	return &user, nil
}

// SaveUser inserts a user or updates its profile columns. Key columns are
// only written through SetUserKeys.
func (p *PostgresDB) SaveUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO users (id, name, dog_name, email, password_hash, gender, visible_to_gender, available, public_key, encrypted_private_key, created_at)
		VALUES (:id, :name, :dog_name, :email, :password_hash, :gender, :visible_to_gender, :available, :public_key, :encrypted_private_key, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			dog_name = EXCLUDED.dog_name,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			gender = EXCLUDED.gender,
			visible_to_gender = EXCLUDED.visible_to_gender,
			available = EXCLUDED.available
	`
	if _, err := p.DB.NamedExecContext(ctx, query, user); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

func (p *PostgresDB) SetUserKeys(ctx context.Context, userID uuid.UUID, publicKey, encryptedPrivateKey string) error {
	result, err := p.DB.ExecContext(ctx, `
		UPDATE users SET public_key = $2, encrypted_private_key = $3
		WHERE id = $1 AND public_key IS NULL AND encrypted_private_key IS NULL`,
		userID, publicKey, encryptedPrivateKey)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to set user keys", err)
	}
	if rows, _ := result.RowsAffected(); rows == 1 {
		return nil
	}
	// Nothing updated: either the user is missing or keys were already issued.
	if _, err := p.GetUser(ctx, userID); err != nil {
		return err
	}
	return newKeysExistError(userID)
}

// --- Block Methods ---

func (p *PostgresDB) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var exists bool
	err := p.DB.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE (user_id = $1 AND blocked_user_id = $2)
			   OR (user_id = $2 AND blocked_user_id = $1)
		)`, a, b)
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check block relation", err)
	}
	return exists, nil
}

func (p *PostgresDB) GetBlockedPartners(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := p.DB.SelectContext(ctx, &ids, `
		SELECT blocked_user_id FROM blocks WHERE user_id = $1
		UNION
		SELECT user_id FROM blocks WHERE blocked_user_id = $1`, userID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query block relations", err)
	}
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (p *PostgresDB) AddBlock(ctx context.Context, userID, blockedUserID uuid.UUID) error {
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO blocks (user_id, blocked_user_id, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, blocked_user_id) DO NOTHING`, userID, blockedUserID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to add block", err)
	}
	return nil
}

func (p *PostgresDB) RemoveBlock(ctx context.Context, userID, blockedUserID uuid.UUID) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM blocks WHERE user_id = $1 AND blocked_user_id = $2`, userID, blockedUserID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to remove block", err)
	}
	return nil
}

func (p *PostgresDB) GetBlocksByUser(ctx context.Context, userID uuid.UUID) ([]*models.BlockRelation, error) {
	var blocks []*models.BlockRelation
	err := p.DB.SelectContext(ctx, &blocks, `
		SELECT user_id, blocked_user_id, created_at FROM blocks
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list blocks", err)
	}
	if blocks == nil {
		blocks = make([]*models.BlockRelation, 0)
	}
	return blocks, nil
}

// --- Message Methods ---

const messageColumns = `id, seq, sender_id, receiver_id, content, iv, created_at, active`

// SaveMessage inserts a new direct message and reads back its sequence number.
func (p *PostgresDB) SaveMessage(ctx context.Context, msg *models.DirectMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	err := p.DB.GetContext(ctx, &msg.Seq, `
		INSERT INTO messages (id, sender_id, receiver_id, content, iv, created_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.IV, msg.CreatedAt, msg.Active)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save message", err)
	}
	return nil
}

func (p *PostgresDB) GetMessage(ctx context.Context, msgID uuid.UUID) (*models.DirectMessage, error) {
	var msg models.DirectMessage
	err := p.DB.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, msgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newMessageNotFoundError(msgID)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get message", err)
	}
	return &msg, nil
}

func (p *PostgresDB) DeactivateMessage(ctx context.Context, msgID uuid.UUID) error {
	result, err := p.DB.ExecContext(ctx, `UPDATE messages SET active = FALSE WHERE id = $1`, msgID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to deactivate message", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return newMessageNotFoundError(msgID)
	}
	return nil
}

func (p *PostgresDB) GetConversation(ctx context.Context, a, b uuid.UUID) ([]*models.DirectMessage, error) {
	return p.selectMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, seq ASC`, a, b)
}

// GetMessagesByUser fetches all messages sent or received by a user.
func (p *PostgresDB) GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.DirectMessage, error) {
	return p.selectMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at ASC, seq ASC`, userID)
}

func (p *PostgresDB) selectMessages(ctx context.Context, query string, args ...interface{}) ([]*models.DirectMessage, error) {
	var messages []*models.DirectMessage
	if err := p.DB.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query messages", err)
	}
	if messages == nil {
		messages = make([]*models.DirectMessage, 0)
	}
	return messages, nil
}

// --- Conversation Marker Methods ---

func (p *PostgresDB) UpsertReadMarker(ctx context.Context, userID, otherID uuid.UUID, at time.Time) error {
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO conversation_reads (user_id, other_id, last_seen_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, other_id) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at`,
		userID, otherID, at)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to upsert read marker", err)
	}
	return nil
}

func (p *PostgresDB) GetReadMarker(ctx context.Context, userID, otherID uuid.UUID) (*time.Time, error) {
	return p.getMarker(ctx, `SELECT last_seen_at FROM conversation_reads WHERE user_id = $1 AND other_id = $2`, userID, otherID)
}

func (p *PostgresDB) GetReadMarkers(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	var rows []*models.ReadMarker
	if err := p.DB.SelectContext(ctx, &rows, `SELECT user_id, other_id, last_seen_at FROM conversation_reads WHERE user_id = $1`, userID); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query read markers", err)
	}
	out := make(map[uuid.UUID]time.Time, len(rows))
	for _, r := range rows {
		out[r.OtherID] = r.LastSeenAt
	}
	return out, nil
}

func (p *PostgresDB) UpsertDeletionMarker(ctx context.Context, userID, otherID uuid.UUID, at time.Time) error {
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO conversation_deletions (user_id, other_id, deleted_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, other_id) DO UPDATE SET deleted_at = EXCLUDED.deleted_at`,
		userID, otherID, at)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to upsert deletion marker", err)
	}
	return nil
}

func (p *PostgresDB) GetDeletionMarker(ctx context.Context, userID, otherID uuid.UUID) (*time.Time, error) {
	return p.getMarker(ctx, `SELECT deleted_at FROM conversation_deletions WHERE user_id = $1 AND other_id = $2`, userID, otherID)
}

func (p *PostgresDB) GetDeletionMarkers(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	var rows []*models.DeletionMarker
	if err := p.DB.SelectContext(ctx, &rows, `SELECT user_id, other_id, deleted_at FROM conversation_deletions WHERE user_id = $1`, userID); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query deletion markers", err)
	}
	out := make(map[uuid.UUID]time.Time, len(rows))
	for _, r := range rows {
		out[r.OtherID] = r.DeletedAt
	}
	return out, nil
}

func (p *PostgresDB) getMarker(ctx context.Context, query string, userID, otherID uuid.UUID) (*time.Time, error) {
	var at time.Time
	err := p.DB.GetContext(ctx, &at, query, userID, otherID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query conversation marker", err)
	}
	return &at, nil
}
