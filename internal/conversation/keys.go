package conversation

import (
	"context"

	"buddywalk/internal/crypto/e2ee"
	"buddywalk/internal/database"
	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/google/uuid"
)

// PublicKey returns userID's public key, or nil if the user has none yet.
// Any authenticated caller may ask.
func (e *Engine) PublicKey(ctx context.Context, requester uuid.UUID, userID string) (*string, error) {
	id, err := parseID(userID, "userId")
	if err != nil {
		return nil, err
	}
	user, err := e.store.GetUser(ctx, id)
	if database.IsNotFound(err) {
		return nil, utils.NewAppError(utils.ErrNotFound, "user not found", nil)
	}
	if err != nil {
		return nil, err
	}
	return user.PublicKey, nil
}

// UploadKeys stores a keypair generated on the requester's device. Keys are
// issued once; a second upload fails with ErrKeysExist.
func (e *Engine) UploadKeys(ctx context.Context, requester uuid.UUID, publicKey, encryptedPrivateKey string) error {
	if err := ValidateKeys(publicKey, encryptedPrivateKey); err != nil {
		return err
	}
	return e.store.SetUserKeys(ctx, requester, publicKey, encryptedPrivateKey)
}

// ValidateKeys checks the shape of an uploaded keypair without touching the
// store.
func ValidateKeys(publicKey, encryptedPrivateKey string) error {
	if publicKey == "" || encryptedPrivateKey == "" {
		return invalidInput("publicKey and encryptedPrivateKey are required")
	}
	if _, err := e2ee.ImportPublicKey(publicKey); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "publicKey is not a P-256 SPKI key", err)
	}
	if _, err := e2ee.ParseWrappedKey(encryptedPrivateKey); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "encryptedPrivateKey is not a wrapped key", err)
	}
	return nil
}

// Block records that requester blocks targetID. Blocking twice is a no-op.
func (e *Engine) Block(ctx context.Context, requester uuid.UUID, targetID string) error {
	target, err := parseID(targetID, "userId")
	if err != nil {
		return err
	}
	if target == requester {
		return invalidInput("cannot block self")
	}
	if _, err := e.store.GetUser(ctx, target); err != nil {
		if database.IsNotFound(err) {
			return utils.NewAppError(utils.ErrNotFound, "user not found", nil)
		}
		return err
	}
	return e.store.AddBlock(ctx, requester, target)
}

func (e *Engine) Unblock(ctx context.Context, requester uuid.UUID, targetID string) error {
	target, err := parseID(targetID, "userId")
	if err != nil {
		return err
	}
	return e.store.RemoveBlock(ctx, requester, target)
}

func (e *Engine) ListBlocks(ctx context.Context, requester uuid.UUID) ([]*models.BlockRelation, error) {
	return e.store.GetBlocksByUser(ctx, requester)
}
