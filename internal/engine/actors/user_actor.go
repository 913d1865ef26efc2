package actors

import (
	stdctx "context"
	"log"
	"strings"
	"time"

	"buddywalk/internal/conversation"
	"buddywalk/internal/database"
	"buddywalk/internal/models"
	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Message types for UserActor
type (
	RegisterUserMsg struct {
		Name                string
		DogName             string
		Email               string
		Password            string
		Gender              string
		VisibleToGender     string
		PublicKey           string
		EncryptedPrivateKey string
	}

	LoginMsg struct {
		Email    string
		Password string
	}

	GetUserProfileMsg struct {
		UserID uuid.UUID
	}

	GetPublicKeyMsg struct {
		RequesterID uuid.UUID
		UserID      string
	}

	UploadKeysMsg struct {
		UserID              uuid.UUID
		PublicKey           string
		EncryptedPrivateKey string
	}

	BlockUserMsg struct {
		UserID   uuid.UUID
		TargetID string
	}

	UnblockUserMsg struct {
		UserID   uuid.UUID
		TargetID string
	}

	ListBlocksMsg struct {
		UserID uuid.UUID
	}
)

// PublicKeyResult answers GetPublicKeyMsg; PublicKey is nil when the user has
// not been issued keys yet.
type PublicKeyResult struct {
	UserID    string
	PublicKey *string
}

// UserActor handles account, key and block operations. It keeps no state
// between messages; the store is the source of truth.
type UserActor struct {
	store          database.DBAdapter
	conversations  *conversation.Engine
	metrics        *utils.MetricsCollector
	requestTimeout time.Duration
	bcryptCost     int
}

func NewUserActor(store database.DBAdapter, conversations *conversation.Engine, metrics *utils.MetricsCollector, requestTimeout time.Duration) *UserActor {
	return &UserActor{
		store:          store,
		conversations:  conversations,
		metrics:        metrics,
		requestTimeout: requestTimeout,
		bcryptCost:     bcrypt.DefaultCost,
	}
}

func hashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func (a *UserActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *RegisterUserMsg:
		a.handleRegister(context, msg)
	case *LoginMsg:
		a.handleLogin(context, msg)
	case *GetUserProfileMsg:
		a.run(context, "get_profile", func(ctx stdctx.Context) (interface{}, error) {
			return a.store.GetUser(ctx, msg.UserID)
		})
	case *GetPublicKeyMsg:
		a.run(context, "get_public_key", func(ctx stdctx.Context) (interface{}, error) {
			key, err := a.conversations.PublicKey(ctx, msg.RequesterID, msg.UserID)
			if err != nil {
				return nil, err
			}
			return &PublicKeyResult{UserID: msg.UserID, PublicKey: key}, nil
		})
	case *UploadKeysMsg:
		a.run(context, "upload_keys", func(ctx stdctx.Context) (interface{}, error) {
			if err := a.conversations.UploadKeys(ctx, msg.UserID, msg.PublicKey, msg.EncryptedPrivateKey); err != nil {
				return nil, err
			}
			log.Printf("UserActor: keys issued for user %s", msg.UserID)
			return true, nil
		})
	case *BlockUserMsg:
		a.run(context, "block_user", func(ctx stdctx.Context) (interface{}, error) {
			return true, a.conversations.Block(ctx, msg.UserID, msg.TargetID)
		})
	case *UnblockUserMsg:
		a.run(context, "unblock_user", func(ctx stdctx.Context) (interface{}, error) {
			return true, a.conversations.Unblock(ctx, msg.UserID, msg.TargetID)
		})
	case *ListBlocksMsg:
		a.run(context, "list_blocks", func(ctx stdctx.Context) (interface{}, error) {
			return a.conversations.ListBlocks(ctx, msg.UserID)
		})
	}
}

// run executes op under the actor's request timeout and responds with its
// result or an *utils.AppError.
func (a *UserActor) run(context actor.Context, operation string, op func(stdctx.Context) (interface{}, error)) {
	respond(context, a.metrics, a.requestTimeout, operation, op)
}

func (a *UserActor) handleRegister(context actor.Context, msg *RegisterUserMsg) {
	a.run(context, "register_user", func(ctx stdctx.Context) (interface{}, error) {
		email := strings.TrimSpace(msg.Email)
		if email == "" || msg.Password == "" || strings.TrimSpace(msg.Name) == "" {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "name, email and password are required", nil)
		}
		withKeys := msg.PublicKey != "" || msg.EncryptedPrivateKey != ""
		if withKeys {
			if err := conversation.ValidateKeys(msg.PublicKey, msg.EncryptedPrivateKey); err != nil {
				return nil, err
			}
		}

		existing, err := a.store.GetUserByEmail(ctx, email)
		if err != nil && !database.IsNotFound(err) {
			return nil, err
		}
		if existing != nil {
			log.Printf("UserActor: email already registered: %s", email)
			return nil, utils.NewAppError(utils.ErrDuplicate, "Email already registered", nil)
		}

		hashed, err := hashPassword(msg.Password, a.bcryptCost)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrInvalidInput, "Failed to hash password", err)
		}

		visibleTo := msg.VisibleToGender
		if visibleTo == "" {
			visibleTo = models.VisibleToAll
		}
		user := &models.User{
			ID:              uuid.New(),
			Name:            strings.TrimSpace(msg.Name),
			DogName:         strings.TrimSpace(msg.DogName),
			Email:           email,
			HashedPassword:  hashed,
			Gender:          msg.Gender,
			VisibleToGender: visibleTo,
			Available:       true,
			CreatedAt:       time.Now().UTC(),
		}
		// The keypair goes in with the insert so the account never exists
		// without it.
		if withKeys {
			user.PublicKey = &msg.PublicKey
			user.EncryptedPrivateKey = &msg.EncryptedPrivateKey
		}
		if err := a.store.SaveUser(ctx, user); err != nil {
			return nil, err
		}

		log.Printf("UserActor: created user %s", user.ID)
		return user, nil
	})
}

func (a *UserActor) handleLogin(context actor.Context, msg *LoginMsg) {
	a.run(context, "login", func(ctx stdctx.Context) (interface{}, error) {
		log.Printf("UserActor: processing login request for email: %s", msg.Email)
		invalid := utils.NewAppError(utils.ErrInvalidCredentials, "Invalid credentials", nil)

		user, err := a.store.GetUserByEmail(ctx, strings.TrimSpace(msg.Email))
		if database.IsNotFound(err) {
			return nil, invalid
		}
		if err != nil {
			return nil, err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(msg.Password)); err != nil {
			log.Printf("UserActor: login failed for user %s", user.ID)
			return nil, invalid
		}
		return user, nil
	})
}
