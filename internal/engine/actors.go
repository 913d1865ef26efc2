package engine

import (
	"time"

	"buddywalk/internal/conversation"
	"buddywalk/internal/database"
	"buddywalk/internal/engine/actors"
	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// Engine coordinates communication between actors
type Engine struct {
	directMessageActor *actor.PID
	userActor          *actor.PID
	conversations      *conversation.Engine
}

func NewEngine(system *actor.ActorSystem, store database.DBAdapter, clock conversation.Clock, metrics *utils.MetricsCollector, requestTimeout time.Duration) *Engine {
	context := system.Root
	conversations := conversation.NewEngine(store, clock)

	// Spawn direct message actor
	dmProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewDirectMessageActor(conversations, metrics, requestTimeout)
	})
	dmPID := context.Spawn(dmProps)

	// Spawn user actor
	userProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewUserActor(store, conversations, metrics, requestTimeout)
	})
	userPID := context.Spawn(userProps)

	return &Engine{
		directMessageActor: dmPID,
		userActor:          userPID,
		conversations:      conversations,
	}
}

// GetDirectMessageActor returns the PID of the direct message actor
func (e *Engine) GetDirectMessageActor() *actor.PID {
	return e.directMessageActor
}

// GetUserActor returns the PID of the user actor
func (e *Engine) GetUserActor() *actor.PID {
	return e.userActor
}
