package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"buddywalk/internal/engine"
	"buddywalk/internal/middleware"
	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Server holds all server dependencies, including the actor system and engine
type Server struct {
	System         *actor.ActorSystem
	Context        *actor.RootContext
	Engine         *engine.Engine
	Metrics        *utils.MetricsCollector
	Tokens         *middleware.TokenIssuer
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	system *actor.ActorSystem,
	engine *engine.Engine,
	metrics *utils.MetricsCollector,
	tokens *middleware.TokenIssuer,
	requestTimeout time.Duration,
) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second // Default timeout for actor requests
	}
	return &Server{
		System:         system,
		Context:        system.Root,
		Engine:         engine,
		Metrics:        metrics,
		Tokens:         tokens,
		RequestTimeout: requestTimeout,
	}
}

// NewRouter registers every route and wraps them in auth and CORS.
func NewRouter(s *Server, cors *middleware.CORSConfig, metricsEnabled bool) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, h))
	}

	handle("GET /health", s.HandleHealth())
	if metricsEnabled {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	handle("POST /user/register", s.HandleUserRegistration())
	handle("POST /user/login", s.HandleUserLogin())
	handle("GET /user/me", s.HandleUserProfile())

	handle("GET /keys/public/{userId}", s.HandleGetPublicKey())
	handle("POST /keys", s.HandleUploadKeys())

	handle("POST /messages/send", s.HandleSendMessage())
	handle("GET /messages/with/{userId}", s.HandleGetConversation())
	handle("POST /messages/mark-read/{userId}", s.HandleMarkRead())
	handle("GET /messages/unread-count", s.HandleUnreadCount())
	handle("GET /messages/inbox", s.HandleInbox())
	handle("GET /messages/partner/{userId}", s.HandlePartnerName())
	handle("DELETE /messages/{id}", s.HandleDeleteMessage())
	handle("DELETE /messages/conversation/{userId}", s.HandleDeleteConversation())

	handle("POST /blocks/block", s.HandleBlockUser())
	handle("POST /blocks/unblock", s.HandleUnblockUser())
	handle("GET /blocks", s.HandleListBlocks())

	return middleware.CORSMiddleware(cors)(s.Tokens.AuthMiddleware(mux))
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics != nil {
			s.Metrics.IncrementRequests(route)
		}
		next(w, r)
	})
}

// ask sends msg to pid and unwraps the reply. On failure it has already
// written the error response and returns false.
func (s *Server) ask(w http.ResponseWriter, pid *actor.PID, msg interface{}) (interface{}, bool) {
	result, err := s.Context.RequestFuture(pid, msg, s.RequestTimeout).Result()
	if err != nil {
		log.Printf("HTTP Handler: actor request %T failed: %v", msg, err)
		s.writeError(w, utils.NewActorTimeoutError(pid.Id))
		return nil, false
	}
	if appErr, ok := result.(*utils.AppError); ok {
		s.writeError(w, appErr)
		return nil, false
	}
	return result, true
}

// callerID returns the authenticated user, or writes 401.
func (s *Server) callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		s.writeError(w, utils.NewUnauthorizedError("missing caller identity"))
		return uuid.Nil, false
	}
	return userID, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, "Invalid request body", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("HTTP Handler: Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, appErr *utils.AppError) {
	if s.Metrics != nil {
		s.Metrics.IncrementErrors(appErr.Code)
	}
	writeJSON(w, utils.AppErrorToHTTPStatus(appErr.Code), appErr)
}
