package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/gochat-engine/internal/config"
	"github.com/npezzotti/gochat-engine/internal/messages"
	"github.com/npezzotti/gochat-engine/internal/rooms"
	"github.com/npezzotti/gochat-engine/internal/server"
	"github.com/npezzotti/gochat-engine/internal/stats"
	"github.com/npezzotti/gochat-engine/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const MetricRoomsCreated = "NumRoomsCreated"

// IdentityService is the identity store as seen by the HTTP surface.
type IdentityService interface {
	ResolveIdentity(ctx context.Context, userId string) (types.User, error)
	RegisterIdentity(ctx context.Context, displayName, contactInfo string) (types.User, error)
	FindByContact(ctx context.Context, contact string) (types.User, error)
	SearchUsers(ctx context.Context, query, excludeId string) ([]types.User, error)
	AddFriend(ctx context.Context, userId, friendId string) error
	RemoveFriend(ctx context.Context, userId, friendId string) error
	AreFriends(ctx context.Context, userId, friendId string) (bool, error)
	FriendsOf(ctx context.Context, userId string) ([]string, error)
	Ping(ctx context.Context) error
}

type PresenceLookup interface {
	IsOnline(userId string) bool
}

type Deps struct {
	Hub      *server.Hub
	Rooms    *rooms.Directory
	Messages *messages.Log
	Identity IdentityService
	Presence PresenceLookup
	Stats    stats.StatsProvider

	// Instrument, when set, wraps the whole handler chain.
	Instrument func(http.Handler) http.Handler
}

type GoChatApp struct {
	log            zerolog.Logger
	srv            *http.Server
	hub            *server.Hub
	rooms          *rooms.Directory
	messages       *messages.Log
	identity       IdentityService
	presence       PresenceLookup
	stats          stats.StatsProvider
	allowedOrigins []string
	limiter        *rateLimiter
	stop           chan struct{}
	stopOnce       sync.Once
}

func NewGoChatApp(mux *http.ServeMux, logger zerolog.Logger, deps Deps, cfg *config.Config) *GoChatApp {
	s := &GoChatApp{
		log:            logger.With().Str("component", "api").Logger(),
		hub:            deps.Hub,
		rooms:          deps.Rooms,
		messages:       deps.Messages,
		identity:       deps.Identity,
		presence:       deps.Presence,
		stats:          deps.Stats,
		allowedOrigins: cfg.AllowedOrigins,
		stop:           make(chan struct{}),
	}

	if s.stats != nil {
		s.stats.RegisterMetric(MetricRoomsCreated)
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.HandleFunc("POST /api/rooms", s.createRoom)
	mux.HandleFunc("POST /api/rooms/direct", s.createDirectRoom)
	mux.HandleFunc("GET /api/rooms/{id}", s.getRoom)
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.getMessages)
	mux.HandleFunc("GET /api/users", s.searchUsers)
	mux.HandleFunc("POST /api/users", s.createUser)
	mux.HandleFunc("GET /api/users/{id}", s.getUser)
	mux.HandleFunc("GET /api/users/{id}/friends", s.getFriends)
	mux.HandleFunc("GET /api/users/{id}/friends/{friendId}", s.checkFriendship)
	mux.HandleFunc("POST /api/friends", s.addFriend)
	mux.HandleFunc("DELETE /api/friends", s.removeFriend)
	mux.HandleFunc("GET /ws", s.serveWs)

	var h http.Handler = noCache(mux)
	h = handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(h)
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst, limiterTTL)
		go s.limiter.run(s.stop)
		h = s.rateLimit(s.limiter, h)
	}
	h = s.requestLogger(h)
	if deps.Instrument != nil {
		h = deps.Instrument(h)
	}
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *GoChatApp) Handler() http.Handler {
	return s.srv.Handler
}
