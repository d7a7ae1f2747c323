// Package identity adapts the identity and relationship store to the chat
// engine. Store failures are translated into the chaterr taxonomy and every
// call is bounded by a timeout.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/npezzotti/gochat-engine/internal/chaterr"
	"github.com/npezzotti/gochat-engine/internal/database"
	"github.com/npezzotti/gochat-engine/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout = 5 * time.Second
	// SearchLimit caps the users returned by one search.
	SearchLimit = 50
)

type Service struct {
	repo    database.IdentityRepository
	timeout time.Duration
	log     zerolog.Logger
	lookups singleflight.Group
	observe func(types.User)
}

type Option func(*Service)

// WithObserver calls fn with every user the service registers or loads.
func WithObserver(fn func(types.User)) Option {
	return func(s *Service) {
		s.observe = fn
	}
}

func NewService(repo database.IdentityRepository, timeout time.Duration, logger zerolog.Logger, opts ...Option) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s := &Service{
		repo:    repo,
		timeout: timeout,
		log:     logger.With().Str("component", "identity").Logger(),
		observe: func(types.User) {},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) ResolveIdentity(ctx context.Context, userId string) (types.User, error) {
	if userId == "" {
		return types.User{}, chaterr.InvalidInput("user id is required")
	}

	// Concurrent lookups of one user share a single store call. The shared
	// call is detached from any one caller and bounded by the timeout.
	v, err, _ := s.lookups.Do(userId, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		return s.repo.GetUser(ctx, userId)
	})
	if err != nil {
		return types.User{}, s.mapErr("resolve identity", err, chaterr.NotFound("user %q not found", userId))
	}

	return s.seen(v.(database.User)), nil
}

// FindByContact returns the user registered with contact.
func (s *Service) FindByContact(ctx context.Context, contact string) (types.User, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return types.User{}, chaterr.InvalidInput("contact info is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := s.repo.GetUserByContact(ctx, contact)
	if err != nil {
		return types.User{}, s.mapErr("find by contact", err, chaterr.NotFound("no user with that contact info"))
	}

	return s.seen(u), nil
}

// SearchUsers matches query against names and contact info, leaving out
// excludeId.
func (s *Service) SearchUsers(ctx context.Context, query, excludeId string) ([]types.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, chaterr.InvalidInput("search query is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.repo.SearchUsers(ctx, database.SearchUsersParams{
		Query:     query,
		ExcludeId: excludeId,
		Limit:     SearchLimit,
	})
	if err != nil {
		return nil, s.mapErr("search users", err, nil)
	}

	users := make([]types.User, len(found))
	for i, u := range found {
		users[i] = s.seen(u)
	}

	return users, nil
}

func (s *Service) RegisterIdentity(ctx context.Context, displayName, contactInfo string) (types.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return types.User{}, chaterr.InvalidInput("display name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := s.repo.CreateUser(ctx, database.CreateUserParams{
		Username:    displayName,
		ContactInfo: strings.TrimSpace(contactInfo),
	})
	if err != nil {
		return types.User{}, s.mapErr("register identity", err, nil)
	}

	s.log.Info().Str("user_id", u.Id).Msg("registered identity")

	return s.seen(u), nil
}

func (s *Service) FriendsOf(ctx context.Context, userId string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	friends, err := s.repo.FriendsOf(ctx, userId)
	if err != nil {
		return nil, s.mapErr("list friends", err, nil)
	}

	return friends, nil
}

func (s *Service) AddFriend(ctx context.Context, userId, friendId string) error {
	if userId == "" || friendId == "" {
		return chaterr.InvalidInput("both user ids are required")
	}
	if userId == friendId {
		return chaterr.InvalidInput("users cannot befriend themselves")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.repo.AddFriend(ctx, userId, friendId)
	if errors.Is(err, database.ErrDuplicateFriend) {
		return chaterr.Conflict("already friends")
	}
	if err != nil {
		return s.mapErr("add friend", err, chaterr.NotFound("user not found"))
	}

	return nil
}

func (s *Service) RemoveFriend(ctx context.Context, userId, friendId string) error {
	if userId == "" || friendId == "" {
		return chaterr.InvalidInput("both user ids are required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.RemoveFriend(ctx, userId, friendId); err != nil {
		return s.mapErr("remove friend", err, chaterr.NotFound("user not found"))
	}

	return nil
}

func (s *Service) AreFriends(ctx context.Context, userId, friendId string) (bool, error) {
	if userId == "" || friendId == "" {
		return false, chaterr.InvalidInput("both user ids are required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.repo.AreFriends(ctx, userId, friendId)
	if err != nil {
		return false, s.mapErr("check friendship", err, nil)
	}

	return ok, nil
}

func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		return chaterr.Unavailable("identity store unreachable", err)
	}

	return nil
}

// mapErr turns sql.ErrNoRows into notFound when given and every other
// failure into Unavailable.
func (s *Service) mapErr(op string, err error, notFound *chaterr.Error) error {
	if notFound != nil && errors.Is(err, sql.ErrNoRows) {
		return notFound
	}

	s.log.Error().Err(err).Str("op", op).Msg("identity store call failed")

	return chaterr.Unavailable(op+" failed", err)
}

func (s *Service) seen(u database.User) types.User {
	user := toUser(u)
	s.observe(user)
	return user
}

func toUser(u database.User) types.User {
	return types.User{
		Id:          u.Id,
		Username:    u.Username,
		ContactInfo: u.ContactInfo,
		CreatedAt:   u.CreatedAt,
	}
}
