package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/gochat-engine/internal/chaterr"
	"github.com/npezzotti/gochat-engine/internal/messages"
	"github.com/npezzotti/gochat-engine/internal/presence"
	"github.com/npezzotti/gochat-engine/internal/rooms"
	"github.com/npezzotti/gochat-engine/internal/stats"
	"github.com/npezzotti/gochat-engine/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultSnapshotLimit = 50
	DefaultCallTimeout   = 5 * time.Second

	MetricActiveSessions = "NumActiveSessions"
	MetricMessagesSent   = "NumMessagesSent"
)

// IdentityProvider is the identity and relationship store as seen by the
// router.
type IdentityProvider interface {
	ResolveIdentity(ctx context.Context, userId string) (types.User, error)
	RegisterIdentity(ctx context.Context, displayName, contactInfo string) (types.User, error)
	FriendsOf(ctx context.Context, userId string) ([]string, error)
}

type ConnState int

const (
	StateUnauthenticated ConnState = iota
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

type session struct {
	state ConnState
	user  types.User
	name  string
}

// Router is the per-connection state machine. It validates inbound events
// against the stores, applies them and returns the deliveries they cause.
// It never writes to a connection itself.
type Router struct {
	log           zerolog.Logger
	presence      *presence.Registry
	rooms         *rooms.Directory
	messages      *messages.Log
	identity      IdentityProvider
	stats         stats.StatsProvider
	snapshotLimit int
	callTimeout   time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type RouterOption func(*Router)

func WithSnapshotLimit(n int) RouterOption {
	return func(r *Router) {
		r.snapshotLimit = n
	}
}

// WithCallTimeout bounds every identity store call made by the router.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

func NewRouter(
	logger zerolog.Logger,
	reg *presence.Registry,
	dir *rooms.Directory,
	msgLog *messages.Log,
	identity IdentityProvider,
	su stats.StatsProvider,
	opts ...RouterOption,
) *Router {
	r := &Router{
		log:           logger.With().Str("component", "router").Logger(),
		presence:      reg,
		rooms:         dir,
		messages:      msgLog,
		identity:      identity,
		stats:         su,
		snapshotLimit: DefaultSnapshotLimit,
		callTimeout:   DefaultCallTimeout,
		sessions:      make(map[string]*session),
	}

	for _, opt := range opts {
		opt(r)
	}

	su.RegisterMetric(MetricActiveSessions)
	su.RegisterMetric(MetricMessagesSent)

	return r
}

// Open registers a new unauthenticated connection.
func (r *Router) Open(connId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connId]; !ok {
		r.sessions[connId] = &session{state: StateUnauthenticated}
	}
}

func (r *Router) State(connId string) ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connId]; ok {
		return s.state
	}

	return StateClosed
}

func (r *Router) lookup(connId string) (session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connId]
	if !ok {
		return session{}, false
	}

	return *s, true
}

// Dispatch applies one inbound event from connId. Every failure is turned
// into a single error event addressed to connId. Events from closed or
// unknown connections are dropped.
func (r *Router) Dispatch(ctx context.Context, connId string, msg *ClientMessage) []Delivery {
	sess, ok := r.lookup(connId)
	if !ok || sess.state == StateClosed {
		return nil
	}

	if msg == nil {
		return r.fail(connId, 0, "", chaterr.InvalidInput("empty event"))
	}

	event := msg.Event()
	if event == "" {
		return r.fail(connId, msg.Id, event, chaterr.InvalidInput("unknown event"))
	}

	// in-flight work completes even if the connection goes away
	ctx = context.WithoutCancel(ctx)

	if event != EventConnect && sess.state != StateActive {
		return r.fail(connId, msg.Id, event, chaterr.NotAuthorized("connect before sending %s", event))
	}

	var (
		out []Delivery
		err error
	)
	switch event {
	case EventConnect:
		out, err = r.handleConnect(ctx, connId, sess, msg)
	case EventJoinRoom:
		out, err = r.handleJoin(connId, sess, msg)
	case EventLeaveRoom:
		out, err = r.handleLeave(connId, sess, msg)
	case EventSendMessage:
		out, err = r.handleSend(connId, sess, msg)
	case EventTypingStart:
		out, err = r.handleTyping(connId, sess, msg.TypingStart, true)
	case EventTypingStop:
		out, err = r.handleTyping(connId, sess, msg.TypingStop, false)
	}
	if err != nil {
		return r.fail(connId, msg.Id, event, err)
	}

	return out
}

// Close moves connId to Closed. If it was active, the user goes offline and
// every contact with a live connection is told.
func (r *Router) Close(ctx context.Context, connId string) []Delivery {
	r.mu.Lock()
	sess, ok := r.sessions[connId]
	if !ok || sess.state != StateActive {
		delete(r.sessions, connId)
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, connId)
	rec, ok := r.presence.Disconnect(connId)
	r.mu.Unlock()
	r.stats.Decr(MetricActiveSessions)

	if !ok {
		// superseded by a newer connection; the user is still online
		r.log.Debug().Str("conn_id", connId).Str("user_id", sess.user.Id).Msg("closed superseded connection")
		return nil
	}

	r.log.Info().Str("conn_id", connId).Str("user_id", rec.UserId).Msg("user went offline")

	return r.notifyContacts(context.WithoutCancel(ctx), rec)
}

func (r *Router) fail(connId string, id int, event string, err error) []Delivery {
	ev := r.log.Warn()
	if chaterr.KindOf(err) == chaterr.KindInternal {
		ev = r.log.Error()
	}
	ev.Err(err).Str("conn_id", connId).Str("event", event).Msg("event rejected")

	return []Delivery{{ConnectionId: connId, Message: ErrMessage(id, err)}}
}

func (r *Router) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.callTimeout)
}

func (r *Router) handleConnect(ctx context.Context, connId string, sess session, msg *ClientMessage) ([]Delivery, error) {
	if sess.state == StateActive {
		return nil, chaterr.Conflict("connection is already authenticated")
	}

	p := msg.Connect
	callCtx, cancel := r.callCtx(ctx)
	defer cancel()

	var (
		user types.User
		err  error
	)
	if p.UserId != "" {
		user, err = r.identity.ResolveIdentity(callCtx, p.UserId)
	} else {
		if p.DisplayName == "" {
			return nil, chaterr.InvalidInput("display name is required without a user id")
		}
		user, err = r.identity.RegisterIdentity(callCtx, p.DisplayName, p.ContactInfo)
	}
	if err != nil {
		return nil, err
	}

	name := p.DisplayName
	if name == "" {
		name = user.Username
	}

	r.mu.Lock()
	s, ok := r.sessions[connId]
	if !ok || s.state != StateUnauthenticated {
		// closed or connected concurrently while the identity call ran
		r.mu.Unlock()
		return nil, nil
	}
	s.state = StateActive
	s.user = user
	s.name = name
	// presence is updated under r.mu so a racing Close observes it
	rec := r.presence.Connect(user.Id, name, connId)
	r.mu.Unlock()
	r.stats.Incr(MetricActiveSessions)
	r.log.Info().Str("conn_id", connId).Str("user_id", user.Id).Msg("user connected")

	ack := newServerMessage(msg.Id)
	ack.ConnectedAck = &ConnectedAck{
		User:  user,
		Rooms: r.rooms.ListForUser(user.Id),
	}

	out := []Delivery{{ConnectionId: connId, Message: ack}}

	return append(out, r.notifyContacts(ctx, rec)...), nil
}

// authorize rejects payloads that claim an identity other than the one
// bound to the connection.
func authorize(sess session, claimed string) error {
	if claimed != "" && claimed != sess.user.Id {
		return chaterr.NotAuthorized("user %q does not match the connected identity", claimed)
	}

	return nil
}

func (r *Router) handleJoin(connId string, sess session, msg *ClientMessage) ([]Delivery, error) {
	p := msg.JoinRoom
	if p.RoomId == "" {
		return nil, chaterr.InvalidInput("room id is required")
	}
	if err := authorize(sess, p.UserId); err != nil {
		return nil, err
	}

	room, added, err := r.rooms.Join(p.RoomId, sess.user.Id)
	if err != nil {
		return nil, err
	}

	snap := newServerMessage(msg.Id)
	snap.RoomJoined = &RoomJoined{
		Room:     room,
		Messages: r.messages.ListRecent(room.Id, r.snapshotLimit),
	}
	out := []Delivery{{ConnectionId: connId, Message: snap}}

	if added {
		r.log.Info().Str("room_id", room.Id).Str("user_id", sess.user.Id).Msg("joined room")

		notice := newServerMessage(0)
		notice.ParticipantJoined = &ParticipantChange{
			RoomId:           room.Id,
			User:             r.participant(sess),
			ParticipantCount: room.ParticipantCount,
		}
		out = append(out, r.fanout(room.Id, notice, sess.user.Id)...)
	}

	return out, nil
}

func (r *Router) handleLeave(connId string, sess session, msg *ClientMessage) ([]Delivery, error) {
	p := msg.LeaveRoom
	if p.RoomId == "" {
		return nil, chaterr.InvalidInput("room id is required")
	}
	if err := authorize(sess, p.UserId); err != nil {
		return nil, err
	}

	room, removed, err := r.rooms.Leave(p.RoomId, sess.user.Id)
	if err != nil {
		return nil, err
	}

	notice := newServerMessage(msg.Id)
	notice.ParticipantLeft = &ParticipantChange{
		RoomId:           room.Id,
		User:             r.participant(sess),
		ParticipantCount: room.ParticipantCount,
	}

	out := []Delivery{{ConnectionId: connId, Message: notice}}
	if removed {
		r.log.Info().Str("room_id", room.Id).Str("user_id", sess.user.Id).Msg("left room")
		out = append(out, r.fanout(room.Id, notice, sess.user.Id)...)
	}

	return out, nil
}

func (r *Router) handleSend(connId string, sess session, msg *ClientMessage) ([]Delivery, error) {
	p := msg.SendMessage
	if p.RoomId == "" {
		return nil, chaterr.InvalidInput("room id is required")
	}
	if err := authorize(sess, p.UserId); err != nil {
		return nil, err
	}

	member, err := r.rooms.IsParticipant(p.RoomId, sess.user.Id)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, chaterr.NotInRoom(p.RoomId)
	}

	stored, err := r.messages.Append(p.RoomId, sess.user.Id, sess.name, p.Body)
	if err != nil {
		return nil, err
	}

	err = r.rooms.RecordActivity(p.RoomId, types.MessageSummary{
		Text:      stored.Body,
		Sender:    stored.SenderName,
		Timestamp: stored.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	r.stats.Incr(MetricMessagesSent)

	broadcast := newServerMessage(0)
	broadcast.NewMessage = &stored
	out := r.fanout(p.RoomId, broadcast, "")

	ack := newServerMessage(msg.Id)
	ack.MessageAck = &MessageAck{
		MessageId: stored.Id,
		RoomId:    stored.RoomId,
		Timestamp: stored.Timestamp,
	}

	return append(out, Delivery{ConnectionId: connId, Message: ack}), nil
}

// handleTyping relays a typing indicator. It is best effort: unknown rooms
// and non-participants are ignored without an error.
func (r *Router) handleTyping(connId string, sess session, p *RoomRequest, typing bool) ([]Delivery, error) {
	if err := authorize(sess, p.UserId); err != nil {
		return nil, err
	}

	member, err := r.rooms.IsParticipant(p.RoomId, sess.user.Id)
	if err != nil || !member {
		return nil, nil
	}

	ind := newServerMessage(0)
	ind.TypingIndicator = &TypingIndicator{
		RoomId:      p.RoomId,
		UserId:      sess.user.Id,
		DisplayName: sess.name,
		Typing:      typing,
	}

	return r.fanout(p.RoomId, ind, sess.user.Id), nil
}

// fanout addresses msg to the live connection of every participant of
// roomId except skipUser.
func (r *Router) fanout(roomId string, msg *ServerMessage, skipUser string) []Delivery {
	ids, err := r.rooms.ParticipantIds(roomId)
	if err != nil {
		return nil
	}

	var out []Delivery
	for _, id := range ids {
		if id == skipUser {
			continue
		}
		if conn, ok := r.presence.ConnectionOf(id); ok {
			out = append(out, Delivery{ConnectionId: conn, Message: msg})
		}
	}

	return out
}

func (r *Router) participant(sess session) types.Participant {
	return types.Participant{
		Id:       sess.user.Id,
		Username: sess.name,
		Online:   r.presence.IsOnline(sess.user.Id),
	}
}

// contacts returns the friends of userId and everyone sharing a room with
// them, deduplicated, sorted and without userId itself. A failing friend
// lookup degrades to room contacts only.
func (r *Router) contacts(ctx context.Context, userId string) []string {
	set := make(map[string]struct{})

	callCtx, cancel := r.callCtx(ctx)
	friends, err := r.identity.FriendsOf(callCtx, userId)
	cancel()
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", userId).Msg("friend lookup failed, notifying room contacts only")
	}
	for _, id := range friends {
		set[id] = struct{}{}
	}

	for _, roomId := range r.rooms.RoomsOf(userId) {
		ids, err := r.rooms.ParticipantIds(roomId)
		if err != nil {
			continue
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	delete(set, userId)

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)

	return out
}

func (r *Router) notifyContacts(ctx context.Context, rec types.PresenceRecord) []Delivery {
	notice := newServerMessage(0)
	notice.PresenceChanged = &PresenceChanged{
		UserId:      rec.UserId,
		DisplayName: rec.DisplayName,
		Online:      rec.Online,
		LastSeen:    rec.LastSeen,
	}

	var out []Delivery
	for _, id := range r.contacts(ctx, rec.UserId) {
		if conn, ok := r.presence.ConnectionOf(id); ok {
			out = append(out, Delivery{ConnectionId: conn, Message: notice})
		}
	}

	return out
}
