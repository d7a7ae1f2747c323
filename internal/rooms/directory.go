// Package rooms holds the directory of chat rooms and their participants.
package rooms

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/gochat-engine/internal/chaterr"
	"github.com/npezzotti/gochat-engine/internal/types"
	"github.com/teris-io/shortid"
)

const directPrefix = "direct_"

// ParticipantResolver materializes participant details for a set of user
// ids. Implementations must not mutate their own state when called.
type ParticipantResolver interface {
	Participants(userIds []string) []types.Participant
}

type room struct {
	mu           sync.Mutex
	id           string
	name         string
	kind         types.RoomKind
	createdBy    string
	createdAt    time.Time
	members      []string
	pair         []string // direct rooms only
	lastMessage  *types.MessageSummary
	lastActivity time.Time
}

func (r *room) has(userId string) bool {
	return slices.Contains(r.members, userId)
}

// snapshot copies the room state. Caller holds r.mu.
func (r *room) snapshot() types.Room {
	rm := types.Room{
		Id:               r.id,
		Name:             r.name,
		Kind:             r.kind,
		CreatedBy:        r.createdBy,
		CreatedAt:        r.createdAt,
		ParticipantCount: len(r.members),
		LastActivity:     r.lastActivity,
	}
	if r.lastMessage != nil {
		lm := *r.lastMessage
		rm.LastMessage = &lm
	}

	return rm
}

type Directory struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	resolver ParticipantResolver
	newId    func() (string, error)
	now      func() time.Time
}

type Option func(*Directory)

func WithIdGenerator(gen func() (string, error)) Option {
	return func(d *Directory) {
		d.newId = gen
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

func NewDirectory(resolver ParticipantResolver, opts ...Option) *Directory {
	d := &Directory{
		rooms:    make(map[string]*room),
		resolver: resolver,
		newId:    shortid.Generate,
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// DirectRoomId returns the canonical id of the direct room shared by a and b:
// direct_<lo>_<hi> when neither id contains an underscore, otherwise
// direct_<len(lo)>:<lo>_<hi>. The two forms differ in their underscore count,
// so distinct pairs never share an id.
func DirectRoomId(a, b string) string {
	if b < a {
		a, b = b, a
	}
	if !strings.Contains(a, "_") && !strings.Contains(b, "_") {
		return directPrefix + a + "_" + b
	}

	return directPrefix + strconv.Itoa(len(a)) + ":" + a + "_" + b
}

func (d *Directory) CreateRoom(name, creatorId string) (types.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Room{}, chaterr.InvalidInput("room name is required")
	}
	if creatorId == "" {
		return types.Room{}, chaterr.InvalidInput("creator id is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var id string
	for {
		sid, err := d.newId()
		if err != nil {
			return types.Room{}, fmt.Errorf("generate room id: %w", err)
		}
		// generated ids must never shadow a direct room or an existing room
		if _, taken := d.rooms[sid]; !taken && !strings.HasPrefix(sid, directPrefix) {
			id = sid
			break
		}
	}

	now := d.now()
	r := &room{
		id:           id,
		name:         name,
		kind:         types.RoomKindGroup,
		createdBy:    creatorId,
		createdAt:    now,
		members:      []string{creatorId},
		lastActivity: now,
	}
	d.rooms[id] = r

	return d.view(r), nil
}

// GetOrCreateDirectRoom returns the direct room for the unordered pair
// (userA, userB), creating it on first use. The bool reports whether the
// room was created by this call.
func (d *Directory) GetOrCreateDirectRoom(userA, userB, name string) (types.Room, bool, error) {
	if userA == "" || userB == "" {
		return types.Room{}, false, chaterr.InvalidInput("both user ids are required")
	}
	if userA == userB {
		return types.Room{}, false, chaterr.InvalidInput("a direct room needs two distinct users")
	}

	id := DirectRoomId(userA, userB)

	d.mu.RLock()
	r, ok := d.rooms[id]
	d.mu.RUnlock()
	if ok {
		return d.view(r), false, nil
	}

	d.mu.Lock()
	if r, ok = d.rooms[id]; ok {
		d.mu.Unlock()
		return d.view(r), false, nil
	}

	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Direct %s & %s", lo, hi)
	}

	now := d.now()
	r = &room{
		id:           id,
		name:         name,
		kind:         types.RoomKindDirect,
		createdBy:    userA,
		createdAt:    now,
		members:      []string{userA, userB},
		pair:         []string{userA, userB},
		lastActivity: now,
	}
	d.rooms[id] = r
	d.mu.Unlock()

	return d.view(r), true, nil
}

func (d *Directory) lookup(roomId string) (*room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[roomId]
	if !ok {
		return nil, chaterr.NotFound("room %q not found", roomId)
	}

	return r, nil
}

func (d *Directory) Get(roomId string) (types.Room, error) {
	r, err := d.lookup(roomId)
	if err != nil {
		return types.Room{}, err
	}

	return d.view(r), nil
}

func (d *Directory) Exists(roomId string) bool {
	_, err := d.lookup(roomId)
	return err == nil
}

func (d *Directory) IsParticipant(roomId, userId string) (bool, error) {
	r, err := d.lookup(roomId)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.has(userId), nil
}

// ParticipantIds returns the room's members in join order.
func (d *Directory) ParticipantIds(roomId string) ([]string, error) {
	r, err := d.lookup(roomId)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.members), nil
}

// Join adds userId to the room. Joining twice is a no-op; the bool reports
// whether the membership changed. Direct rooms only admit their pair.
func (d *Directory) Join(roomId, userId string) (types.Room, bool, error) {
	if userId == "" {
		return types.Room{}, false, chaterr.InvalidInput("user id is required")
	}

	r, err := d.lookup(roomId)
	if err != nil {
		return types.Room{}, false, err
	}

	r.mu.Lock()
	if r.kind == types.RoomKindDirect && !slices.Contains(r.pair, userId) {
		r.mu.Unlock()
		return types.Room{}, false, chaterr.Conflict("room %q is restricted to its two participants", roomId)
	}
	added := !r.has(userId)
	if added {
		r.members = append(r.members, userId)
	}
	r.mu.Unlock()

	return d.view(r), added, nil
}

// Leave removes userId from the room. Leaving a room the user is not part of
// is a no-op; the last participant cannot leave.
func (d *Directory) Leave(roomId, userId string) (types.Room, bool, error) {
	r, err := d.lookup(roomId)
	if err != nil {
		return types.Room{}, false, err
	}

	r.mu.Lock()
	idx := slices.Index(r.members, userId)
	if idx >= 0 {
		if len(r.members) == 1 {
			r.mu.Unlock()
			return types.Room{}, false, chaterr.Conflict("the last participant cannot leave room %q", roomId)
		}
		r.members = slices.Delete(r.members, idx, idx+1)
	}
	r.mu.Unlock()

	return d.view(r), idx >= 0, nil
}

// RecordActivity stores summary as the room's last message. lastActivity
// never moves backwards.
func (d *Directory) RecordActivity(roomId string, summary types.MessageSummary) error {
	r, err := d.lookup(roomId)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastMessage = &summary
	if summary.Timestamp.After(r.lastActivity) {
		r.lastActivity = summary.Timestamp
	}

	return nil
}

// RoomsOf returns the ids of every room userId participates in.
func (d *Directory) RoomsOf(userId string) []string {
	var ids []string
	for _, r := range d.all() {
		r.mu.Lock()
		if r.has(userId) {
			ids = append(ids, r.id)
		}
		r.mu.Unlock()
	}
	sort.Strings(ids)

	return ids
}

func (d *Directory) List() []types.Room {
	return d.list(func(*room) bool { return true })
}

func (d *Directory) ListForUser(userId string) []types.Room {
	return d.list(func(r *room) bool { return r.has(userId) })
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.rooms)
}

func (d *Directory) all() []*room {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r)
	}

	return out
}

// list snapshots every room matching keep. The caller-visible ordering is
// lastActivity desc, then createdAt desc, then id asc.
func (d *Directory) list(keep func(*room) bool) []types.Room {
	out := []types.Room{}
	for _, r := range d.all() {
		r.mu.Lock()
		if !keep(r) {
			r.mu.Unlock()
			continue
		}
		rm := r.snapshot()
		members := slices.Clone(r.members)
		r.mu.Unlock()

		rm.Participants = d.participants(members)
		out = append(out, rm)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Id < b.Id
	})

	return out
}

func (d *Directory) view(r *room) types.Room {
	r.mu.Lock()
	rm := r.snapshot()
	members := slices.Clone(r.members)
	r.mu.Unlock()

	rm.Participants = d.participants(members)

	return rm
}

func (d *Directory) participants(ids []string) []types.Participant {
	if d.resolver == nil {
		out := make([]types.Participant, len(ids))
		for i, id := range ids {
			out[i] = types.Participant{Id: id}
		}
		return out
	}

	return d.resolver.Participants(ids)
}
