// Package messages keeps a bounded, ordered message history per room.
package messages

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/gochat-engine/internal/chaterr"
	"github.com/npezzotti/gochat-engine/internal/types"
)

const DefaultCapacity = 1000

// history is a ring that grows up to size entries. start indexes the oldest
// entry once the ring is full.
type history struct {
	mu    sync.Mutex
	buf   []types.Message
	size  int
	start int
	count int
	last  time.Time
}

func (h *history) push(msg types.Message) {
	if h.count < h.size {
		h.buf = append(h.buf, msg)
		h.count++
		return
	}

	h.buf[h.start] = msg
	h.start = (h.start + 1) % h.size
}

// tail copies the newest n entries, oldest first. Caller holds h.mu.
func (h *history) tail(n int) []types.Message {
	if n > h.count {
		n = h.count
	}
	out := make([]types.Message, 0, n)
	for i := h.count - n; i < h.count; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}

	return out
}

type Log struct {
	mu       sync.RWMutex
	rooms    map[string]*history
	capacity int
	now      func() time.Time
	newId    func() string
}

type Option func(*Log)

// WithCapacity sets the per-room history size. Values below one are ignored.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

func WithIdGenerator(gen func() string) Option {
	return func(l *Log) {
		l.newId = gen
	}
}

func NewLog(opts ...Option) *Log {
	l := &Log{
		rooms:    make(map[string]*history),
		capacity: DefaultCapacity,
		now:      func() time.Time { return time.Now().UTC() },
		newId:    uuid.NewString,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Log) Capacity() int {
	return l.capacity
}

func (l *Log) bucket(roomId string, create bool) *history {
	l.mu.RLock()
	h, ok := l.rooms[roomId]
	l.mu.RUnlock()
	if ok || !create {
		return h
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok = l.rooms[roomId]; !ok {
		h = &history{size: l.capacity}
		l.rooms[roomId] = h
	}

	return h
}

// Append stores a text message and returns it with its id and timestamp.
// Once a room holds Capacity messages the oldest one is evicted.
func (l *Log) Append(roomId, senderId, senderName, body string) (types.Message, error) {
	if roomId == "" {
		return types.Message{}, chaterr.InvalidInput("room id is required")
	}
	if senderId == "" {
		return types.Message{}, chaterr.InvalidInput("sender id is required")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return types.Message{}, chaterr.InvalidInput("message body cannot be empty")
	}

	h := l.bucket(roomId, true)
	h.mu.Lock()
	defer h.mu.Unlock()

	ts := l.now()
	if ts.Before(h.last) {
		ts = h.last
	}
	h.last = ts

	msg := types.Message{
		Id:         l.newId(),
		RoomId:     roomId,
		SenderId:   senderId,
		SenderName: senderName,
		Body:       body,
		Timestamp:  ts,
		Kind:       types.MessageKindText,
	}
	h.push(msg)

	return msg, nil
}

// ListAll returns every stored message of the room, oldest first.
func (l *Log) ListAll(roomId string) []types.Message {
	h := l.bucket(roomId, false)
	if h == nil {
		return []types.Message{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.tail(h.count)
}

// ListRecent returns the newest limit messages, oldest first.
func (l *Log) ListRecent(roomId string, limit int) []types.Message {
	h := l.bucket(roomId, false)
	if h == nil || limit <= 0 {
		return []types.Message{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.tail(limit)
}

// Search matches term case-insensitively against body and sender name. An
// empty term matches everything.
func (l *Log) Search(roomId, term string) []types.Message {
	all := l.ListAll(roomId)
	if term == "" {
		return all
	}

	needle := strings.ToLower(term)
	out := []types.Message{}
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Body), needle) ||
			strings.Contains(strings.ToLower(m.SenderName), needle) {
			out = append(out, m)
		}
	}

	return out
}

func (l *Log) Len(roomId string) int {
	h := l.bucket(roomId, false)
	if h == nil {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.count
}
