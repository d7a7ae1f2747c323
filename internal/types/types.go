package types

import (
	"time"
)

type RoomKind string

const (
	RoomKindDirect RoomKind = "direct"
	RoomKindGroup  RoomKind = "group"
)

const MessageKindText = "text"

type User struct {
	Id          string    `json:"id"`
	Username    string    `json:"username"`
	ContactInfo string    `json:"contact_info,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// PresenceRecord is the presence state of a single user. ConnectionId is
// empty while the user is offline.
type PresenceRecord struct {
	UserId       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	ConnectionId string    `json:"-"`
	Online       bool      `json:"online"`
	LastSeen     time.Time `json:"last_seen"`
}

type Participant struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

type MessageSummary struct {
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

type Room struct {
	Id               string          `json:"id"`
	Name             string          `json:"name"`
	Kind             RoomKind        `json:"kind"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	Participants     []Participant   `json:"participants"`
	ParticipantCount int             `json:"participant_count"`
	LastMessage      *MessageSummary `json:"last_message"`
	LastActivity     time.Time       `json:"last_activity"`
}

type Message struct {
	Id         string    `json:"id"`
	RoomId     string    `json:"room_id"`
	SenderId   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
}
