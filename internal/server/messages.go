package server

import (
	"time"

	"github.com/npezzotti/gochat-engine/internal/chaterr"
	"github.com/npezzotti/gochat-engine/internal/types"
)

const (
	EventConnect           = "connect"
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventConnectedAck      = "connected_ack"
	EventRoomJoined        = "room_joined"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventNewMessage        = "new_message"
	EventMessageAck        = "message_ack"
	EventTypingIndicator   = "typing_indicator"
	EventPresenceChanged   = "presence_changed"
	EventError             = "error"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is an inbound event. Exactly one payload field is set.
type ClientMessage struct {
	BaseMessage
	Connect     *Connect     `json:"connect,omitempty"`
	JoinRoom    *RoomRequest `json:"join_room,omitempty"`
	LeaveRoom   *RoomRequest `json:"leave_room,omitempty"`
	SendMessage *SendMessage `json:"send_message,omitempty"`
	TypingStart *RoomRequest `json:"typing_start,omitempty"`
	TypingStop  *RoomRequest `json:"typing_stop,omitempty"`
}

type Connect struct {
	UserId      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	ContactInfo string `json:"contact_info,omitempty"`
}

type RoomRequest struct {
	RoomId string `json:"room_id"`
	UserId string `json:"user_id,omitempty"`
}

type SendMessage struct {
	RoomId      string `json:"room_id"`
	Body        string `json:"body"`
	UserId      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Event names the payload carried by m, or "" when none is set.
func (m *ClientMessage) Event() string {
	switch {
	case m.Connect != nil:
		return EventConnect
	case m.JoinRoom != nil:
		return EventJoinRoom
	case m.LeaveRoom != nil:
		return EventLeaveRoom
	case m.SendMessage != nil:
		return EventSendMessage
	case m.TypingStart != nil:
		return EventTypingStart
	case m.TypingStop != nil:
		return EventTypingStop
	}

	return ""
}

// RoomId returns the room an event is scoped to, or "".
func (m *ClientMessage) RoomId() string {
	switch {
	case m.JoinRoom != nil:
		return m.JoinRoom.RoomId
	case m.LeaveRoom != nil:
		return m.LeaveRoom.RoomId
	case m.SendMessage != nil:
		return m.SendMessage.RoomId
	case m.TypingStart != nil:
		return m.TypingStart.RoomId
	case m.TypingStop != nil:
		return m.TypingStop.RoomId
	}

	return ""
}

// ServerMessage is an outbound event. Exactly one payload field is set.
type ServerMessage struct {
	BaseMessage
	ConnectedAck      *ConnectedAck      `json:"connected_ack,omitempty"`
	RoomJoined        *RoomJoined        `json:"room_joined,omitempty"`
	ParticipantJoined *ParticipantChange `json:"participant_joined,omitempty"`
	ParticipantLeft   *ParticipantChange `json:"participant_left,omitempty"`
	NewMessage        *types.Message     `json:"new_message,omitempty"`
	MessageAck        *MessageAck        `json:"message_ack,omitempty"`
	TypingIndicator   *TypingIndicator   `json:"typing_indicator,omitempty"`
	PresenceChanged   *PresenceChanged   `json:"presence_changed,omitempty"`
	Error             *ErrorEvent        `json:"error,omitempty"`
}

type ConnectedAck struct {
	User  types.User   `json:"user"`
	Rooms []types.Room `json:"rooms"`
}

type RoomJoined struct {
	Room     types.Room      `json:"room"`
	Messages []types.Message `json:"messages"`
}

type ParticipantChange struct {
	RoomId           string            `json:"room_id"`
	User             types.Participant `json:"user"`
	ParticipantCount int               `json:"participant_count"`
}

type MessageAck struct {
	MessageId string    `json:"message_id"`
	RoomId    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingIndicator struct {
	RoomId      string `json:"room_id"`
	UserId      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Typing      bool   `json:"typing"`
}

type PresenceChanged struct {
	UserId      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"last_seen"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (m *ServerMessage) Event() string {
	switch {
	case m.ConnectedAck != nil:
		return EventConnectedAck
	case m.RoomJoined != nil:
		return EventRoomJoined
	case m.ParticipantJoined != nil:
		return EventParticipantJoined
	case m.ParticipantLeft != nil:
		return EventParticipantLeft
	case m.NewMessage != nil:
		return EventNewMessage
	case m.MessageAck != nil:
		return EventMessageAck
	case m.TypingIndicator != nil:
		return EventTypingIndicator
	case m.PresenceChanged != nil:
		return EventPresenceChanged
	case m.Error != nil:
		return EventError
	}

	return ""
}

// Delivery addresses one outbound event to one connection.
type Delivery struct {
	ConnectionId string
	Message      *ServerMessage
}

func newServerMessage(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
	}
}

// ErrMessage converts err into an error event. Errors outside the chaterr
// taxonomy are reported without their detail.
func ErrMessage(id int, err error) *ServerMessage {
	msg := newServerMessage(id)
	kind := chaterr.KindOf(err)
	msg.Error = &ErrorEvent{Code: kind.String(), Message: err.Error()}
	if kind == chaterr.KindInternal {
		msg.Error.Message = "internal server error"
	}

	return msg
}

func ErrInvalidMessage(id int) *ServerMessage {
	return ErrMessage(id, chaterr.InvalidInput("invalid message format"))
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return ErrMessage(id, chaterr.Unavailable("service unavailable", nil))
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
