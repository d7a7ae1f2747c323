package server

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/npezzotti/gochat-engine/internal/chaterr"
	"github.com/npezzotti/gochat-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMessageDecode(t *testing.T) {
	tcases := []struct {
		name  string
		raw   string
		event string
		room  string
	}{
		{name: "connect", raw: `{"id":1,"connect":{"display_name":"Alice"}}`, event: EventConnect},
		{name: "join", raw: `{"id":2,"join_room":{"room_id":"r1","user_id":"u1"}}`, event: EventJoinRoom, room: "r1"},
		{name: "leave", raw: `{"leave_room":{"room_id":"r2"}}`, event: EventLeaveRoom, room: "r2"},
		{name: "send", raw: `{"send_message":{"room_id":"r3","body":"hi"}}`, event: EventSendMessage, room: "r3"},
		{name: "typing start", raw: `{"typing_start":{"room_id":"r4"}}`, event: EventTypingStart, room: "r4"},
		{name: "typing stop", raw: `{"typing_stop":{"room_id":"r5"}}`, event: EventTypingStop, room: "r5"},
		{name: "empty", raw: `{"id":3}`, event: ""},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var msg ClientMessage
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &msg))
			assert.Equal(t, tc.event, msg.Event())
			assert.Equal(t, tc.room, msg.RoomId())
		})
	}
}

func TestServerMessageEvent(t *testing.T) {
	tcases := []struct {
		msg   *ServerMessage
		event string
	}{
		{msg: &ServerMessage{ConnectedAck: &ConnectedAck{}}, event: EventConnectedAck},
		{msg: &ServerMessage{RoomJoined: &RoomJoined{}}, event: EventRoomJoined},
		{msg: &ServerMessage{ParticipantJoined: &ParticipantChange{}}, event: EventParticipantJoined},
		{msg: &ServerMessage{ParticipantLeft: &ParticipantChange{}}, event: EventParticipantLeft},
		{msg: &ServerMessage{NewMessage: &types.Message{}}, event: EventNewMessage},
		{msg: &ServerMessage{MessageAck: &MessageAck{}}, event: EventMessageAck},
		{msg: &ServerMessage{TypingIndicator: &TypingIndicator{}}, event: EventTypingIndicator},
		{msg: &ServerMessage{PresenceChanged: &PresenceChanged{}}, event: EventPresenceChanged},
		{msg: &ServerMessage{Error: &ErrorEvent{}}, event: EventError},
		{msg: &ServerMessage{}, event: ""},
	}

	for _, tc := range tcases {
		t.Run(tc.event, func(t *testing.T) {
			assert.Equal(t, tc.event, tc.msg.Event())
		})
	}
}

func TestErrMessage(t *testing.T) {
	t.Run("taxonomy error", func(t *testing.T) {
		msg := ErrMessage(4, chaterr.NotInRoom("r1"))

		assert.Equal(t, 4, msg.Id)
		assert.False(t, msg.Timestamp.IsZero())
		require.NotNil(t, msg.Error)
		assert.Equal(t, "not_in_room", msg.Error.Code)
		assert.Equal(t, `user not in room "r1"`, msg.Error.Message)
	})

	t.Run("internal error hides detail", func(t *testing.T) {
		msg := ErrMessage(0, errors.New("pq: connection reset"))

		assert.Equal(t, "internal", msg.Error.Code)
		assert.Equal(t, "internal server error", msg.Error.Message)
	})

	t.Run("helpers", func(t *testing.T) {
		assert.Equal(t, "invalid_input", ErrInvalidMessage(0).Error.Code)
		assert.Equal(t, "invalid message format", ErrInvalidMessage(0).Error.Message)
		assert.Equal(t, "unavailable", ErrServiceUnavailable(2).Error.Code)
		assert.Equal(t, "service unavailable", ErrServiceUnavailable(2).Error.Message)
	})
}
