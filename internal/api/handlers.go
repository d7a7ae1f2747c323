package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/gochat-engine/internal/server"
	"github.com/npezzotti/gochat-engine/internal/types"
)

type CreateRoomRequest struct {
	Name      string `json:"name"`
	CreatorId string `json:"creator_id"`
}

type CreateDirectRoomRequest struct {
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`
	Name  string `json:"name"`
}

type CreateUserRequest struct {
	DisplayName string `json:"display_name"`
	ContactInfo string `json:"contact_info"`
}

type FriendRequest struct {
	UserId   string `json:"user_id"`
	FriendId string `json:"friend_id"`
}

// UserStatus is a user together with their current presence.
type UserStatus struct {
	types.User
	Online bool `json:"online"`
}

type FriendshipResponse struct {
	Friends bool `json:"friends"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *GoChatApp) writeError(w http.ResponseWriter, err error) {
	errResp := fromError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error().Err(err).Int("status", errResp.StatusCode).Msg("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *GoChatApp) readJson(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return false
	}

	return true
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.Ping(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("health check")
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	var list []types.Room
	if userId := r.URL.Query().Get("user_id"); userId != "" {
		list = s.rooms.ListForUser(userId)
	} else {
		list = s.rooms.List()
	}

	s.writeJson(w, http.StatusOK, list)
}

func (s *GoChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *GoChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !s.readJson(w, r, &req) {
		return
	}

	if req.CreatorId != "" {
		if _, err := s.identity.ResolveIdentity(r.Context(), req.CreatorId); err != nil {
			s.writeError(w, err)
			return
		}
	}

	room, err := s.rooms.CreateRoom(req.Name, req.CreatorId)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.roomCreated()

	s.writeJson(w, http.StatusCreated, room)
}

// createDirectRoom answers 201 when the room is new and 200 when the pair
// already had one.
func (s *GoChatApp) createDirectRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectRoomRequest
	if !s.readJson(w, r, &req) {
		return
	}

	if req.UserA != "" && req.UserB != "" && req.UserA != req.UserB {
		for _, id := range []string{req.UserA, req.UserB} {
			if _, err := s.identity.ResolveIdentity(r.Context(), id); err != nil {
				s.writeError(w, err)
				return
			}
		}
	}

	room, created, err := s.rooms.GetOrCreateDirectRoom(req.UserA, req.UserB, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.roomCreated()
	}

	s.writeJson(w, status, room)
}

func (s *GoChatApp) roomCreated() {
	if s.stats != nil {
		s.stats.Incr(MetricRoomsCreated)
	}
}

// getMessages returns a room's history, oldest first. q filters by body or
// sender name; limit keeps only the newest matches.
func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("id")
	if _, err := s.rooms.Get(roomId); err != nil {
		s.writeError(w, err)
		return
	}

	limit := -1
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		limit = n
	}

	var history []types.Message
	switch q := r.URL.Query().Get("q"); {
	case q != "":
		history = s.messages.Search(roomId, q)
		if limit >= 0 && len(history) > limit {
			history = history[len(history)-limit:]
		}
	case limit >= 0:
		history = s.messages.ListRecent(roomId, limit)
	default:
		history = s.messages.ListAll(roomId)
	}

	s.writeJson(w, http.StatusOK, history)
}

func (s *GoChatApp) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !s.readJson(w, r, &req) {
		return
	}

	user, err := s.identity.RegisterIdentity(r.Context(), req.DisplayName, req.ContactInfo)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, user)
}

func (s *GoChatApp) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.identity.ResolveIdentity(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, user)
}

func (s *GoChatApp) addFriend(w http.ResponseWriter, r *http.Request) {
	var req FriendRequest
	if !s.readJson(w, r, &req) {
		return
	}

	if err := s.identity.AddFriend(r.Context(), req.UserId, req.FriendId); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoChatApp) removeFriend(w http.ResponseWriter, r *http.Request) {
	var req FriendRequest
	if !s.readJson(w, r, &req) {
		return
	}

	if err := s.identity.RemoveFriend(r.Context(), req.UserId, req.FriendId); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoChatApp) checkFriendship(w http.ResponseWriter, r *http.Request) {
	ok, err := s.identity.AreFriends(r.Context(), r.PathValue("id"), r.PathValue("friendId"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, FriendshipResponse{Friends: ok})
}

// searchUsers looks a user up by exact contact info when contact is given,
// otherwise matches q against names and contact info.
func (s *GoChatApp) searchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if contact := query.Get("contact"); contact != "" {
		user, err := s.identity.FindByContact(r.Context(), contact)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJson(w, http.StatusOK, []UserStatus{s.withPresence(user)})
		return
	}

	users, err := s.identity.SearchUsers(r.Context(), query.Get("q"), query.Get("exclude"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]UserStatus, len(users))
	for i, u := range users {
		out[i] = s.withPresence(u)
	}

	s.writeJson(w, http.StatusOK, out)
}

func (s *GoChatApp) withPresence(u types.User) UserStatus {
	return UserStatus{User: u, Online: s.presence.IsOnline(u.Id)}
}

func (s *GoChatApp) getFriends(w http.ResponseWriter, r *http.Request) {
	userId := r.PathValue("id")
	if _, err := s.identity.ResolveIdentity(r.Context(), userId); err != nil {
		s.writeError(w, err)
		return
	}

	ids, err := s.identity.FriendsOf(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	friends := make([]UserStatus, 0, len(ids))
	for _, id := range ids {
		user, err := s.identity.ResolveIdentity(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		friends = append(friends, s.withPresence(user))
	}

	s.writeJson(w, http.StatusOK, friends)
}

func (s *GoChatApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

// serveWs upgrades the request and hands the connection to the hub. The
// connection starts unauthenticated; identity arrives with its connect event.
func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(uuid.NewString(), conn, s.hub, s.log)
	if !s.hub.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
