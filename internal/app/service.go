// Package app wires the access-control, persistence and realtime layers
// into the operations the HTTP and websocket surfaces expose.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"codecollab/api/internal/auth"
	"codecollab/api/internal/collab"
	"codecollab/api/internal/config"
	"codecollab/api/internal/rbac"
	"codecollab/api/internal/realtime"
	"codecollab/api/internal/search"
	"codecollab/api/internal/store"
)

type dataStore interface {
	Ping(ctx context.Context) error
	InsertMessage(ctx context.Context, msg store.Message) (store.Message, error)
	ListRecentMessages(ctx context.Context, room string, limit int) ([]store.Message, error)
	ResolveSession(ctx context.Context, idOrSlug string) (collab.Session, error)
}

type loginStore interface {
	SaveLoginSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupLoginSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeLoginSession(ctx context.Context, tokenHash string) error
}

type roomHub interface {
	Join(client realtime.Client, room string, user realtime.UserSummary) int
	Leave(connID string)
	Disconnect(connID string)
	Identify(client realtime.Client, email string)
	BroadcastToRoom(room string, payload []byte) int
	NotifyByEmail(email string, payload []byte) int
}

// Service implements the operations behind the HTTP and websocket surfaces.
type Service struct {
	cfg      config.Config
	store    dataStore
	sessions loginStore
	hub      roomHub
	search   *search.Service
}

// NewService builds the orchestration layer. sessions is the login session
// backend (Redis when configured, Postgres otherwise) and search may be nil
// when no search backend is wired.
func NewService(cfg config.Config, st dataStore, sessions loginStore, hub roomHub, searcher *search.Service) *Service {
	return &Service{cfg: cfg, store: st, sessions: sessions, hub: hub, search: searcher}
}

// Ready reports whether the durable store answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Login creates a dev login session for a display name and optional email.
// Returns the bearer token the client presents on later requests.
func (s *Service) Login(ctx context.Context, name, email string) (string, store.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", store.User{}, domainError(http.StatusBadRequest, "name_required")
	}

	user := store.User{
		ID:    newID("usr"),
		Name:  name,
		Email: collab.NormalizeEmail(email),
	}
	token := newID("")
	expiresAt := time.Now().Add(s.cfg.LoginTTL)
	if err := s.sessions.SaveLoginSession(ctx, auth.HashToken(token), user, expiresAt); err != nil {
		return "", store.User{}, fmt.Errorf("save login session: %w", err)
	}
	return token, user, nil
}

// UserFromToken resolves a login bearer token to its user.
func (s *Service) UserFromToken(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, domainError(http.StatusUnauthorized, "not_authenticated")
	}
	user, err := s.sessions.LookupLoginSession(ctx, auth.HashToken(token))
	if err != nil {
		return store.User{}, domainError(http.StatusUnauthorized, "not_authenticated")
	}
	return user, nil
}

// Logout revokes a login session. Unknown tokens revoke cleanly.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.RevokeLoginSession(ctx, auth.HashToken(token)); err != nil {
		return fmt.Errorf("revoke login session: %w", err)
	}
	return nil
}

// RoomToken mints a short-lived capability token for the requested room.
// Session rooms are resolved by id or slug and the role derived from the
// session's owner and invite list; every other room grants editor. The
// returned room is the canonical identifier the token is scoped to.
func (s *Service) RoomToken(ctx context.Context, user store.User, requestedRoom string) (string, string, error) {
	room := collab.NormalizeRoom(requestedRoom)
	role := rbac.RoleEditor

	if collab.IsSessionRoom(room) {
		key := collab.SessionKey(room)
		if key == "" {
			return "", "", domainError(http.StatusBadRequest, "invalid_session_id")
		}
		session, err := s.store.ResolveSession(ctx, key)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", "", domainError(http.StatusNotFound, "session_not_found")
			}
			return "", "", fmt.Errorf("resolve session %s: %w", key, err)
		}
		identity := collab.Identity{UserID: user.ID, Name: user.Name, Email: user.Email}
		role, err = collab.DeriveRole(identity, &session)
		if err != nil {
			if errors.Is(err, collab.ErrNotInvited) {
				return "", "", domainError(http.StatusForbidden, "not_invited")
			}
			return "", "", fmt.Errorf("derive role for %s: %w", key, err)
		}
		room = collab.CanonicalRoom(session.ID)
	}

	claims := auth.Claims{
		Room:   room,
		UserID: user.ID,
		Name:   user.Name,
		Email:  collab.NormalizeEmail(user.Email),
		Role:   string(role),
	}
	token, err := auth.Mint([]byte(s.cfg.RoomTokenSecret), claims, s.cfg.RoomTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("mint room token: %w", err)
	}
	return token, room, nil
}

// JoinResult is what a successful room join hands back to the connection.
type JoinResult struct {
	User    realtime.UserSummary
	Room    string
	Count   int
	History []store.Message
}

// JoinRoom verifies a capability token and admits the connection to the
// token's room. The presence broadcast happens inside the registry join;
// the chat history replay is returned for delivery to the joiner alone.
func (s *Service) JoinRoom(ctx context.Context, client realtime.Client, token, requestedRoom string) (JoinResult, error) {
	claims, err := auth.Verify([]byte(s.cfg.RoomTokenSecret), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpired) {
			return JoinResult{}, domainError(http.StatusUnauthorized, "expired")
		}
		return JoinResult{}, domainError(http.StatusUnauthorized, "invalid_token")
	}
	if requestedRoom != "" && collab.NormalizeRoom(requestedRoom) != claims.Room {
		return JoinResult{}, domainError(http.StatusForbidden, "forbidden")
	}

	user := realtime.UserSummary{
		ID:   claims.UserID,
		Name: displayName(claims.Name, claims.Email),
		Role: claims.Role,
	}
	count := s.hub.Join(client, claims.Room, user)
	if claims.Email != "" {
		s.hub.Identify(client, claims.Email)
	}

	history, err := s.store.ListRecentMessages(ctx, claims.Room, s.cfg.HistoryLimit)
	if err != nil {
		log.Printf("app: history for %s: %v", claims.Room, err)
		history = []store.Message{}
	}
	return JoinResult{User: user, Room: claims.Room, Count: count, History: history}, nil
}

// SendMessage persists a chat message and fans it out to the room. The
// insert is awaited before the broadcast; a message is never seen live
// unless it is durable.
func (s *Service) SendMessage(ctx context.Context, sender realtime.UserSummary, room, text, clientMessageID string) (store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Message{}, domainError(http.StatusUnprocessableEntity, "empty")
	}
	if !rbac.Can(rbac.Role(sender.Role), rbac.ActionWrite) {
		return store.Message{}, domainError(http.StatusForbidden, "forbidden")
	}
	if clientMessageID == "" {
		clientMessageID = uuid.NewString()
	}

	msg := store.Message{
		ID:              newID("msg"),
		Room:            room,
		UserID:          sender.ID,
		UserName:        displayName(sender.Name, ""),
		Text:            text,
		ClientMessageID: clientMessageID,
	}
	persisted, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		return store.Message{}, fmt.Errorf("persist message: %w", err)
	}

	s.indexMessage(persisted)
	s.hub.BroadcastToRoom(room, realtime.Encode(realtime.EventReceiveMessage, persisted))
	return persisted, nil
}

// History returns the replay window for a room, oldest first.
func (s *Service) History(ctx context.Context, room string) ([]store.Message, error) {
	return s.store.ListRecentMessages(ctx, collab.NormalizeRoom(room), s.cfg.HistoryLimit)
}

// SearchMessages runs a full-text search scoped to one room.
func (s *Service) SearchMessages(room, text string, limit int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.search.Search(search.Query{Room: collab.NormalizeRoom(room), Text: text, Limit: limit})
}

// MeetSignalPayload announces a meeting link to a room.
type MeetSignalPayload struct {
	Room      string               `json:"room"`
	Link      string               `json:"link"`
	StartedBy realtime.UserSummary `json:"startedBy"`
	StartedAt time.Time            `json:"startedAt"`
}

// MeetStart fans a meeting link out to everyone in the room. Not persisted;
// connections joining later never see it.
func (s *Service) MeetStart(room string, user realtime.UserSummary, link string) int {
	room = strings.TrimSpace(room)
	link = strings.TrimSpace(link)
	if room == "" || link == "" {
		return 0
	}
	payload := MeetSignalPayload{Room: room, Link: link, StartedBy: user, StartedAt: time.Now()}
	return s.hub.BroadcastToRoom(room, realtime.Encode(realtime.EventMeetSignal, payload))
}

// InvitePayload carries the session record of an invite notification.
type InvitePayload struct {
	Session json.RawMessage `json:"session"`
}

// NotifyInvite pushes a session invite to every live connection identified
// with the email. Returns the number of deliveries; zero when the user is
// offline, which is not an error.
func (s *Service) NotifyInvite(email string, session json.RawMessage) int {
	return s.hub.NotifyByEmail(email, realtime.Encode(realtime.EventSessionInvite, InvitePayload{Session: session}))
}

// Identify associates a connection with an email for invite delivery.
func (s *Service) Identify(client realtime.Client, email string) {
	s.hub.Identify(client, email)
}

// Leave removes a connection from its room.
func (s *Service) Leave(connID string) {
	s.hub.Leave(connID)
}

// Disconnect runs the full cleanup for a dropped connection.
func (s *Service) Disconnect(connID string) {
	s.hub.Disconnect(connID)
}

func (s *Service) indexMessage(msg store.Message) {
	if s.search == nil {
		return
	}
	s.search.IndexMessage(search.MessageRecord{
		ID:        msg.ID,
		Room:      msg.Room,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt.Unix(),
	})
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	if email != "" {
		return email
	}
	return "Anonymous"
}
