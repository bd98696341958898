package app

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"codecollab/api/internal/snapshot"
)

// HTTPServer is the REST surface. Routing is deliberately flat; the route
// table is small enough to read in one switch.
type HTTPServer struct {
	service       *Service
	snapshots     *snapshot.Service
	snapshotLimit int64
	corsOrigin    string
	syncToken     string
}

func NewHTTPServer(service *Service, snapshots *snapshot.Service, snapshotLimit int64, corsOrigin, syncToken string) *HTTPServer {
	return &HTTPServer{
		service:       service,
		snapshots:     snapshots,
		snapshotLimit: snapshotLimit,
		corsOrigin:    corsOrigin,
		syncToken:     syncToken,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	parts := splitPath(r.URL.Path)
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case r.Method == http.MethodGet && r.URL.Path == "/api/ready":
		s.handleReady(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		s.handleLogin(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/auth/me":
		s.handleMe(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/auth/logout":
		s.handleLogout(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/auth/room-token":
		s.handleRoomToken(w, r)
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "messages":
		s.handleMessages(w, r, parts[2])
	case r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "api" && parts[1] == "messages" && parts[3] == "search":
		s.handleSearch(w, r, parts[2])
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "snapshot":
		s.handleSnapshot(w, r, parts[2])
	case r.Method == http.MethodPost && r.URL.Path == "/api/internal/notify/invite":
		s.handleNotifyInvite(w, r)
	case r.URL.Path == "/ws":
		s.handleWS(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found")
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ready(r.Context()); err != nil {
		log.Printf("http: readiness: %v", err)
		writeError(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	token, user, err := s.service.Login(r.Context(), body.Name, body.Email)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": token, "user": user})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.UserFromToken(r.Context(), bearerToken(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": user})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Logout(r.Context(), bearerToken(r)); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRoomToken(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.UserFromToken(r.Context(), bearerToken(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	token, room, err := s.service.RoomToken(r.Context(), user, r.URL.Query().Get("room"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": token, "room": room})
}

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request, room string) {
	messages, err := s.service.History(r.Context(), room)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": messages})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, room string) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query_required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, s.service.SearchMessages(room, q, limit))
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, r *http.Request, room string) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.snapshots.Load(r.Context(), room)
		if err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found")
				return
			}
			log.Printf("http: load snapshot %s: %v", room, err)
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case http.MethodPost:
		// One byte over the limit so the size check in Save still fires
		// with its own error instead of a read failure at the boundary.
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.snapshotLimit+1))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large")
			return
		}
		if err := s.snapshots.Save(r.Context(), room, data); err != nil {
			switch {
			case errors.Is(err, snapshot.ErrEmptySnapshot):
				writeError(w, http.StatusBadRequest, "empty")
			case errors.Is(err, snapshot.ErrTooLarge):
				writeError(w, http.StatusRequestEntityTooLarge, "too_large")
			default:
				log.Printf("http: save snapshot %s: %v", room, err)
				writeError(w, http.StatusInternalServerError, "server_error")
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	}
}

// handleNotifyInvite is the server-to-server hook the session service calls
// after adding an invite, so online invitees hear about it immediately.
func (s *HTTPServer) handleNotifyInvite(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Collab-Sync-Token") != s.syncToken {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		Email   string          `json:"email"`
		Session json.RawMessage `json:"session"`
	}
	if err := decodeBody(r, &body); err != nil || strings.TrimSpace(body.Email) == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	delivered := s.service.NotifyInvite(body.Email, body.Session)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "delivered": delivered})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var derr *DomainError
	if errors.As(err, &derr) {
		writeError(w, derr.Status, derr.Code)
		return
	}
	log.Printf("http: %v", err)
	writeError(w, http.StatusInternalServerError, "server_error")
}

func (s *HTTPServer) setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Collab-Sync-Token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
