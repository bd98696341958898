package app

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"codecollab/api/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers send Origin on websocket upgrades; the CORS policy for the
	// REST surface is enforced per deployment in front of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type identifyPayload struct {
	Email string `json:"email"`
}

type joinPayload struct {
	Token string `json:"token"`
	Room  string `json:"room"`
}

type messagePayload struct {
	Room            string `json:"room"`
	Text            string `json:"text"`
	ClientMessageID string `json:"clientMessageId"`
}

type meetStartPayload struct {
	Room string `json:"room"`
	Link string `json:"link"`
}

type historyPayload struct {
	Room     string `json:"room"`
	Messages any    `json:"messages"`
}

func (s *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}
	conn := realtime.NewConn(ws)
	conn.Start()

	sess := &socketSession{service: s.service, conn: conn}
	sess.run(r)
}

// socketSession is the per-connection state machine. All events for one
// connection are dispatched from this loop, so there is no concurrency
// between a connection's own operations.
type socketSession struct {
	service *Service
	conn    *realtime.Conn

	joined bool
	user   realtime.UserSummary
	room   string
}

func (sess *socketSession) run(r *http.Request) {
	defer func() {
		sess.service.Disconnect(sess.conn.ID())
		sess.conn.Close(websocket.CloseNormalClosure, "")
	}()

	for {
		payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}
		sess.dispatch(r, env)
	}
}

func (sess *socketSession) dispatch(r *http.Request, env realtime.Envelope) {
	switch env.Type {
	case realtime.EventIdentify:
		var p identifyPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			sess.nack(env.ID, "bad_request")
			return
		}
		sess.service.Identify(sess.conn, p.Email)
		sess.ack(env.ID, map[string]any{"ok": true})

	case realtime.EventJoin:
		var p joinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			sess.nack(env.ID, "bad_request")
			return
		}
		result, err := sess.service.JoinRoom(r.Context(), sess.conn, p.Token, p.Room)
		if err != nil {
			sess.nack(env.ID, errorCode(err))
			return
		}
		sess.joined = true
		sess.user = result.User
		sess.room = result.Room
		sess.ack(env.ID, map[string]any{"ok": true, "user": result.User, "room": result.Room, "count": result.Count})
		// History goes to the joiner alone, after the ack.
		_ = sess.conn.Send(realtime.Encode(realtime.EventHistory, historyPayload{Room: result.Room, Messages: result.History}))

	case realtime.EventMessage:
		if !sess.joined {
			sess.nack(env.ID, "not_authenticated")
			return
		}
		var p messagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			sess.nack(env.ID, "bad_request")
			return
		}
		// A room in the payload may only restate the joined room.
		if p.Room != "" && p.Room != sess.room {
			sess.nack(env.ID, "forbidden")
			return
		}
		msg, err := sess.service.SendMessage(r.Context(), sess.user, sess.room, p.Text, p.ClientMessageID)
		if err != nil {
			sess.nack(env.ID, errorCode(err))
			return
		}
		sess.ack(env.ID, map[string]any{"ok": true, "message": msg})

	case realtime.EventMeetStart:
		if !sess.joined {
			sess.nack(env.ID, "not_authenticated")
			return
		}
		var p meetStartPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			sess.nack(env.ID, "bad_request")
			return
		}
		if p.Room != "" && p.Room != sess.room {
			sess.nack(env.ID, "forbidden")
			return
		}
		sess.service.MeetStart(sess.room, sess.user, p.Link)
		sess.ack(env.ID, map[string]any{"ok": true})

	case realtime.EventLeave:
		sess.service.Leave(sess.conn.ID())
		sess.joined = false
		sess.room = ""
		sess.ack(env.ID, map[string]any{"ok": true})
	}
}

func (sess *socketSession) ack(id string, data any) {
	if id == "" {
		return
	}
	_ = sess.conn.Send(realtime.EncodeAck(id, data))
}

func (sess *socketSession) nack(id, code string) {
	sess.ack(id, map[string]any{"ok": false, "error": code})
}

func errorCode(err error) string {
	if derr, ok := err.(*DomainError); ok {
		return derr.Code
	}
	return "server_error"
}
