package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gorilla "github.com/gorilla/websocket"
)

// phxServer is a minimal in-process Phoenix endpoint. It acks joins, leaves
// and heartbeats, records what it saw, and can push change frames to the
// latest connection.
type phxServer struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	conn       *gorilla.Conn
	conns      int
	rejectJoin bool
	muteJoin   bool

	heartbeats chan Message
	authEvents chan Message
	joins      chan Message
}

func newPhxServer(t *testing.T) *phxServer {
	t.Helper()

	s := &phxServer{
		t:          t,
		heartbeats: make(chan Message, 16),
		authEvents: make(chan Message, 16),
		joins:      make(chan Message, 16),
	}

	upgrader := gorilla.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") == "" {
			http.Error(w, "missing apikey", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.conns++
		s.mu.Unlock()
		s.serve(conn)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the websocket base URL clients should put in Config.URL.
func (s *phxServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *phxServer) serve(conn *gorilla.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Event {
		case eventJoin:
			s.joins <- msg
			s.mu.Lock()
			mute, reject := s.muteJoin, s.rejectJoin
			s.mu.Unlock()
			if mute {
				continue
			}
			status := "ok"
			if reject {
				status = "error"
			}
			s.reply(conn, msg, status)
		case eventLeave:
			s.reply(conn, msg, "ok")
		case eventHeartbeat:
			s.heartbeats <- msg
			s.reply(conn, msg, "ok")
		case eventAccessToken:
			s.authEvents <- msg
		}
	}
}

func (s *phxServer) reply(conn *gorilla.Conn, to Message, status string) {
	payload, _ := json.Marshal(reply{Status: status, Response: json.RawMessage(`{}`)})
	s.write(conn, Message{Topic: to.Topic, Event: eventReply, Payload: payload, Ref: to.Ref})
}

func (s *phxServer) write(conn *gorilla.Conn, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		s.t.Logf("phxServer write: %v", err)
	}
}

// pushChange sends an INSERT/UPDATE/DELETE frame on the latest connection.
func (s *phxServer) pushChange(topic string, action Action, record map[string]any) {
	payload, err := json.Marshal(map[string]any{
		"type":             string(action),
		"schema":           "public",
		"table":            strings.TrimPrefix(topic, "realtime:public:"),
		"record":           record,
		"commit_timestamp": "2024-06-01T12:00:00Z",
	})
	if err != nil {
		s.t.Fatalf("pushChange: %v", err)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	s.write(conn, Message{Topic: topic, Event: string(action), Payload: payload})
}

// pushRaw sends a text frame as-is on the latest connection, bypassing JSON
// encoding.
func (s *phxServer) pushRaw(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(gorilla.TextMessage, []byte(payload)); err != nil {
		s.t.Logf("phxServer write: %v", err)
	}
}

// dropConnection closes the latest connection abruptly, simulating a network
// failure.
func (s *phxServer) dropConnection() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	conn.WriteMessage(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseInternalServerErr, "going away"))
	conn.Close()
}

func (s *phxServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}
