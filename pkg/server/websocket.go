package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/fundsavy/fundsavy/pkg/auth"
	"github.com/fundsavy/fundsavy/pkg/chat"
	"github.com/fundsavy/fundsavy/pkg/middleware"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// screenMessage is sent by the client to drive its screen.
type screenMessage struct {
	// Group switches the screen to another group.
	Group string `json:"group,omitempty"`

	// Reload retrieves the current group again.
	Reload bool `json:"reload,omitempty"`
}

// handleGroupSocket streams the chat header of a group as JSON views. The
// stream ends when the client disconnects, the session is signed out or
// the server shuts down.
func (s *Server) handleGroupSocket(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.screens.Add(1)
	s.mu.Unlock()
	defer s.screens.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		middleware.RecordWebSocketError("upgrade")
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	middleware.RecordScreenOpen()
	defer middleware.RecordScreenClose()

	ctx, cancel := sess.Context(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := append([]chat.Option{chat.WithLogger(s.logger)}, s.config.ScreenOptions...)
	screen := chat.NewScreen(s.retriever, opts...)
	defer screen.Close()

	screen.Open(chi.URLParam(r, "id"))
	views := screen.Views(ctx)

	go s.readScreenMessages(conn, screen, cancel)

	for v := range views {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			middleware.RecordWebSocketError("write")
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}

	reason := "closed"
	if err := sess.Err(); err != nil {
		reason = err.Error()
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
}

// readScreenMessages applies client messages to screen until the
// connection fails, then calls stop.
func (s *Server) readScreenMessages(conn *websocket.Conn, screen *chat.Screen, stop context.CancelFunc) {
	defer stop()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				middleware.RecordWebSocketError("read")
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var msg screenMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			middleware.RecordWebSocketError("decode")
			s.logger.Debug("screen message decode error", "error", err)
			continue
		}
		switch {
		case msg.Reload:
			screen.Reload()
		case msg.Group != "":
			screen.Open(msg.Group)
		}
	}
}
