package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pagepilot/internal/entity"
	"pagepilot/pkg/logg"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// handleSelectionStream pushes every element picked in a selection session
// to the websocket client until the session stops or the client leaves.
func (s *Server) handleSelectionStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	updates, cancel, err := s.usecase.Selection.Subscribe(id)
	if err != nil {
		s.respondError(w, r, err)

		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade selection stream", zap.String(logg.SessionID, id), zap.Error(err))

		return
	}
	defer conn.Close()

	// The client never sends anything; reading only notices it leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case element, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "selection session stopped"))

				return
			}

			msg := entity.SelectionMessage{Type: entity.MessageElementSelected, Element: element}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("Selection stream write failed", zap.String(logg.SessionID, id), zap.Error(err))

				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
