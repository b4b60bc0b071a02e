package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapu/lcstudy-go/internal/domain"
)

const watchPushInterval = 2 * time.Second

// handleWatch streams session state over a websocket until the game
// finishes or the client goes away.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if _, err := uuid.Parse(sid); err != nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if _, err := s.svc.GetSession(r.Context(), sid); err != nil {
		s.writeServiceError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", zap.String("sid", sid), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	ticker := time.NewTicker(watchPushInterval)
	defer ticker.Stop()

	for {
		sess, err := s.svc.GetSession(ctx, sid)
		if err != nil {
			conn.Close(websocket.StatusGoingAway, "session gone")
			return
		}
		sess.Lock()
		state := sessionState(sess)
		sess.Unlock()
		if err := wsjson.Write(ctx, conn, state); err != nil {
			return
		}
		if state.Status != string(domain.StatusPlaying) {
			conn.Close(websocket.StatusNormalClosure, "game over")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
