package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/lcstudy-go/internal/domain"
	"github.com/kapu/lcstudy-go/internal/game"
	"github.com/kapu/lcstudy-go/pkg/studydto"
)

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, studydto.ErrorResponse{Error: msg})
}

// writeServiceError maps service sentinels onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrGameFinished),
		errors.Is(err, game.ErrInvalidMove),
		errors.Is(err, game.ErrIllegalMove),
		errors.Is(err, game.ErrNotYourTurn):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// sessionFromPath loads the session named by {sid}, writing the error
// response itself when the id is malformed or unknown.
func (s *Server) sessionFromPath(w http.ResponseWriter, r *http.Request) *domain.Session {
	sid := chi.URLParam(r, "sid")
	if _, err := uuid.Parse(sid); err != nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return nil
	}
	sess, err := s.svc.GetSession(r.Context(), sid)
	if err != nil {
		s.writeServiceError(w, err)
		return nil
	}
	return sess
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n := 0
	if s.scripts != nil {
		n = s.scripts.Count()
	}
	writeJSON(w, http.StatusOK, studydto.HealthResponse{Status: "ok", Scripts: n})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var req studydto.NewSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	if len(s.levels) > 0 && !s.levels[req.MaiaLevel] {
		s.writeError(w, http.StatusBadRequest, "unsupported maia level")
		return
	}
	color := nchess.White
	switch req.PlayerColor {
	case "", "white":
	case "black":
		color = nchess.Black
	default:
		s.writeError(w, http.StatusBadRequest, "player_color must be white or black")
		return
	}

	sess, err := s.svc.CreateSession(r.Context(), req.MaiaLevel, color, req.CustomFEN)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, studydto.NewSessionResponse{
		ID:   sess.ID,
		Flip: sess.Flip,
		FEN:  sess.Board.FEN(),
	})
}

func sessionState(sess *domain.Session) studydto.SessionState {
	turn := "white"
	if sess.Board.Position().Turn() == nchess.Black {
		turn = "black"
	}
	return studydto.SessionState{
		ID:         sess.ID,
		FEN:        sess.Board.FEN(),
		Turn:       turn,
		ScoreTotal: sess.ScoreTotal,
		Ply:        sess.PlyIndex,
		Status:     string(sess.Status),
		Flip:       sess.Flip,
		MaiaLevel:  sess.PracticeLevel,
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromPath(w, r)
	if sess == nil {
		return
	}
	sess.Lock()
	state := sessionState(sess)
	sess.Unlock()
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleCheckMove(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromPath(w, r)
	if sess == nil {
		return
	}
	var req studydto.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	sess.Lock()
	legal, needsPromotion := s.svc.CheckMove(sess, req.Move)
	sess.Unlock()
	writeJSON(w, http.StatusOK, studydto.CheckMoveResponse{
		Legal:          legal,
		NeedsPromotion: needsPromotion,
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromPath(w, r)
	if sess == nil {
		return
	}
	var req studydto.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	sess.Lock()
	defer sess.Unlock()

	res, err := s.svc.GradeMove(r.Context(), sess, req.Move, req.ClientValidated)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	maiaMove := ""
	if res.Correct && sess.Status == domain.StatusPlaying {
		maiaMove, err = s.svc.OpponentReply(r.Context(), sess)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, studydto.PredictResponse{
		YourMove:  res.PlayerMove,
		Correct:   res.Correct,
		Message:   res.Message,
		Total:     sess.ScoreTotal,
		FEN:       sess.Board.FEN(),
		Status:    string(sess.Status),
		Attempts:  res.Attempts,
		LeelaMove: res.LeelaMove,
		MaiaMove:  maiaMove,
	})
}

func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromPath(w, r)
	if sess == nil {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if err := s.svc.Resign(r.Context(), sess); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionState(sess))
}

func (s *Server) handlePGN(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromPath(w, r)
	if sess == nil {
		return
	}
	sess.Lock()
	pgn := s.svc.ExportPGN(sess)
	sess.Unlock()
	if pgn == "" {
		s.writeError(w, http.StatusInternalServerError, "pgn export failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(pgn))
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.hist.All()
	if err != nil {
		s.log.Error("history load failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHistorySave(w http.ResponseWriter, r *http.Request) {
	var req studydto.SaveHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	entry := domain.HistoryEntry{
		Date:           time.Now().UTC().Format(time.RFC3339),
		AverageRetries: req.AverageRetries,
		TotalMoves:     req.TotalMoves,
		PracticeLevel:  req.MaiaLevel,
		Result:         req.Result,
	}
	if err := s.hist.Append(entry); err != nil {
		s.log.Error("history append failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := s.hist.Clear(); err != nil {
		s.log.Error("history clear failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.hist.Statistics()
	if err != nil {
		s.log.Error("history stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
