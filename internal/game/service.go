package game

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/lcstudy-go/internal/domain"
	"github.com/kapu/lcstudy-go/internal/history"
	"github.com/kapu/lcstudy-go/internal/script"
	"github.com/kapu/lcstudy-go/internal/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrGameFinished    = errors.New("game is already finished")
	ErrInvalidMove     = errors.New("invalid move format")
	ErrIllegalMove     = errors.New("illegal move in current position")
	ErrNotYourTurn     = errors.New("not your turn")
)

// A guess for the same expected move is auto-played once this many failed
// attempts accumulate.
const retryThreshold = 10

var uciMoveRe = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][nbrq]?$`)

// MoveResult is the outcome of grading one guess.
type MoveResult struct {
	PlayerMove string
	Correct    bool
	Message    string
	LeelaMove  string
	Attempts   int
}

// Service drives guessing sessions: it assigns scripts, grades guesses
// against the scripted strong move, plays the scripted opponent reply, and
// settles finished games into the history log.
//
// Callers must serialize calls that touch the same session; the transport
// layer does this by holding the session's lock for the span of a request.
type Service struct {
	sessions   session.Store
	scripts    *script.Repository
	historyLog *history.Repository
	sessionTTL time.Duration
	log        *zap.Logger
}

func NewService(sessions session.Store, scripts *script.Repository, historyLog *history.Repository, sessionTTL time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if sessionTTL <= 0 {
		sessionTTL = 2 * time.Hour
	}
	return &Service{
		sessions:   sessions,
		scripts:    scripts,
		historyLog: historyLog,
		sessionTTL: sessionTTL,
		log:        log,
	}
}

// CreateSession starts a new session at the given practice level. The
// requested color is only a fallback: when a script is assigned, the user
// plays the script's strong side regardless of the request.
func (s *Service) CreateSession(ctx context.Context, level int, requested nchess.Color, customFEN string) (*domain.Session, error) {
	board := nchess.NewGame()
	if customFEN != "" {
		if opt, err := nchess.FEN(customFEN); err == nil {
			board = nchess.NewGame(opt)
		}
	}

	userColor := requested
	scriptID := ""
	if s.scripts != nil && s.scripts.HasGames() {
		if gid := s.scripts.Assign(); gid != "" {
			scriptID = gid
			if side, ok := s.scripts.UserSide(gid); ok {
				userColor = side
			}
		}
	}
	if scriptID == "" {
		s.log.Warn("no script available, session runs ungraded")
	}

	sess := &domain.Session{
		ID:            uuid.NewString(),
		Board:         board,
		Status:        domain.StatusPlaying,
		UserColor:     userColor,
		PracticeLevel: level,
		ScriptID:      scriptID,
		Flip:          userColor == nchess.Black,
		StartedAt:     time.Now().UTC(),
	}

	// When the user plays Black the script opens with the opponent's move;
	// apply it immediately so the user is on turn.
	if scriptID != "" && userColor == nchess.Black && board.Position().Turn() == nchess.White {
		opening := s.scripts.Expected(scriptID, 0)
		if opening != "" {
			if err := applyUCI(sess.Board, opening); err != nil {
				s.log.Warn("scripted opening move not applicable",
					zap.String("script", scriptID), zap.String("move", opening), zap.Error(err))
			} else {
				sess.ScriptPly = 1
				sess.PlyIndex = 1
			}
		}
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.log.Info("session created",
		zap.String("sid", sess.ID),
		zap.String("script", scriptID),
		zap.Int("level", level),
		zap.Bool("user_white", userColor == nchess.White))
	return sess, nil
}

// GetSession loads a live session.
func (s *Service) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// CheckMove reports whether a UCI move is legal right now, and whether a
// 4-character move fails only because the promotion piece is missing.
func (s *Service) CheckMove(sess *domain.Session, moveStr string) (legal, needsPromotion bool) {
	if !uciMoveRe.MatchString(moveStr) {
		return false, false
	}
	valid := sess.Board.Position().ValidMoves()
	for _, mv := range valid {
		if mv.String() == moveStr {
			return true, false
		}
	}
	if len(moveStr) == 4 {
		for _, mv := range valid {
			if mv.Promo() != nchess.NoPieceType && mv.S1().String()+mv.S2().String() == moveStr {
				return false, true
			}
		}
	}
	return false, false
}

// GradeMove grades one guess against the script's expected move. With
// clientValidated set, the move was already confirmed correct upstream and
// is applied directly.
func (s *Service) GradeMove(ctx context.Context, sess *domain.Session, moveStr string, clientValidated bool) (MoveResult, error) {
	if sess.Status != domain.StatusPlaying {
		return MoveResult{}, ErrGameFinished
	}
	if !uciMoveRe.MatchString(moveStr) {
		return MoveResult{}, ErrInvalidMove
	}
	if sess.Board.Position().Turn() != sess.UserColor {
		return MoveResult{}, ErrNotYourTurn
	}
	legal, _ := s.CheckMove(sess, moveStr)
	if !legal {
		return MoveResult{}, ErrIllegalMove
	}

	if clientValidated {
		if err := applyUCI(sess.Board, moveStr); err != nil {
			return MoveResult{}, ErrIllegalMove
		}
		sess.PlyIndex++
		sess.ScoreTotal += 1.0
		sess.UserMoves++
		if isOver(sess.Board) {
			s.finish(sess, resultFor(sess.Board))
		}
		if err := s.sessions.Save(ctx, sess); err != nil {
			return MoveResult{}, fmt.Errorf("save session: %w", err)
		}
		return MoveResult{
			PlayerMove: moveStr,
			Correct:    true,
			Message:    "Move accepted",
			LeelaMove:  moveStr,
			Attempts:   1,
		}, nil
	}

	if sess.ScriptID == "" {
		sess.RetryCount++
		if err := s.sessions.Save(ctx, sess); err != nil {
			return MoveResult{}, fmt.Errorf("save session: %w", err)
		}
		return MoveResult{
			PlayerMove: moveStr,
			Correct:    false,
			Message:    "No precomputed game available",
			Attempts:   sess.RetryCount,
		}, nil
	}

	expected := s.scripts.Expected(sess.ScriptID, sess.ScriptPly)
	if expected == "" {
		sess.RetryCount++
		if err := s.sessions.Save(ctx, sess); err != nil {
			return MoveResult{}, fmt.Errorf("save session: %w", err)
		}
		s.log.Warn("no expected move",
			zap.String("script", sess.ScriptID), zap.Int("ply", sess.ScriptPly))
		return MoveResult{
			PlayerMove: moveStr,
			Correct:    false,
			Message:    "No expected move (end of precomputed game)",
			Attempts:   sess.RetryCount,
		}, nil
	}

	if moveStr != expected {
		sess.RetryCount++

		if sess.RetryCount >= retryThreshold {
			// Auto-play the expected move with no score.
			if err := applyUCI(sess.Board, expected); err != nil {
				return MoveResult{}, fmt.Errorf("apply expected move %q: %w", expected, err)
			}
			sess.PlyIndex++
			sess.ScriptPly++
			sess.UserMoves++
			sess.TotalRetries += sess.RetryCount
			sess.RetryCount = 0
			if isOver(sess.Board) {
				s.finish(sess, resultFor(sess.Board))
			}
			if err := s.sessions.Save(ctx, sess); err != nil {
				return MoveResult{}, fmt.Errorf("save session: %w", err)
			}
			s.log.Info("move auto-played",
				zap.String("sid", sess.ID), zap.String("move", expected))
			return MoveResult{
				PlayerMove: expected,
				Correct:    true,
				Message:    fmt.Sprintf("Auto-played after %d attempts.", retryThreshold),
				LeelaMove:  expected,
				Attempts:   retryThreshold,
			}, nil
		}

		if err := s.sessions.Save(ctx, sess); err != nil {
			return MoveResult{}, fmt.Errorf("save session: %w", err)
		}
		return MoveResult{
			PlayerMove: moveStr,
			Correct:    false,
			Message:    "Not the top move. Try again.",
			Attempts:   sess.RetryCount,
		}, nil
	}

	// Correct guess.
	if err := applyUCI(sess.Board, expected); err != nil {
		return MoveResult{}, fmt.Errorf("apply expected move %q: %w", expected, err)
	}
	sess.PlyIndex++
	sess.ScriptPly++
	sess.ScoreTotal += 1.0
	attemptsUsed := sess.RetryCount + 1
	sess.TotalRetries += sess.RetryCount
	sess.UserMoves++
	sess.RetryCount = 0
	if isOver(sess.Board) {
		s.finish(sess, resultFor(sess.Board))
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return MoveResult{}, fmt.Errorf("save session: %w", err)
	}
	s.log.Info("guess graded",
		zap.String("sid", sess.ID), zap.Bool("correct", true), zap.Int("attempts", attemptsUsed))
	return MoveResult{
		PlayerMove: moveStr,
		Correct:    true,
		Message:    "Correct",
		LeelaMove:  expected,
		Attempts:   attemptsUsed,
	}, nil
}

// OpponentReply plays the next scripted opponent move and returns it in
// UCI, or "" when the game is over or the script is exhausted. A missing
// reply finishes the game rather than surfacing an error.
func (s *Service) OpponentReply(ctx context.Context, sess *domain.Session) (string, error) {
	if sess.Status != domain.StatusPlaying {
		return "", nil
	}
	if isOver(sess.Board) {
		if sess.Status == domain.StatusPlaying {
			s.finish(sess, resultFor(sess.Board))
		}
		if err := s.sessions.Save(ctx, sess); err != nil {
			return "", fmt.Errorf("save session: %w", err)
		}
		return "", nil
	}

	reply := ""
	if sess.ScriptID != "" {
		reply = s.scripts.Expected(sess.ScriptID, sess.ScriptPly)
	}
	if reply == "" {
		// Script exhausted; settle the game.
		s.finish(sess, domain.ResultFinished)
		sess.ScriptID = ""
		sess.ScriptPly = 0
		if err := s.sessions.Save(ctx, sess); err != nil {
			return "", fmt.Errorf("save session: %w", err)
		}
		return "", nil
	}

	if err := applyUCI(sess.Board, reply); err != nil {
		s.log.Warn("scripted reply not applicable",
			zap.String("script", sess.ScriptID), zap.String("move", reply), zap.Error(err))
		s.finish(sess, domain.ResultFinished)
		sess.ScriptID = ""
		sess.ScriptPly = 0
		if err := s.sessions.Save(ctx, sess); err != nil {
			return "", fmt.Errorf("save session: %w", err)
		}
		return "", nil
	}
	sess.PlyIndex++
	sess.ScriptPly++

	if isOver(sess.Board) {
		s.finish(sess, resultFor(sess.Board))
		sess.ScriptID = ""
		sess.ScriptPly = 0
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return reply, nil
}

// Resign ends a session early. The assigned script is still consumed so a
// half-seen game is never replayed.
func (s *Service) Resign(ctx context.Context, sess *domain.Session) error {
	if sess.Status != domain.StatusPlaying {
		return ErrGameFinished
	}
	s.finish(sess, domain.ResultResigned)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ExportPGN renders the session's game so far.
func (s *Service) ExportPGN(sess *domain.Session) string {
	var moves []string
	for _, mv := range sess.Board.Moves() {
		moves = append(moves, mv.String())
	}
	result := "*"
	switch sess.Board.Outcome() {
	case nchess.WhiteWon:
		result = "1-0"
	case nchess.BlackWon:
		result = "0-1"
	case nchess.Draw:
		result = "1/2-1/2"
	}
	body, err := script.BuildPGN(moves, sess.UserColor, sess.PracticeLevel, result)
	if err != nil {
		s.log.Warn("pgn export failed", zap.String("sid", sess.ID), zap.Error(err))
		return ""
	}
	return body
}

// CleanupExpired evicts idle sessions; the sweeper calls this on a timer.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	return s.sessions.CleanupExpired(ctx, s.sessionTTL)
}

func (s *Service) finish(sess *domain.Session, result domain.GameResult) {
	sess.Status = domain.StatusFinished
	if sess.ScriptID != "" && s.scripts != nil {
		if s.scripts.Consume(sess.ScriptID) {
			s.log.Info("script consumed",
				zap.String("sid", sess.ID), zap.String("script", sess.ScriptID))
		}
	}
	if s.historyLog == nil {
		return
	}
	avg := 0.0
	if sess.UserMoves > 0 {
		avg = float64(sess.TotalRetries) / float64(sess.UserMoves)
	}
	entry := domain.HistoryEntry{
		Date:           time.Now().UTC().Format(time.RFC3339),
		AverageRetries: avg,
		TotalMoves:     sess.PlyIndex,
		PracticeLevel:  sess.PracticeLevel,
		Result:         string(result),
		SessionID:      sess.ID,
	}
	if err := s.historyLog.Append(entry); err != nil {
		s.log.Warn("history append failed", zap.String("sid", sess.ID), zap.Error(err))
	}
}

func resultFor(board *nchess.Game) domain.GameResult {
	if board.Outcome() == nchess.Draw {
		return domain.ResultDraw
	}
	return domain.ResultFinished
}

func isOver(board *nchess.Game) bool {
	return board.Outcome() != nchess.NoOutcome
}

func applyUCI(board *nchess.Game, moveStr string) error {
	mv, err := (nchess.UCINotation{}).Decode(board.Position(), moveStr)
	if err != nil {
		return err
	}
	return board.Move(mv, nil)
}
