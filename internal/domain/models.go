package domain

import (
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
)

// SessionStatus is the lifecycle state of a guessing session.
type SessionStatus string

const (
	StatusPlaying  SessionStatus = "playing"
	StatusFinished SessionStatus = "finished"
	StatusPaused   SessionStatus = "paused"
)

// GameResult tags a completed game in the history log.
type GameResult string

const (
	ResultFinished GameResult = "finished"
	ResultResigned GameResult = "resigned"
	ResultDraw     GameResult = "draw"
	ResultUnknown  GameResult = "unknown"
)

// ScriptedGame is a pre-recorded strong-vs-practice game. Immutable once
// loaded; the repository owns its lifecycle.
type ScriptedGame struct {
	ID       string
	MovesUCI []string
	// UserSide is the color the human plays when assigned this script: the
	// side whose recorded moves are the grading oracle.
	UserSide nchess.Color
}

// Session is the mutable state of one guessing session. It is owned by the
// session store; callers fetch it, mutate it within a single request, and
// save it back. The memory store hands out the same pointer to every
// caller, so readers that run concurrently with grading (state snapshots,
// the watch stream) must hold the session lock.
type Session struct {
	mu sync.Mutex

	ID            string
	Board         *nchess.Game
	Status        SessionStatus
	UserColor     nchess.Color
	PracticeLevel int
	ScoreTotal    float64
	PlyIndex      int

	// RetryCount counts failed guesses for the current expected move and is
	// reset whenever ScriptPly advances. TotalRetries and UserMoves feed the
	// average-retries figure written to the history log on completion.
	RetryCount   int
	TotalRetries int
	UserMoves    int

	// ScriptID is empty when no scripted game could be assigned (degraded,
	// no-oracle mode). ScriptPly is the cursor into the script's move list,
	// tracked separately from PlyIndex because the script may open with the
	// opponent's move.
	ScriptID  string
	ScriptPly int

	Flip      bool
	StartedAt time.Time
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// HistoryEntry is one record in the append-only completed-game log.
type HistoryEntry struct {
	Date           string  `json:"date"`
	AverageRetries float64 `json:"average_retries"`
	TotalMoves     int     `json:"total_moves"`
	PracticeLevel  int     `json:"maia_level"`
	Result         string  `json:"result"`
	SessionID      string  `json:"session_id,omitempty"`
}
