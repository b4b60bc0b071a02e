// Package studydto holds the wire-level request and response records for
// the study server API.
package studydto

type NewSessionRequest struct {
	MaiaLevel   int    `json:"maia_level"`
	PlayerColor string `json:"player_color,omitempty"`
	CustomFEN   string `json:"custom_fen,omitempty"`
}

type NewSessionResponse struct {
	ID   string `json:"id"`
	Flip bool   `json:"flip"`
	FEN  string `json:"fen"`
}

type MoveRequest struct {
	Move            string `json:"move"`
	ClientValidated bool   `json:"client_validated,omitempty"`
}

type CheckMoveResponse struct {
	Legal          bool `json:"legal"`
	NeedsPromotion bool `json:"needs_promotion"`
}

type PredictResponse struct {
	YourMove  string  `json:"your_move"`
	Correct   bool    `json:"correct"`
	Message   string  `json:"message"`
	Total     float64 `json:"total"`
	FEN       string  `json:"fen"`
	Status    string  `json:"status"`
	Attempts  int     `json:"attempts"`
	LeelaMove string  `json:"leela_move,omitempty"`
	MaiaMove  string  `json:"maia_move,omitempty"`
}

type SessionState struct {
	ID         string  `json:"id"`
	FEN        string  `json:"fen"`
	Turn       string  `json:"turn"`
	ScoreTotal float64 `json:"score_total"`
	Ply        int     `json:"ply"`
	Status     string  `json:"status"`
	Flip       bool    `json:"flip"`
	MaiaLevel  int     `json:"maia_level"`
}

type SaveHistoryRequest struct {
	AverageRetries float64 `json:"average_retries"`
	TotalMoves     int     `json:"total_moves"`
	MaiaLevel      int     `json:"maia_level"`
	Result         string  `json:"result"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Scripts int    `json:"scripts"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
