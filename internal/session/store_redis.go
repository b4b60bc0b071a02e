package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kapu/lcstudy-go/internal/domain"
)

// RedisStore keeps sessions in redis so a restart does not drop games in
// progress. Board state is stored as the UCI move list and replayed on
// load. Key TTL doubles as the idle clock, so CleanupExpired is a no-op.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(id string) string { return "lcstudy:sess:" + id }

type sessionRecord struct {
	ID            string    `json:"id"`
	Moves         []string  `json:"moves"`
	Status        string    `json:"status"`
	UserWhite     bool      `json:"user_white"`
	PracticeLevel int       `json:"practice_level"`
	ScoreTotal    float64   `json:"score_total"`
	PlyIndex      int       `json:"ply_index"`
	RetryCount    int       `json:"retry_count"`
	TotalRetries  int       `json:"total_retries"`
	UserMoves     int       `json:"user_moves"`
	ScriptID      string    `json:"script_id,omitempty"`
	ScriptPly     int       `json:"script_ply"`
	Flip          bool      `json:"flip"`
	StartedAt     time.Time `json:"started_at"`
}

func (s *RedisStore) Save(ctx context.Context, sess *domain.Session) error {
	rec := sessionRecord{
		ID:            sess.ID,
		Status:        string(sess.Status),
		UserWhite:     sess.UserColor == nchess.White,
		PracticeLevel: sess.PracticeLevel,
		ScoreTotal:    sess.ScoreTotal,
		PlyIndex:      sess.PlyIndex,
		RetryCount:    sess.RetryCount,
		TotalRetries:  sess.TotalRetries,
		UserMoves:     sess.UserMoves,
		ScriptID:      sess.ScriptID,
		ScriptPly:     sess.ScriptPly,
		Flip:          sess.Flip,
		StartedAt:     sess.StartedAt,
	}
	if sess.Board != nil {
		for _, mv := range sess.Board.Moves() {
			rec.Moves = append(rec.Moves, mv.String())
		}
	}
	raw, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(sess.ID), raw, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	sess, err := rec.restore()
	if err != nil {
		return nil, err
	}
	// sliding idle window
	_ = s.rdb.Expire(ctx, s.key(id), s.ttl).Err()
	return sess, nil
}

func (rec *sessionRecord) restore() (*domain.Session, error) {
	board := nchess.NewGame()
	for i, u := range rec.Moves {
		mv, err := (nchess.UCINotation{}).Decode(board.Position(), u)
		if err != nil {
			return nil, fmt.Errorf("replay move %d %q: %w", i, u, err)
		}
		if err := board.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("replay move %d %q: %w", i, u, err)
		}
	}
	color := nchess.Black
	if rec.UserWhite {
		color = nchess.White
	}
	return &domain.Session{
		ID:            rec.ID,
		Board:         board,
		Status:        domain.SessionStatus(rec.Status),
		UserColor:     color,
		PracticeLevel: rec.PracticeLevel,
		ScoreTotal:    rec.ScoreTotal,
		PlyIndex:      rec.PlyIndex,
		RetryCount:    rec.RetryCount,
		TotalRetries:  rec.TotalRetries,
		UserMoves:     rec.UserMoves,
		ScriptID:      rec.ScriptID,
		ScriptPly:     rec.ScriptPly,
		Flip:          rec.Flip,
		StartedAt:     rec.StartedAt,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

func (s *RedisStore) All(ctx context.Context) ([]*domain.Session, error) {
	var out []*domain.Session
	iter := s.rdb.Scan(ctx, 0, "lcstudy:sess:*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec sessionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		sess, err := rec.restore()
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CleanupExpired relies on key TTL; redis already dropped idle sessions.
func (s *RedisStore) CleanupExpired(context.Context, time.Duration) (int, error) {
	return 0, nil
}
