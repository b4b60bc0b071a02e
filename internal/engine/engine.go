package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/lcstudy-go/internal/engine/uci"
)

var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEngineTimeout     = errors.New("engine timeout")
	ErrNoMove            = errors.New("engine returned no move")
)

const mateValue = 30000

type Config struct {
	Lc0Path    string
	WeightsDir string
	Threads    int
	Backend    string
}

// Engine fronts a pool of lc0 processes. The strong network and each
// practice network are separate pool buckets keyed by weights file.
type Engine struct {
	cfg  Config
	pool *uci.Pool

	randMu sync.Mutex
	rand   *rand.Rand

	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: cfg.Lc0Path})
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:  cfg,
		pool: pool,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
		log:  log,
	}, nil
}

// StrongWeights is the path of the strong network used for the scripted
// player side.
func (e *Engine) StrongWeights() string {
	return filepath.Join(e.cfg.WeightsDir, "leela.pb.gz")
}

// PracticeWeights is the path of the practice network for a rating level.
func (e *Engine) PracticeWeights(level int) string {
	return filepath.Join(e.cfg.WeightsDir, fmt.Sprintf("maia-%d.pb.gz", level))
}

func (e *Engine) options(weights string, multiPV int) uci.Options {
	if multiPV <= 0 {
		multiPV = 1
	}
	return uci.Options{
		WeightsFile: weights,
		Backend:     e.cfg.Backend,
		Threads:     e.cfg.Threads,
		MultiPV:     multiPV,
	}
}

// BestMove runs a single-PV search and returns the engine's move in UCI.
func (e *Engine) BestMove(ctx context.Context, fen string, moves []string, weights string, limits uci.Limits) (string, error) {
	resp, err := e.search(ctx, fen, moves, e.options(weights, 1), limits)
	if err != nil {
		return "", err
	}
	if resp.BestMove == "" || resp.BestMove == "(none)" {
		return "", ErrNoMove
	}
	return resp.BestMove, nil
}

// SampledMove searches with MultiPV and samples among the candidates with
// a softmax over centipawn scores. A mating line is always taken; a near
// zero temperature degenerates to the best move.
func (e *Engine) SampledMove(ctx context.Context, fen string, moves []string, weights string, limits uci.Limits, multiPV int, temperature float64) (string, error) {
	resp, err := e.search(ctx, fen, moves, e.options(weights, multiPV), limits)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		if resp.BestMove != "" && resp.BestMove != "(none)" {
			return resp.BestMove, nil
		}
		return "", ErrNoMove
	}
	return pickFromMultiPV(resp.Candidates, temperature, e.random()), nil
}

func (e *Engine) search(ctx context.Context, fen string, moves []string, opt uci.Options, limits uci.Limits) (uci.SearchResponse, error) {
	session, err := e.pool.Acquire(ctx, opt)
	if err != nil {
		return uci.SearchResponse{}, mapEngineError(err)
	}
	var releaseErr error
	defer func() {
		e.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return uci.SearchResponse{}, mapEngineError(err)
	}
	resp, err := session.Search(ctx, uci.SearchRequest{FEN: fen, Moves: moves, Limits: limits})
	if err != nil {
		releaseErr = err
		return uci.SearchResponse{}, mapEngineError(err)
	}
	return resp, nil
}

func mapEngineError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
}

func pickFromMultiPV(cands []uci.Candidate, temperature float64, r *rand.Rand) string {
	best := 0
	for i, c := range cands {
		if c.EvalCP >= mateValue {
			return c.Move
		}
		if c.EvalCP > cands[best].EvalCP {
			best = i
		}
	}
	if temperature <= 1e-6 || len(cands) == 1 {
		return cands[best].Move
	}

	maxCP := float64(cands[best].EvalCP)
	exps := make([]float64, len(cands))
	total := 0.0
	for i, c := range cands {
		exps[i] = math.Exp((float64(c.EvalCP) - maxCP) / math.Max(temperature, 1e-6))
		total += exps[i]
	}
	if total <= 0 {
		return cands[best].Move
	}
	roll := r.Float64() * total
	cum := 0.0
	for i, x := range exps {
		cum += x
		if roll <= cum {
			return cands[i].Move
		}
	}
	return cands[len(cands)-1].Move
}

func (e *Engine) random() *rand.Rand {
	e.randMu.Lock()
	seed := e.rand.Int63()
	e.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

func (e *Engine) SetRandomSeed(seed int64) {
	e.randMu.Lock()
	e.rand = rand.New(rand.NewSource(seed))
	e.randMu.Unlock()
}

func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}
