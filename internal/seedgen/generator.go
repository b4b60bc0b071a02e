package seedgen

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/kapu/lcstudy-go/internal/engine/uci"
	"github.com/kapu/lcstudy-go/internal/script"
)

// MoveSource produces moves for both sides of a generated game. Satisfied
// by engine.Engine; tests substitute a scripted fake.
type MoveSource interface {
	BestMove(ctx context.Context, fen string, moves []string, weights string, limits uci.Limits) (string, error)
	SampledMove(ctx context.Context, fen string, moves []string, weights string, limits uci.Limits, multiPV int, temperature float64) (string, error)
	StrongWeights() string
	PracticeWeights(level int) string
}

type Config struct {
	OutDir   string
	Levels   []int
	MaxSeeds int
	IdleWait time.Duration

	StrongNodes   int
	PracticeNodes int
	MultiPV       int
	MaxPlies      int
}

// Generator self-plays the strong network against a practice network and
// writes the finished games as script files for the repository to pick up.
type Generator struct {
	cfg  Config
	src  MoveSource
	rand *rand.Rand
	log  *zap.Logger
}

func New(cfg Config, src MoveSource, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.Levels) == 0 {
		cfg.Levels = []int{1100, 1300, 1500, 1700, 1900, 2200}
	}
	if cfg.MaxSeeds <= 0 {
		cfg.MaxSeeds = 25
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = time.Minute
	}
	if cfg.StrongNodes <= 0 {
		cfg.StrongNodes = 1000
	}
	if cfg.PracticeNodes <= 0 {
		cfg.PracticeNodes = 1
	}
	if cfg.MultiPV <= 0 {
		cfg.MultiPV = 4
	}
	if cfg.MaxPlies <= 0 {
		cfg.MaxPlies = 240
	}
	return &Generator{
		cfg:  cfg,
		src:  src,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
		log:  log,
	}
}

// Run generates games until ctx is canceled, idling while the inventory
// cap is met.
func (g *Generator) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		current, err := g.countSeeds()
		if err != nil {
			g.log.Warn("count seeds", zap.Error(err))
		}
		if current >= g.cfg.MaxSeeds {
			g.log.Info("seed cap reached, idling",
				zap.Int("current", current), zap.Int("max", g.cfg.MaxSeeds))
			if !sleepCtx(ctx, g.cfg.IdleWait) {
				return
			}
			continue
		}
		level := g.cfg.Levels[g.rand.Intn(len(g.cfg.Levels))]
		path, err := g.GenerateOne(ctx, level, g.rand.Float64())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.log.Error("generate game failed", zap.Error(err))
			if !sleepCtx(ctx, 2*time.Second) {
				return
			}
			continue
		}
		g.log.Info("seed generated", zap.String("path", path), zap.Int("level", level))
	}
}

// GenerateOne plays a single strong-vs-practice game and writes it to the
// output directory, returning the file path.
func (g *Generator) GenerateOne(ctx context.Context, level int, temperature float64) (string, error) {
	playerSide := nchess.White
	if g.rand.Intn(2) == 1 {
		playerSide = nchess.Black
	}

	board := nchess.NewGame()
	var moves []string
	for len(moves) < g.cfg.MaxPlies && board.Outcome() == nchess.NoOutcome {
		mv, err := g.nextMove(ctx, board, moves, playerSide, level, temperature)
		if err != nil {
			// keep the partial game, matching a mid-game engine failure
			g.log.Error("engine move failed",
				zap.Int("ply", len(moves)), zap.Error(err))
			break
		}
		if err := applyUCI(board, mv); err != nil {
			return "", fmt.Errorf("apply generated move %q: %w", mv, err)
		}
		moves = append(moves, mv)
	}
	if len(moves) == 0 {
		return "", fmt.Errorf("no moves generated")
	}

	result := "*"
	switch board.Outcome() {
	case nchess.WhiteWon:
		result = "1-0"
	case nchess.BlackWon:
		result = "0-1"
	case nchess.Draw:
		result = "1/2-1/2"
	}

	body, err := script.BuildPGN(moves, playerSide, level, result)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(g.cfg.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("create seeds dir: %w", err)
	}
	name := fmt.Sprintf("seed_%s.pgn", strings.ToLower(ulid.Make().String()))
	path := filepath.Join(g.cfg.OutDir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write seed: %w", err)
	}
	return path, nil
}

func (g *Generator) nextMove(ctx context.Context, board *nchess.Game, moves []string, playerSide nchess.Color, level int, temperature float64) (string, error) {
	if board.Position().Turn() == playerSide {
		return g.src.BestMove(ctx, "startpos", moves, g.src.StrongWeights(), uci.Limits{Nodes: g.cfg.StrongNodes})
	}

	// Sampling temperature decays linearly to zero by move 11 so the
	// practice side varies its openings but converges later on.
	fullmove := len(moves)/2 + 1
	decay := float64(10-(fullmove-1)) / 10.0
	if decay < 0 {
		decay = 0
	}
	tempEff := temperature * decay
	weights := g.src.PracticeWeights(level)
	limits := uci.Limits{Nodes: g.cfg.PracticeNodes}
	if tempEff > 1e-6 && g.cfg.MultiPV > 1 {
		return g.src.SampledMove(ctx, "startpos", moves, weights, limits, g.cfg.MultiPV, tempEff)
	}
	return g.src.BestMove(ctx, "startpos", moves, weights, limits)
}

func (g *Generator) countSeeds() (int, error) {
	entries, err := os.ReadDir(g.cfg.OutDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".pgn") {
			n++
		}
	}
	return n, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func applyUCI(board *nchess.Game, moveStr string) error {
	mv, err := (nchess.UCINotation{}).Decode(board.Position(), moveStr)
	if err != nil {
		return err
	}
	return board.Move(mv, nil)
}
