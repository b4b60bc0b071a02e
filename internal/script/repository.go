package script

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/kapu/lcstudy-go/internal/domain"
)

// Repository loads pre-recorded strong-vs-practice games from PGN files
// and serves them to sessions. Seed scripts ship with the install; user
// scripts are produced by the background generator and are deleted from
// disk once consumed.
type Repository struct {
	seedsDir string
	userDir  string

	mu     sync.Mutex
	games  map[string]*domain.ScriptedGame
	paths  map[string]string
	ids    []string
	loaded map[string]struct{}
	rr     int

	log *zap.Logger
}

func NewRepository(seedsDir, userDir string, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Repository{
		seedsDir: seedsDir,
		userDir:  userDir,
		games:    make(map[string]*domain.ScriptedGame),
		paths:    make(map[string]string),
		loaded:   make(map[string]struct{}),
		log:      log,
	}
	r.mu.Lock()
	r.loadAll()
	r.mu.Unlock()
	return r
}

// HasGames reports whether at least one script is available. Like Assign
// it rescans first, so scripts written after the pool drained are seen.
func (r *Repository) HasGames() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadAll()
	return len(r.ids) > 0
}

// Count returns the number of loaded scripts.
func (r *Repository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Assign picks the next script id in round-robin order. New files are
// picked up on every call so freshly generated scripts join the rotation
// without a restart. Returns "" when no scripts exist.
func (r *Repository) Assign() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadAll()
	if len(r.ids) == 0 {
		return ""
	}
	gid := r.ids[r.rr%len(r.ids)]
	r.rr++
	return gid
}

// Expected returns the script move at ply, or "" when out of range or the
// script is unknown.
func (r *Repository) Expected(gid string, ply int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.games[gid]
	if g == nil || ply < 0 || ply >= len(g.MovesUCI) {
		return ""
	}
	return g.MovesUCI[ply]
}

// Reply returns the opponent move following the expected move at ply.
func (r *Repository) Reply(gid string, ply int) string {
	return r.Expected(gid, ply+1)
}

// Length returns the total ply count of a script, 0 when unknown.
func (r *Repository) Length(gid string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.games[gid]
	if g == nil {
		return 0
	}
	return len(g.MovesUCI)
}

// UserSide returns the color the human plays for this script and whether
// the script is known.
func (r *Repository) UserSide(gid string) (nchess.Color, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.games[gid]
	if g == nil {
		return nchess.White, false
	}
	return g.UserSide, true
}

// Consume removes a script from the rotation. The in-memory record goes
// first so the script can never be assigned again even if the file delete
// fails; only user-generated files are deleted from disk.
func (r *Repository) Consume(gid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.games[gid]; !ok {
		return false
	}
	for i, id := range r.ids {
		if id == gid {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
	delete(r.games, gid)
	p := r.paths[gid]
	delete(r.paths, gid)
	if p != "" && r.userDir != "" && strings.HasPrefix(p, r.userDir+string(os.PathSeparator)) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.log.Warn("remove consumed script", zap.String("path", p), zap.Error(err))
		}
	}
	return true
}

func (r *Repository) loadAll() {
	for _, dir := range []string{r.seedsDir, r.userDir} {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".pgn") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			p := filepath.Join(dir, name)
			if _, seen := r.loaded[p]; seen {
				continue
			}
			r.loadPath(p)
		}
	}
}

func (r *Repository) loadPath(p string) {
	g, err := ParseScriptFile(p)
	if err != nil {
		r.log.Warn("skip unreadable script", zap.String("path", p), zap.Error(err))
		r.loaded[p] = struct{}{}
		return
	}
	r.loaded[p] = struct{}{}
	if g == nil {
		return
	}
	if _, dup := r.games[g.ID]; dup {
		return
	}
	r.games[g.ID] = g
	r.paths[g.ID] = p
	r.ids = append(r.ids, g.ID)
}

var tagPairRe = regexp.MustCompile(`^\[(\w+)\s+"(.*)"\]$`)

// ParseScriptFile reads a single-mainline PGN file into a ScriptedGame.
// Returns (nil, nil) for a game with no moves. The script id is the file
// name without extension.
func ParseScriptFile(path string) (*domain.ScriptedGame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)
	var movetext strings.Builder
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := tagPairRe.FindStringSubmatch(line); m != nil {
			headers[m[1]] = m[2]
			continue
		}
		movetext.WriteString(line)
		movetext.WriteByte(' ')
	}

	moves, err := parseMovetext(movetext.String())
	if err != nil {
		return nil, err
	}
	if len(moves) == 0 {
		return nil, nil
	}

	return &domain.ScriptedGame{
		ID:       strings.TrimSuffix(filepath.Base(path), ".pgn"),
		MovesUCI: moves,
		UserSide: playerSide(headers["White"], headers["Black"]),
	}, nil
}

// playerSide reads the "(PLAYER)" marker that the seed generator puts in
// the White or Black tag. Older seed files only name Leela, so a Leela
// mention in the White tag is the fallback.
func playerSide(white, black string) nchess.Color {
	switch {
	case strings.Contains(white, "PLAYER"):
		return nchess.White
	case strings.Contains(black, "PLAYER"):
		return nchess.Black
	case strings.Contains(white, "Leela"):
		return nchess.White
	default:
		return nchess.Black
	}
}

func parseMovetext(text string) ([]string, error) {
	game := nchess.NewGame()
	var moves []string
	for _, tok := range strings.Fields(text) {
		switch tok {
		case "1-0", "0-1", "1/2-1/2", "*":
			return moves, nil
		}
		if i := strings.LastIndexByte(tok, '.'); i >= 0 {
			tok = tok[i+1:]
		}
		if tok == "" {
			continue
		}
		if mv, err := (nchess.UCINotation{}).Decode(game.Position(), tok); err == nil {
			if err := game.Move(mv, nil); err != nil {
				return nil, err
			}
		} else if err := game.PushNotationMove(tok, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, err
		}
		played := game.Moves()
		moves = append(moves, played[len(played)-1].String())
	}
	return moves, nil
}
