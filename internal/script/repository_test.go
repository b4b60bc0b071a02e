package script

import (
	"os"
	"path/filepath"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

const foolsMatePGN = `[Event "LcStudy Training Game"]
[Site "LcStudy"]
[White "Maia 1500 (AUTO)"]
[Black "Leela (PLAYER)"]
[Result "0-1"]

1. f3 e5 2. g4 Qh4# 0-1
`

const scholarsMatePGN = `[Event "LcStudy Training Game"]
[Site "LcStudy"]
[White "Leela (PLAYER)"]
[Black "Maia 1100 (AUTO)"]
[Result "1-0"]

1. e4 e5 2. Bc4 Nc6 3. Qh5 Nf6 4. Qxf7# 1-0
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func TestParseScriptFile(t *testing.T) {
	dir := t.TempDir()
	p := writeScript(t, dir, "fools.pgn", foolsMatePGN)

	g, err := ParseScriptFile(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.ID != "fools" {
		t.Fatalf("id = %q, want fools", g.ID)
	}
	want := []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	if len(g.MovesUCI) != len(want) {
		t.Fatalf("moves = %v, want %v", g.MovesUCI, want)
	}
	for i := range want {
		if g.MovesUCI[i] != want[i] {
			t.Fatalf("move[%d] = %q, want %q", i, g.MovesUCI[i], want[i])
		}
	}
	if g.UserSide != nchess.Black {
		t.Fatalf("user side = %v, want Black", g.UserSide)
	}
}

func TestParseScriptFileUCITokens(t *testing.T) {
	dir := t.TempDir()
	p := writeScript(t, dir, "uci.pgn", "[White \"Leela (PLAYER)\"]\n\n1. e2e4 e7e5 *\n")

	g, err := ParseScriptFile(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(g.MovesUCI) != 2 || g.MovesUCI[0] != "e2e4" || g.MovesUCI[1] != "e7e5" {
		t.Fatalf("moves = %v", g.MovesUCI)
	}
	if g.UserSide != nchess.White {
		t.Fatalf("user side = %v, want White", g.UserSide)
	}
}

func TestAssignRoundRobin(t *testing.T) {
	seeds := t.TempDir()
	writeScript(t, seeds, "a.pgn", scholarsMatePGN)
	writeScript(t, seeds, "b.pgn", foolsMatePGN)

	r := NewRepository(seeds, "", nil)
	if !r.HasGames() {
		t.Fatal("expected games")
	}
	got := []string{r.Assign(), r.Assign(), r.Assign(), r.Assign()}
	want := []string{"a", "b", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("assign sequence = %v, want %v", got, want)
		}
	}
}

func TestAssignPicksUpNewFiles(t *testing.T) {
	user := t.TempDir()
	r := NewRepository(t.TempDir(), user, nil)
	if gid := r.Assign(); gid != "" {
		t.Fatalf("assign on empty repo = %q", gid)
	}

	writeScript(t, user, "late.pgn", foolsMatePGN)
	if gid := r.Assign(); gid != "late" {
		t.Fatalf("assign = %q, want late", gid)
	}
}

func TestHasGamesPicksUpNewFiles(t *testing.T) {
	user := t.TempDir()
	r := NewRepository(t.TempDir(), user, nil)
	if r.HasGames() {
		t.Fatal("empty repo reports games")
	}

	writeScript(t, user, "late.pgn", foolsMatePGN)
	if !r.HasGames() {
		t.Fatal("script written after construction not seen")
	}
}

func TestExpectedAndReply(t *testing.T) {
	seeds := t.TempDir()
	writeScript(t, seeds, "fools.pgn", foolsMatePGN)
	r := NewRepository(seeds, "", nil)

	if mv := r.Expected("fools", 1); mv != "e7e5" {
		t.Fatalf("expected ply 1 = %q", mv)
	}
	if mv := r.Reply("fools", 1); mv != "g2g4" {
		t.Fatalf("reply after ply 1 = %q", mv)
	}
	if mv := r.Expected("fools", 4); mv != "" {
		t.Fatalf("expected past end = %q", mv)
	}
	if mv := r.Expected("nope", 0); mv != "" {
		t.Fatalf("expected unknown game = %q", mv)
	}
	if n := r.Length("fools"); n != 4 {
		t.Fatalf("length = %d", n)
	}
}

func TestConsume(t *testing.T) {
	seeds := t.TempDir()
	user := t.TempDir()
	seedPath := writeScript(t, seeds, "keep.pgn", scholarsMatePGN)
	userPath := writeScript(t, user, "gone.pgn", foolsMatePGN)
	r := NewRepository(seeds, user, nil)

	if !r.Consume("gone") {
		t.Fatal("consume gone failed")
	}
	if r.Consume("gone") {
		t.Fatal("double consume succeeded")
	}
	if _, err := os.Stat(userPath); !os.IsNotExist(err) {
		t.Fatalf("user script not deleted: %v", err)
	}
	if mv := r.Expected("gone", 0); mv != "" {
		t.Fatalf("expected after consume = %q, want none", mv)
	}

	if !r.Consume("keep") {
		t.Fatal("consume keep failed")
	}
	if _, err := os.Stat(seedPath); err != nil {
		t.Fatalf("seed script should survive on disk: %v", err)
	}

	// Consumed scripts never re-enter the rotation even though the seed
	// file still exists.
	if gid := r.Assign(); gid != "" {
		t.Fatalf("assign after consume = %q", gid)
	}
}

func TestBuildPGNRoundTrip(t *testing.T) {
	moves := []string{"e2e4", "e7e5", "g1f3", "b8c6"}
	body, err := BuildPGN(moves, nchess.Black, 1700, "*")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	dir := t.TempDir()
	p := writeScript(t, dir, "rt.pgn", body)
	g, err := ParseScriptFile(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.UserSide != nchess.Black {
		t.Fatalf("user side = %v, want Black", g.UserSide)
	}
	if len(g.MovesUCI) != len(moves) {
		t.Fatalf("moves = %v, want %v", g.MovesUCI, moves)
	}
	for i := range moves {
		if g.MovesUCI[i] != moves[i] {
			t.Fatalf("move[%d] = %q, want %q", i, g.MovesUCI[i], moves[i])
		}
	}
}
