package game

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapu/lcstudy-go/internal/domain"
	"github.com/kapu/lcstudy-go/internal/history"
	"github.com/kapu/lcstudy-go/internal/script"
	"github.com/kapu/lcstudy-go/internal/session"
)

const foolsMatePGN = `[Event "LcStudy Training Game"]
[Site "LcStudy"]
[White "Maia 1500 (AUTO)"]
[Black "Leela (PLAYER)"]
[Result "0-1"]

1. f3 e5 2. g4 Qh4# 0-1
`

type fixture struct {
	svc     *Service
	scripts *script.Repository
	hist    *history.Repository
}

func newFixture(t *testing.T, pgns map[string]string) *fixture {
	t.Helper()
	seeds := t.TempDir()
	for name, body := range pgns {
		if err := os.WriteFile(filepath.Join(seeds, name+".pgn"), []byte(body), 0o644); err != nil {
			t.Fatalf("write script: %v", err)
		}
	}
	scripts := script.NewRepository(seeds, "", nil)
	hist, err := history.NewRepository(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("history repo: %v", err)
	}
	svc := NewService(session.NewMemoryStore(), scripts, hist, 0, nil)
	return &fixture{svc: svc, scripts: scripts, hist: hist}
}

func TestCreateSessionTakesScriptColor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"fools": foolsMatePGN})

	// requested White is overridden by the script's player side
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.UserColor != nchess.Black {
		t.Fatalf("user color = %v, want Black", sess.UserColor)
	}
	if !sess.Flip {
		t.Fatal("flip not set for black user")
	}
	// the scripted opening move was applied so the user is on turn
	if sess.ScriptPly != 1 || sess.PlyIndex != 1 {
		t.Fatalf("cursors = script %d, ply %d, want 1/1", sess.ScriptPly, sess.PlyIndex)
	}
	if sess.Board.Position().Turn() != nchess.Black {
		t.Fatalf("turn = %v, want Black", sess.Board.Position().Turn())
	}
}

func TestGradeCorrectGuessThroughCheckmate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"fools": foolsMatePGN})
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := f.svc.GradeMove(ctx, sess, "e7e5", false)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.Correct || res.Attempts != 1 || res.LeelaMove != "e7e5" {
		t.Fatalf("result = %+v", res)
	}
	if sess.ScoreTotal != 1.0 {
		t.Fatalf("score = %v", sess.ScoreTotal)
	}

	reply, err := f.svc.OpponentReply(ctx, sess)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply != "g2g4" {
		t.Fatalf("reply = %q, want g2g4", reply)
	}

	res, err = f.svc.GradeMove(ctx, sess, "d8h4", false)
	if err != nil {
		t.Fatalf("grade mate: %v", err)
	}
	if !res.Correct {
		t.Fatalf("result = %+v", res)
	}
	if sess.Status != domain.StatusFinished {
		t.Fatalf("status = %v, want finished", sess.Status)
	}

	// consumed: the script never comes back
	if gid := f.scripts.Assign(); gid != "" {
		t.Fatalf("assign after consumption = %q", gid)
	}

	entries, err := f.hist.All()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].Result != "finished" || entries[0].PracticeLevel != 1500 {
		t.Fatalf("history = %+v", entries)
	}
}

func TestGradeAutoPlayAfterTenAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"fools": foolsMatePGN})
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 1; i <= 9; i++ {
		res, err := f.svc.GradeMove(ctx, sess, "a7a6", false)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if res.Correct || res.Attempts != i {
			t.Fatalf("attempt %d result = %+v", i, res)
		}
	}

	res, err := f.svc.GradeMove(ctx, sess, "a7a6", false)
	if err != nil {
		t.Fatalf("tenth attempt: %v", err)
	}
	if !res.Correct || res.Attempts != 10 || res.PlayerMove != "e7e5" {
		t.Fatalf("auto-play result = %+v", res)
	}
	if sess.ScoreTotal != 0 {
		t.Fatalf("auto-played move scored: %v", sess.ScoreTotal)
	}
	if sess.RetryCount != 0 {
		t.Fatalf("retry count not reset: %d", sess.RetryCount)
	}
	if sess.ScriptPly != 2 {
		t.Fatalf("script ply = %d, want 2", sess.ScriptPly)
	}
}

func TestGradeRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"fools": foolsMatePGN})
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fenBefore := sess.Board.FEN()

	if _, err := f.svc.GradeMove(ctx, sess, "castle!", false); !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("format err = %v", err)
	}
	if _, err := f.svc.GradeMove(ctx, sess, "e7e6e5", false); !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("format err = %v", err)
	}
	// legal squares, illegal move for Black here
	if _, err := f.svc.GradeMove(ctx, sess, "e2e4", false); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal err = %v", err)
	}

	if sess.Board.FEN() != fenBefore {
		t.Fatal("rejected moves mutated the board")
	}
	if sess.RetryCount != 0 {
		t.Fatalf("rejected moves counted as attempts: %d", sess.RetryCount)
	}
}

func TestGradeNotYourTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.Black, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// no script: board stays at the start position with White to move
	if _, err := f.svc.GradeMove(ctx, sess, "e7e5", false); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("err = %v", err)
	}
}

func TestGradeFinishedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess.Status = domain.StatusFinished
	if _, err := f.svc.GradeMove(ctx, sess, "e2e4", false); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("err = %v", err)
	}
}

func TestGradeWithoutScript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := f.svc.GradeMove(ctx, sess, "e2e4", false)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Correct || res.Attempts != 1 || !strings.Contains(res.Message, "No precomputed game") {
		t.Fatalf("result = %+v", res)
	}
}

func TestGradeClientValidatedFastPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := f.svc.GradeMove(ctx, sess, "e2e4", true)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.Correct || sess.ScoreTotal != 1.0 || sess.PlyIndex != 1 {
		t.Fatalf("result = %+v, session = %+v", res, sess)
	}
}

func TestGradePastEndOfScript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"fools": foolsMatePGN})
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess.ScriptPly = 99
	res, err := f.svc.GradeMove(ctx, sess, "e7e5", false)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Correct || !strings.Contains(res.Message, "end of precomputed game") {
		t.Fatalf("result = %+v", res)
	}
}

func TestOpponentReplyExhaustedScriptFinishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"fools": foolsMatePGN})
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess.ScriptPly = 99
	reply, err := f.svc.OpponentReply(ctx, sess)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply != "" {
		t.Fatalf("reply = %q", reply)
	}
	if sess.Status != domain.StatusFinished || sess.ScriptID != "" {
		t.Fatalf("session = %+v", sess)
	}
	if gid := f.scripts.Assign(); gid != "" {
		t.Fatalf("script not consumed: %q", gid)
	}
}

func TestCheckMovePromotionProbe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "8/P6k/8/8/8/8/8/K7 w - - 0 1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	legal, promo := f.svc.CheckMove(sess, "a7a8")
	if legal || !promo {
		t.Fatalf("a7a8 = legal %v, promo %v", legal, promo)
	}
	legal, promo = f.svc.CheckMove(sess, "a7a8q")
	if !legal || promo {
		t.Fatalf("a7a8q = legal %v, promo %v", legal, promo)
	}
	legal, promo = f.svc.CheckMove(sess, "a1a5")
	if legal || promo {
		t.Fatalf("a1a5 = legal %v, promo %v", legal, promo)
	}
	if legal, _ := f.svc.CheckMove(sess, "zz9!"); legal {
		t.Fatal("garbage accepted")
	}
}

func TestResignConsumesScriptAndRecordsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"fools": foolsMatePGN})
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Resign(ctx, sess); err != nil {
		t.Fatalf("resign: %v", err)
	}
	if sess.Status != domain.StatusFinished {
		t.Fatalf("status = %v", sess.Status)
	}
	if gid := f.scripts.Assign(); gid != "" {
		t.Fatalf("script not consumed: %q", gid)
	}
	entries, err := f.hist.All()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].Result != "resigned" {
		t.Fatalf("history = %+v", entries)
	}
	if err := f.svc.Resign(ctx, sess); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("double resign err = %v", err)
	}
}

func TestExportPGN(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"fools": foolsMatePGN})
	sess, err := f.svc.CreateSession(ctx, 1500, nchess.White, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.GradeMove(ctx, sess, "e7e5", false); err != nil {
		t.Fatalf("grade: %v", err)
	}
	pgn := f.svc.ExportPGN(sess)
	if !strings.Contains(pgn, "[White \"Maia 1500 (AUTO)\"]") {
		t.Fatalf("pgn headers wrong:\n%s", pgn)
	}
	if !strings.Contains(pgn, "1. f3 e5") {
		t.Fatalf("pgn movetext wrong:\n%s", pgn)
	}
}
