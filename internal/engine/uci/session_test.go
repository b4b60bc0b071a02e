package uci

import (
	"strings"
	"testing"
	"time"
)

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("", nil); got != "position startpos\n" {
		t.Fatalf("empty fen = %q", got)
	}
	if got := buildPositionCommand("startpos", []string{"e2e4", "e7e5"}); got != "position startpos moves e2e4 e7e5\n" {
		t.Fatalf("startpos with moves = %q", got)
	}
	fen := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	if got := buildPositionCommand(fen, nil); got != "position fen "+fen+"\n" {
		t.Fatalf("fen = %q", got)
	}
}

func TestBuildGoTokens(t *testing.T) {
	tokens, err := buildGoTokens(Limits{Nodes: 1000})
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	if strings.Join(tokens, " ") != "go nodes 1000" {
		t.Fatalf("tokens = %v", tokens)
	}

	tokens, err = buildGoTokens(Limits{Nodes: 500, MoveTimeMillis: 200})
	if err != nil {
		t.Fatalf("both: %v", err)
	}
	if strings.Join(tokens, " ") != "go nodes 500 movetime 200" {
		t.Fatalf("tokens = %v", tokens)
	}

	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatal("empty limits accepted")
	}
}

func TestComputeSearchTimeout(t *testing.T) {
	if d := computeSearchTimeout(Limits{MoveTimeMillis: 1000}); d != 9*time.Second {
		t.Fatalf("movetime timeout = %v", d)
	}
	if d := computeSearchTimeout(Limits{Nodes: 300000}); d > 5*time.Minute {
		t.Fatalf("node timeout not capped: %v", d)
	}
	if d := computeSearchTimeout(Limits{Nodes: 1}); d < 10*time.Second {
		t.Fatalf("node timeout floor: %v", d)
	}
}

func TestParseInfo(t *testing.T) {
	line := "info depth 10 seldepth 14 multipv 2 score cp -35 nodes 1000 pv e7e5 g1f3 b8c6"
	idx, cand, ok := parseInfo(line)
	if !ok {
		t.Fatal("parseInfo rejected valid line")
	}
	if idx != 2 {
		t.Fatalf("multipv = %d", idx)
	}
	if cand.Move != "e7e5" || cand.EvalCP != -35 {
		t.Fatalf("candidate = %+v", cand)
	}
	if len(cand.Principal) != 3 {
		t.Fatalf("pv = %v", cand.Principal)
	}
}

func TestParseInfoMateScore(t *testing.T) {
	_, cand, ok := parseInfo("info depth 5 score mate -2 pv h7h6")
	if !ok {
		t.Fatal("parseInfo rejected mate line")
	}
	if cand.EvalCP != -30000 {
		t.Fatalf("mate eval = %d", cand.EvalCP)
	}
}

func TestParseInfoNoPV(t *testing.T) {
	if _, _, ok := parseInfo("info depth 3 score cp 12 nodes 500"); ok {
		t.Fatal("line without pv accepted")
	}
}

func TestCollapseCandidatesOrdered(t *testing.T) {
	m := map[int]Candidate{
		3: {Move: "c"},
		1: {Move: "a"},
		2: {Move: "b"},
	}
	out := collapseCandidates(m)
	if len(out) != 3 || out[0].Move != "a" || out[1].Move != "b" || out[2].Move != "c" {
		t.Fatalf("collapsed = %+v", out)
	}
}

func TestOptionsKeyDistinguishesNetworks(t *testing.T) {
	a := optionsKey(Options{WeightsFile: "maia-1500.pb.gz", MultiPV: 1, Threads: 1})
	b := optionsKey(Options{WeightsFile: "maia-1900.pb.gz", MultiPV: 1, Threads: 1})
	if a == b {
		t.Fatal("keys collide across networks")
	}
}
