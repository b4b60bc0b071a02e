package script

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
)

// BuildPGN renders a generated game as a script file body. The side tag
// carrying "(PLAYER)" marks the moves sessions will grade against; the
// other side is the practice opponent.
func BuildPGN(movesUCI []string, playerSide nchess.Color, level int, result string) (string, error) {
	player := "Leela (PLAYER)"
	opponent := fmt.Sprintf("Maia %d (AUTO)", level)
	white, black := player, opponent
	if playerSide == nchess.Black {
		white, black = opponent, player
	}
	if result == "" {
		result = "*"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Event %q]\n", "LcStudy Training Game")
	fmt.Fprintf(&b, "[Site %q]\n", "LcStudy")
	fmt.Fprintf(&b, "[Date %q]\n", time.Now().UTC().Format("2006.01.02"))
	fmt.Fprintf(&b, "[White %q]\n", white)
	fmt.Fprintf(&b, "[Black %q]\n", black)
	fmt.Fprintf(&b, "[Result %q]\n", result)
	b.WriteString("\n")

	game := nchess.NewGame()
	for i, u := range movesUCI {
		pos := game.Position()
		mv, err := (nchess.UCINotation{}).Decode(pos, u)
		if err != nil {
			return "", fmt.Errorf("decode move %d %q: %w", i, u, err)
		}
		san := (nchess.AlgebraicNotation{}).Encode(pos, mv)
		if err := game.Move(mv, nil); err != nil {
			return "", fmt.Errorf("apply move %d %q: %w", i, u, err)
		}
		if i%2 == 0 {
			fmt.Fprintf(&b, "%d. %s", i/2+1, san)
		} else {
			fmt.Fprintf(&b, " %s", san)
		}
		if i%2 == 1 && i != len(movesUCI)-1 {
			b.WriteString(" ")
		}
	}
	if len(movesUCI) > 0 {
		b.WriteString(" ")
	}
	b.WriteString(result)
	b.WriteString("\n")
	return b.String(), nil
}
