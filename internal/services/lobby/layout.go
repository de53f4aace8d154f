package lobby

import (
	"math"

	"github.com/mcoot/grimoire/internal/model"
)

// CircleLayout places one token per character on a circle of the given
// radius centred in a square canvas. The first character sits at the top
// and the rest follow clockwise.
func CircleLayout(lobbyID model.LobbyID, ids []model.CharacterID, canvasSize, radius float64) []model.Token {
	n := len(ids)
	tokens := make([]model.Token, n)
	center := canvasSize / 2
	for i, id := range ids {
		angle := float64(i)*2*math.Pi/float64(n) - math.Pi/2
		tokens[i] = model.Token{
			LobbyID:     lobbyID,
			CharacterID: id,
			Position: model.Position{
				X: center + radius*math.Cos(angle),
				Y: center + radius*math.Sin(angle),
			},
		}
	}
	return tokens
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
