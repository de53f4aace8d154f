package model

// Phase is a lobby's position in its forward-only lifecycle
type Phase string

const (
	PhaseSetup             Phase = "setup"
	PhaseCharacterSelect   Phase = "character_select"
	PhaseWaitingForPlayers Phase = "waiting_for_players"
	PhasePlaying           Phase = "playing"
)

var phaseOrder = []Phase{
	PhaseSetup,
	PhaseCharacterSelect,
	PhaseWaitingForPlayers,
	PhasePlaying,
}

func (p Phase) index() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	return p.index() >= 0
}

// Next returns the phase that follows p, or false if p is terminal or unknown
func (p Phase) Next() (Phase, bool) {
	i := p.index()
	if i < 0 || i == len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[i+1], true
}

// CanTransitionTo reports whether a lobby in phase p may move to next.
// Only the immediately following phase is reachable.
func (p Phase) CanTransitionTo(next Phase) bool {
	n, ok := p.Next()
	return ok && n == next
}
