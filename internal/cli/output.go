package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case LobbyCreated:
		o.printLobbyCreated(v)
	case LobbyView:
		o.printLobbyView(v)
	case Script:
		o.printScript(v)
	case []ScriptSummary:
		o.printScriptList(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// LobbyCreated response type (matches API)
type LobbyCreated struct {
	LobbyID    string `json:"lobbyId"`
	Code       string `json:"code"`
	PlayerID   string `json:"playerId"`
	Credential string `json:"credential"`
}

// LobbyView response type. State holds the storyteller fields or the player
// fields depending on Role.
type LobbyView struct {
	Role  string     `json:"role"`
	State LobbyState `json:"state"`
}

// LobbyState is the union of the storyteller and player projections
type LobbyState struct {
	LobbyID string `json:"lobbyId"`
	Code    string `json:"code"`
	Phase   string `json:"phase"`

	// Storyteller fields
	Script             string            `json:"script,omitempty"`
	PlayerCount        int               `json:"playerCount,omitempty"`
	SelectedCharacters []string          `json:"selectedCharacters,omitempty"`
	Players            []PlayerInfo      `json:"players,omitempty"`
	Tokens             []Token           `json:"tokens,omitempty"`
	Assignments        map[string]string `json:"characterAssignments,omitempty"`
	NightOrder         *NightOrder       `json:"nightOrder,omitempty"`

	// Player fields
	PlayerID          string     `json:"playerId,omitempty"`
	PlayerName        string     `json:"playerName,omitempty"`
	AssignedCharacter *Character `json:"assignedCharacter,omitempty"`
}

// PlayerInfo response type
type PlayerInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IsStoryteller bool   `json:"isStoryteller"`
	Connected     bool   `json:"connected"`
}

// Token response type
type Token struct {
	CharacterID string   `json:"characterId"`
	PlayerID    string   `json:"playerId,omitempty"`
	Position    Position `json:"position"`
}

// Position response type
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NightOrder response type
type NightOrder struct {
	FirstNight  []string `json:"firstNight"`
	OtherNights []string `json:"otherNights"`
}

// Character response type
type Character struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Ability string `json:"ability"`
}

// Composition response type
type Composition struct {
	Townsfolk int `json:"townsfolk"`
	Outsiders int `json:"outsiders"`
	Minions   int `json:"minions"`
	Demons    int `json:"demons"`
}

// Script response type
type Script struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Characters   []Character            `json:"characters"`
	Compositions map[string]Composition `json:"compositions"`
}

// ScriptSummary response type
type ScriptSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
	// The remaining fields are filled in by the CLI, not the server
	Server    string `json:"server,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
}

func (o *Output) printLobbyCreated(l LobbyCreated) {
	fmt.Fprintf(o.w, "Lobby: %s (%s)\n", l.Code, l.LobbyID)
	fmt.Fprintf(o.w, "Storyteller: %s\n", l.PlayerID)
	fmt.Fprintf(o.w, "Credential: %s\n", l.Credential)
}

func (o *Output) printLobbyView(v LobbyView) {
	s := v.State
	fmt.Fprintf(o.w, "Lobby: %s\n", s.Code)
	fmt.Fprintf(o.w, "Phase: %s\n", s.Phase)

	if v.Role != "storyteller" {
		fmt.Fprintf(o.w, "You: %s (%s)\n", s.PlayerName, s.PlayerID)
		if c := s.AssignedCharacter; c != nil {
			fmt.Fprintf(o.w, "Character: %s [%s]\n", c.Name, c.Type)
			fmt.Fprintf(o.w, "  %s\n", c.Ability)
		} else {
			fmt.Fprintln(o.w, "Character: not yet assigned")
		}
		return
	}

	fmt.Fprintf(o.w, "Script: %s\n", s.Script)
	fmt.Fprintf(o.w, "Players (%d/%d):\n", countPlayers(s.Players), s.PlayerCount)
	for _, p := range s.Players {
		tags := []string{}
		if p.IsStoryteller {
			tags = append(tags, "storyteller")
		}
		if !p.Connected {
			tags = append(tags, "offline")
		}
		if c, ok := s.Assignments[p.ID]; ok {
			tags = append(tags, c)
		}
		suffix := ""
		if len(tags) > 0 {
			suffix = " [" + strings.Join(tags, ", ") + "]"
		}
		fmt.Fprintf(o.w, "  - %s (%s)%s\n", p.Name, p.ID, suffix)
	}

	if len(s.SelectedCharacters) > 0 {
		fmt.Fprintf(o.w, "Characters: %s\n", strings.Join(s.SelectedCharacters, ", "))
	}
	if len(s.Tokens) > 0 {
		fmt.Fprintln(o.w, "Tokens:")
		for _, t := range s.Tokens {
			owner := "unassigned"
			if t.PlayerID != "" {
				owner = t.PlayerID
			}
			fmt.Fprintf(o.w, "  %s at (%g, %g) - %s\n", t.CharacterID, t.Position.X, t.Position.Y, owner)
		}
	}
	if n := s.NightOrder; n != nil && len(n.FirstNight)+len(n.OtherNights) > 0 {
		fmt.Fprintf(o.w, "First night: %s\n", strings.Join(n.FirstNight, ", "))
		fmt.Fprintf(o.w, "Other nights: %s\n", strings.Join(n.OtherNights, ", "))
	}
}

func (o *Output) printScript(s Script) {
	fmt.Fprintf(o.w, "Script: %s (%s)\n", s.Name, s.ID)

	byType := map[string][]Character{}
	for _, c := range s.Characters {
		byType[c.Type] = append(byType[c.Type], c)
	}
	for _, t := range []string{"townsfolk", "outsider", "minion", "demon"} {
		if len(byType[t]) == 0 {
			continue
		}
		fmt.Fprintf(o.w, "\n%s:\n", strings.ToUpper(t[:1])+t[1:])
		for _, c := range byType[t] {
			fmt.Fprintf(o.w, "  %-16s %s\n", c.ID, c.Ability)
		}
	}

	counts := make([]int, 0, len(s.Compositions))
	for k := range s.Compositions {
		if n, err := strconv.Atoi(k); err == nil {
			counts = append(counts, n)
		}
	}
	sort.Ints(counts)

	fmt.Fprintln(o.w, "\nPlayers  T  O  M  D")
	for _, n := range counts {
		c := s.Compositions[strconv.Itoa(n)]
		fmt.Fprintf(o.w, "%7d %2d %2d %2d %2d\n", n, c.Townsfolk, c.Outsiders, c.Minions, c.Demons)
	}
}

func (o *Output) printScriptList(list []ScriptSummary) {
	for _, s := range list {
		fmt.Fprintf(o.w, "%s\t%s\n", s.ID, s.Name)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	if h.Server != "" {
		fmt.Fprintf(o.w, "Server: %s\n", h.Server)
	}
	if h.Attempts > 1 {
		fmt.Fprintf(o.w, "Attempts: %d\n", h.Attempts)
	}
	fmt.Fprintf(o.w, "Latency: %dms\n", h.LatencyMS)
}

func countPlayers(players []PlayerInfo) int {
	n := 0
	for _, p := range players {
		if !p.IsStoryteller {
			n++
		}
	}
	return n
}
