package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/mcoot/grimoire/internal/model"
)

//go:embed data/*.json
var builtin embed.FS

// Catalog is the read-only set of scripts known to the server
type Catalog struct {
	scripts map[model.ScriptID]*Script
	order   []model.ScriptID
}

// New loads every *.json script file from the root of fsys
func New(fsys fs.FS) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read script directory: %w", err)
	}

	c := &Catalog{scripts: make(map[model.ScriptID]*Script)}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", entry.Name(), err)
		}
		script, err := parseScript(data)
		if err != nil {
			return nil, fmt.Errorf("parse script %s: %w", entry.Name(), err)
		}
		if _, exists := c.scripts[script.ID]; exists {
			return nil, fmt.Errorf("duplicate script id %q", script.ID)
		}
		c.scripts[script.ID] = script
		c.order = append(c.order, script.ID)
	}
	sort.Slice(c.order, func(i, j int) bool { return c.order[i] < c.order[j] })
	return c, nil
}

// Default returns the catalog of scripts compiled into the binary
func Default() (*Catalog, error) {
	sub, err := fs.Sub(builtin, "data")
	if err != nil {
		return nil, err
	}
	return New(sub)
}

func parseScript(data []byte) (*Script, error) {
	var script Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, err
	}
	if script.ID == "" {
		return nil, fmt.Errorf("script has no id")
	}
	seen := make(map[model.CharacterID]bool, len(script.Characters))
	for _, ch := range script.Characters {
		if seen[ch.ID] {
			return nil, fmt.Errorf("duplicate character id %q", ch.ID)
		}
		seen[ch.ID] = true
		switch ch.Type {
		case Townsfolk, Outsider, Minion, Demon:
		default:
			return nil, fmt.Errorf("character %q has unknown type %q", ch.ID, ch.Type)
		}
	}
	script.index()
	return &script, nil
}

// Script looks up a script by id
func (c *Catalog) Script(id model.ScriptID) (*Script, error) {
	s, ok := c.scripts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScript, id)
	}
	return s, nil
}

// Scripts returns all scripts ordered by id
func (c *Catalog) Scripts() []*Script {
	out := make([]*Script, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.scripts[id])
	}
	return out
}

// Character resolves a character within a script
func (c *Catalog) Character(scriptID model.ScriptID, id model.CharacterID) (*Character, error) {
	s, err := c.Script(scriptID)
	if err != nil {
		return nil, err
	}
	ch, ok := s.Character(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharacter, id)
	}
	return ch, nil
}

// NightOrder lists which of the given characters wake on each night, in wake order
type NightOrder struct {
	FirstNight  []model.CharacterID `json:"firstNight"`
	OtherNights []model.CharacterID `json:"otherNights"`
}

// NightOrder computes the wake order for a set of in-play characters.
// Unknown ids are skipped.
func (c *Catalog) NightOrder(scriptID model.ScriptID, ids []model.CharacterID) (NightOrder, error) {
	s, err := c.Script(scriptID)
	if err != nil {
		return NightOrder{}, err
	}

	var first, other []*Character
	for _, id := range ids {
		ch, ok := s.Character(id)
		if !ok {
			continue
		}
		if ch.FirstNightOrder > 0 {
			first = append(first, ch)
		}
		if ch.OtherNightOrder > 0 {
			other = append(other, ch)
		}
	}
	sort.SliceStable(first, func(i, j int) bool { return first[i].FirstNightOrder < first[j].FirstNightOrder })
	sort.SliceStable(other, func(i, j int) bool { return other[i].OtherNightOrder < other[j].OtherNightOrder })

	order := NightOrder{
		FirstNight:  make([]model.CharacterID, 0, len(first)),
		OtherNights: make([]model.CharacterID, 0, len(other)),
	}
	for _, ch := range first {
		order.FirstNight = append(order.FirstNight, ch.ID)
	}
	for _, ch := range other {
		order.OtherNights = append(order.OtherNights, ch.ID)
	}
	return order, nil
}
