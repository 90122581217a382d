// Package teams is a read-only color table keyed by league and team abbreviation.
package teams

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Color is an RGB triple.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex renders the color as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// UnmarshalYAML accepts [r, g, b] lists and "#rrggbb" strings.
func (c *Color) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var rgb []uint8
		if err := node.Decode(&rgb); err != nil {
			return err
		}
		if len(rgb) != 3 {
			return fmt.Errorf("%w: want 3 components, got %d", ErrInvalidColor, len(rgb))
		}
		*c = Color{R: rgb[0], G: rgb[1], B: rgb[2]}
		return nil
	case yaml.ScalarNode:
		parsed, err := ParseHex(node.Value)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	return fmt.Errorf("%w: unsupported yaml node", ErrInvalidColor)
}

// ParseHex parses "#rrggbb" or "rrggbb".
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	var c Color
	if len(s) != 6 {
		return c, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return c, nil
}

// Palette is a team's primary and secondary color.
type Palette struct {
	Name      string `json:"name,omitempty" yaml:"name"`
	Primary   Color  `json:"primary" yaml:"primary"`
	Secondary Color  `json:"secondary" yaml:"secondary"`
}

// Neutral is used for teams missing from the table.
var Neutral = Palette{
	Primary:   Color{R: 255, G: 255, B: 255},
	Secondary: Color{R: 255, G: 180, B: 0},
}

// Lookup resolves palettes for the classifier.
type Lookup interface {
	Palette(league, abbreviation string) Palette
}

// Table is safe for concurrent reads.
type Table struct {
	mu      sync.RWMutex
	leagues map[string]map[string]Palette
}

// Default returns a table seeded with the built-in palettes.
func Default() *Table {
	t := &Table{leagues: map[string]map[string]Palette{}}
	if err := t.merge(defaultsYAML); err != nil {
		panic(fmt.Sprintf("teams: bad built-in palettes: %v", err))
	}
	return t
}

// LoadFile returns the built-in table overlaid with the YAML file at path.
func LoadFile(path string) (*Table, error) {
	t := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if err := t.merge(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}
	return t, nil
}

func (t *Table) merge(data []byte) error {
	var doc map[string]map[string]Palette
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for league, entries := range doc {
		league = strings.ToLower(league)
		if t.leagues[league] == nil {
			t.leagues[league] = map[string]Palette{}
		}
		for abbr, p := range entries {
			t.leagues[league][strings.ToUpper(abbr)] = p
		}
	}
	return nil
}

// Palette returns the team's colors or Neutral.
func (t *Table) Palette(league, abbreviation string) Palette {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.leagues[strings.ToLower(league)][strings.ToUpper(abbreviation)]; ok {
		return p
	}
	return Neutral
}

// Len reports the number of known teams across leagues.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, entries := range t.leagues {
		n += len(entries)
	}
	return n
}
