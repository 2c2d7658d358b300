// Package translate maps detector class names to localized dish names.
package translate

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Entry is one class name and its localized label.
type Entry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// DefaultEntries are the classes of the trained food model.
// Some classes appear under more than one spelling in the dataset.
var DefaultEntries = []Entry{
	{"rice", "米飯"},
	{"fried cabbage", "炒高麗菜"},
	{"scrambled eggs with tomatoes", "番茄炒蛋"},
	{"stir fried water spinach", "炒空心菜"},
	{"dongpo pork", "東坡肉"},
	{"pan fried salmon", "煎鮭魚"},
	{"pumpkin scrambled eggs", "南瓜炒蛋"},
	{"braised bamboo shoots", "滷筍絲"},
	{"stir fried enoki mushrooms", "炒金針菇"},
	{"stir fried rapeseed", "炒油菜"},
	{"stir-fried rapeseed", "炒油菜"},
	{"Fried sausages", "煎香腸"},
	{"Stir-fried bean sprouts", "炒豆芽菜"},
	{"Stir fried bean sprouts", "炒豆芽菜"},
	{"Stir-fried carrots", "炒紅蘿蔔"},
	{"Stir fried carrots", "炒紅蘿蔔"},
}

// Table is an ordered, read-only translation table. It is safe for
// concurrent use once built.
type Table struct {
	entries []Entry
	exact   map[string]string
}

// NewTable builds a table from entries. A repeated name keeps its first
// position and takes the last label.
func NewTable(entries []Entry) *Table {
	t := &Table{exact: make(map[string]string, len(entries))}
	for _, e := range entries {
		if _, seen := t.exact[e.Name]; !seen {
			t.entries = append(t.entries, e)
		} else {
			for i := range t.entries {
				if t.entries[i].Name == e.Name {
					t.entries[i].Label = e.Label
				}
			}
		}
		t.exact[e.Name] = e.Label
	}
	return t
}

// Default returns a table holding DefaultEntries.
func Default() *Table {
	return NewTable(DefaultEntries)
}

// Load returns the default table extended with the entries of the JSON file
// at path. An empty path yields the default table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read translations: %w", err)
	}

	var extra []Entry
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse translations %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(DefaultEntries)+len(extra))
	entries = append(entries, DefaultEntries...)
	for _, e := range extra {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		entries = append(entries, e)
	}
	return NewTable(entries), nil
}

// Normalize trims, lowercases and turns underscores and hyphens into spaces.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(n)
}

// Translate returns the localized label for raw. The normalized name is
// looked up as-is first, then compared against every normalized key in
// table order. Unknown names are returned unchanged.
func (t *Table) Translate(raw string) string {
	normalized := Normalize(raw)

	if label, ok := t.exact[normalized]; ok {
		return label
	}

	for _, e := range t.entries {
		if Normalize(e.Name) == normalized {
			return e.Label
		}
	}

	return raw
}

// Len reports the number of distinct names in the table.
func (t *Table) Len() int {
	return len(t.entries)
}
