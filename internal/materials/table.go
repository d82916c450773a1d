// Package materials resolves plan material tags to physical profiles and
// enriches plans with them.
package materials

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ariel-frischer/simforge/internal/plan"
	"gopkg.in/yaml.v3"
)

//go:embed materials.yaml
var defaultTable []byte

// Match describes how a lookup was resolved.
type Match int

const (
	MatchExact Match = iota
	MatchFuzzy
	MatchDefault
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "default"
	}
}

// Table is an ordered set of material profiles with a fallback.
type Table struct {
	profiles []plan.MaterialProfile
	index    map[string]int
	fallback plan.MaterialProfile
}

type tableFile struct {
	Default   plan.MaterialProfile   `yaml:"default"`
	Materials []plan.MaterialProfile `yaml:"materials"`
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, err := ParseTable(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("built-in materials table: %v", err))
	}
	return t
}

// LoadTable reads a table from path, or returns the built-in table when path
// is empty.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading materials file: %w", err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("parsing materials file %s: %w", path, err)
	}
	return t, nil
}

// ParseTable parses a YAML materials table.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Default.Name == "" {
		return nil, fmt.Errorf("missing default material")
	}
	t := &Table{
		fallback: f.Default,
		index:    make(map[string]int, len(f.Materials)),
	}
	for _, m := range f.Materials {
		key := normalize(m.Name)
		if key == "" {
			return nil, fmt.Errorf("material entry without a name")
		}
		if _, dup := t.index[key]; dup {
			return nil, fmt.Errorf("duplicate material %q", m.Name)
		}
		m.Name = key
		t.index[key] = len(t.profiles)
		t.profiles = append(t.profiles, m)
	}
	return t, nil
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Lookup resolves name: exact match first, then the first entry in table
// order whose name contains name or is contained in it, then the default.
func (t *Table) Lookup(name string) (plan.MaterialProfile, Match) {
	key := normalize(name)
	if i, ok := t.index[key]; ok {
		return t.profiles[i], MatchExact
	}
	if key != "" {
		for _, p := range t.profiles {
			if strings.Contains(p.Name, key) || strings.Contains(key, p.Name) {
				return p, MatchFuzzy
			}
		}
	}
	return t.fallback, MatchDefault
}

// Default returns the fallback profile.
func (t *Table) Default() plan.MaterialProfile { return t.fallback }

// Names returns every material name in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.profiles))
	for i, p := range t.profiles {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of materials, not counting the default.
func (t *Table) Len() int { return len(t.profiles) }

// Family groups material names for listing.
type Family struct {
	Name      string
	Materials []string
}

var familyOrder = []string{"woods", "metals", "plastics", "stones", "fabrics", "other"}

func familyOf(name string) string {
	switch {
	case strings.Contains(name, "wood"):
		return "woods"
	case strings.Contains(name, "metal"):
		return "metals"
	case strings.Contains(name, "plastic"), strings.Contains(name, "rubber"):
		return "plastics"
	case strings.Contains(name, "stone"), strings.Contains(name, "concrete"):
		return "stones"
	case strings.Contains(name, "fabric"):
		return "fabrics"
	default:
		return "other"
	}
}

// Families groups the table by family. Empty families are omitted.
func (t *Table) Families() []Family {
	grouped := make(map[string][]string)
	for _, p := range t.profiles {
		f := familyOf(p.Name)
		grouped[f] = append(grouped[f], p.Name)
	}
	var out []Family
	for _, name := range familyOrder {
		if len(grouped[name]) > 0 {
			out = append(out, Family{Name: name, Materials: grouped[name]})
		}
	}
	return out
}

// CheckRealism returns warnings for physically unusual profile values.
func CheckRealism(p plan.MaterialProfile) []string {
	var warnings []string
	switch {
	case p.Density < 10:
		warnings = append(warnings, fmt.Sprintf("Very low density (%g kg/m³) - lighter than air", p.Density))
	case p.Density > 20000:
		warnings = append(warnings, fmt.Sprintf("Very high density (%g kg/m³) - denser than most metals", p.Density))
	}
	if p.Friction > 0.95 {
		warnings = append(warnings, fmt.Sprintf("Extremely high friction (%g) - objects may not slide", p.Friction))
	}
	if p.Restitution > 0.9 {
		warnings = append(warnings, fmt.Sprintf("Very high bounciness (%g) - objects will bounce excessively", p.Restitution))
	}
	if p.LinearDamping > 0.5 {
		warnings = append(warnings, fmt.Sprintf("High linear damping (%g) - objects will slow quickly", p.LinearDamping))
	}
	return warnings
}
