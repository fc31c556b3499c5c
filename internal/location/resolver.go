// Package location maps free-text place names to canonical administrative areas.
package location

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"outing-workers/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed locations.yaml
var embeddedTable []byte

type tableFile struct {
	Provinces []struct {
		Name      string   `yaml:"name"`
		Aliases   []string `yaml:"aliases"`
		Districts []struct {
			Name    string   `yaml:"name"`
			Aliases []string `yaml:"aliases"`
		} `yaml:"districts"`
	} `yaml:"provinces"`
}

// Builder collects mappings before the Resolver is frozen.
type Builder struct {
	table     map[string]models.LocationMapping
	ambiguous map[string]struct{}
	// canonical province/district names, exempt from the stop-list
	known     map[string]struct{}
	stopwords map[string]struct{}
}

// NewBuilder returns a builder seeded with the embedded table and default stop-list.
func NewBuilder() (*Builder, error) {
	b := &Builder{
		table:     make(map[string]models.LocationMapping),
		ambiguous: make(map[string]struct{}),
		known:     make(map[string]struct{}),
		stopwords: make(map[string]struct{}),
	}
	if err := b.loadYAML(embeddedTable); err != nil {
		return nil, err
	}
	b.AddStopwords(defaultStopwords...)
	return b, nil
}

func (b *Builder) loadYAML(data []byte) error {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse location table: %w", err)
	}

	for _, p := range f.Provinces {
		province := models.LocationMapping{Province: p.Name}
		b.known[normalize(p.Name)] = struct{}{}
		provinceNames := append([]string{p.Name}, p.Aliases...)
		for _, n := range provinceNames {
			b.register(n, province)
		}

		for _, d := range p.Districts {
			district := models.LocationMapping{Province: p.Name, District: d.Name}
			b.known[normalize(d.Name)] = struct{}{}
			districtNames := append([]string{d.Name}, d.Aliases...)
			for _, dn := range districtNames {
				b.register(dn, district)
				for _, pn := range provinceNames {
					b.register(pn+" "+dn, district)
				}
			}
		}
	}
	return nil
}

// LoadFile merges a YAML table in the same format as the embedded one.
func (b *Builder) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read location table: %w", err)
	}
	return b.loadYAML(data)
}

// register adds a name from the built-in table. A name claimed by two different
// areas becomes ambiguous and resolves to nothing.
func (b *Builder) register(name string, m models.LocationMapping) {
	key := normalize(name)
	if key == "" {
		return
	}
	if _, amb := b.ambiguous[key]; amb {
		return
	}
	if existing, ok := b.table[key]; ok && existing != m {
		delete(b.table, key)
		b.ambiguous[key] = struct{}{}
		return
	}
	b.table[key] = m
}

// Add sets an explicit mapping, overriding the built-in table and any ambiguity.
func (b *Builder) Add(name string, m models.LocationMapping) {
	key := normalize(name)
	if key == "" || m.Province == "" {
		return
	}
	delete(b.ambiguous, key)
	b.table[key] = m
	if key == normalize(m.District) || key == normalize(m.Province) {
		b.known[key] = struct{}{}
	}
}

// AddStopwords extends the homonym stop-list used by AdminTokens.
func (b *Builder) AddStopwords(words ...string) {
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			b.stopwords[w] = struct{}{}
		}
	}
}

// Build freezes the collected mappings. The builder must not be used afterwards.
func (b *Builder) Build() *Resolver {
	return &Resolver{
		table:     b.table,
		known:     b.known,
		stopwords: b.stopwords,
	}
}

// Resolver is a read-only lookup table, safe for concurrent use.
type Resolver struct {
	table     map[string]models.LocationMapping
	known     map[string]struct{}
	stopwords map[string]struct{}
}

// NewResolver builds a resolver from the embedded table plus extra stop words.
func NewResolver(extraStopwords ...string) (*Resolver, error) {
	b, err := NewBuilder()
	if err != nil {
		return nil, err
	}
	b.AddStopwords(extraStopwords...)
	return b.Build(), nil
}

// Resolve looks up a place name, case-insensitively after trimming whitespace.
// A miss is not an error: callers fall back to matching the raw text against addresses.
func (r *Resolver) Resolve(name string) (models.LocationMapping, bool) {
	m, ok := r.table[normalize(name)]
	return m, ok
}

// Size is the number of resolvable names.
func (r *Resolver) Size() int {
	return len(r.table)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
