// Package filter narrows retrieval candidates down to the facilities shown to the user.
package filter

import (
	"sort"
	"strings"

	"outing-workers/internal/models"
	"outing-workers/internal/retrieval"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
}

// Locator resolves place names and extracts administrative tokens from a query.
type Locator interface {
	Resolve(name string) (models.LocationMapping, bool)
	AdminTokens(query string) []string
}

type Options struct {
	SimilarityThreshold   float64
	DefaultLat            float64
	DefaultLng            float64
	ZeroOnMalformedCoords bool
}

type Pipeline struct {
	opts    Options
	locator Locator
	logger  Logger
}

func NewPipeline(opts Options, locator Locator, log Logger) *Pipeline {
	return &Pipeline{opts: opts, locator: locator, logger: log}
}

// stage is one predicate of the pipeline. keep returns false to drop the facility.
type stage struct {
	name string
	keep func(models.Facility) bool
}

// Filter converts candidates and applies, in order: dedup, similarity threshold,
// location containment, admin tokens, indoor/outdoor, child age. The result is
// truncated to sf.Limit().
func (p *Pipeline) Filter(candidates []retrieval.Candidate, sf models.SearchFilter, shown map[string]struct{}) []models.Facility {
	stages := p.stages(sf, shown)

	out := make([]models.Facility, 0, sf.Limit())
	for _, c := range candidates {
		f := p.ToFacility(c)
		if p.passes(f, stages) {
			out = append(out, f)
		}
	}

	if len(out) > sf.Limit() {
		out = out[:sf.Limit()]
	}
	return out
}

func (p *Pipeline) passes(f models.Facility, stages []stage) bool {
	for _, s := range stages {
		if !s.keep(f) {
			p.logger.Debug("candidate dropped", map[string]interface{}{
				"stage":    s.name,
				"name":     f.Name,
				"distance": f.SimilarityDistance,
			})
			return false
		}
	}
	return true
}

func (p *Pipeline) stages(sf models.SearchFilter, shown map[string]struct{}) []stage {
	excluded := make(map[string]struct{}, len(shown)+len(sf.ExcludedNames))
	for n := range shown {
		excluded[n] = struct{}{}
	}
	for _, n := range sf.ExcludedNames {
		excluded[n] = struct{}{}
	}

	stages := []stage{
		{"dedup", func(f models.Facility) bool {
			_, seen := excluded[f.Name]
			return !seen
		}},
		{"threshold", func(f models.Facility) bool {
			return f.SimilarityDistance <= p.opts.SimilarityThreshold
		}},
	}

	if loc := strings.TrimSpace(sf.Location); loc != "" {
		if m, ok := p.locator.Resolve(loc); ok {
			stages = append(stages, stage{"location", matchMapping(m)})
		} else {
			stages = append(stages, stage{"location", func(f models.Facility) bool {
				return strings.Contains(f.Address, loc)
			}})
		}
	}

	if tokens := p.locator.AdminTokens(sf.QueryText); len(tokens) > 0 {
		matchers := make([]func(models.Facility) bool, 0, len(tokens))
		for _, t := range tokens {
			matchers = append(matchers, p.tokenMatcher(t))
		}
		stages = append(stages, stage{"admin_tokens", func(f models.Facility) bool {
			for _, match := range matchers {
				if !match(f) {
					return false
				}
			}
			return true
		}})
	}

	if want := sf.IndoorOutdoor; want == models.Indoor || want == models.Outdoor {
		stages = append(stages, stage{"indoor_outdoor", func(f models.Facility) bool {
			return f.IndoorOutdoor == want
		}})
	}

	if sf.ChildAge != nil {
		age := *sf.ChildAge
		stages = append(stages, stage{"child_age", func(f models.Facility) bool {
			if f.AgeMin != nil && age < *f.AgeMin {
				return false
			}
			if f.AgeMax != nil && age > *f.AgeMax {
				return false
			}
			return true
		}})
	}

	return stages
}

// tokenMatcher matches a known place name (e.g. 서울시) through its mapping and any
// other token as an address substring.
func (p *Pipeline) tokenMatcher(token string) func(models.Facility) bool {
	if m, ok := p.locator.Resolve(token); ok {
		return matchMapping(m)
	}
	return func(f models.Facility) bool {
		return strings.Contains(f.Address, token)
	}
}

// matchMapping requires exact province (and district, when mapped). Facilities without
// province metadata are matched on the address instead.
func matchMapping(m models.LocationMapping) func(models.Facility) bool {
	return func(f models.Facility) bool {
		if f.Province == "" {
			needle := m.District
			if needle == "" {
				needle = m.Province
			}
			return strings.Contains(f.Address, needle)
		}
		if f.Province != m.Province {
			return false
		}
		return m.District == "" || f.District == m.District
	}
}

// Predicate derives the index-side constraints for sf. Location is pushed down only
// when it resolves.
func (p *Pipeline) Predicate(sf models.SearchFilter, shown map[string]struct{}) retrieval.Predicate {
	pred := retrieval.Predicate{InOut: sf.IndoorOutdoor}
	if loc := strings.TrimSpace(sf.Location); loc != "" {
		if m, ok := p.locator.Resolve(loc); ok {
			pred.Province = m.Province
			pred.District = m.District
		}
	}

	names := make([]string, 0, len(shown)+len(sf.ExcludedNames))
	for n := range shown {
		names = append(names, n)
	}
	sort.Strings(names)
	names = append(names, sf.ExcludedNames...)
	if len(names) > 0 {
		pred.ExcludedNames = names
	}
	return pred
}
