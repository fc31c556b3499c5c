package retrieval

import (
	"encoding/json"
	"fmt"

	"outing-workers/internal/models"
)

// Index field names. They follow the facility catalog column names.
const (
	FieldEmbedding = "embedding"
	FieldDocument  = "document"
	FieldName      = "Name"
	FieldLat       = "LAT"
	FieldLon       = "LON"
	FieldAddress   = "Address"
	FieldCategory1 = "Category1"
	FieldCategory3 = "Category3"
	FieldNote      = "Note"
	FieldDistrict  = "SIGNGU_NM"
	FieldProvince  = "CTPRVN_NM"
	FieldInOut     = "in_out"
	FieldAgeMin    = "age_min"
	FieldAgeMax    = "age_max"
)

// Predicate is a conjunction of equality constraints pushed down to the index.
type Predicate struct {
	Province      string
	District      string
	InOut         models.IndoorOutdoor
	ExcludedNames []string
}

func (p Predicate) HasLocation() bool {
	return p.Province != "" || p.District != ""
}

// WithoutLocation drops the location constraint and keeps the others.
func (p Predicate) WithoutLocation() Predicate {
	p.Province = ""
	p.District = ""
	return p
}

var inOutSpellings = map[models.IndoorOutdoor][]string{
	models.Indoor:  {"실내", "indoor", "Indoor", "INDOOR", "inside", "in"},
	models.Outdoor: {"실외", "야외", "outdoor", "Outdoor", "OUTDOOR", "outside", "out"},
}

func (p Predicate) clauses() (filter, mustNot []interface{}) {
	if p.Province != "" {
		filter = append(filter, term(FieldProvince, p.Province))
	}
	if p.District != "" {
		filter = append(filter, term(FieldDistrict, p.District))
	}
	if spellings, ok := inOutSpellings[p.InOut]; ok {
		filter = append(filter, map[string]interface{}{
			"terms": map[string]interface{}{FieldInOut: spellings},
		})
	}
	if len(p.ExcludedNames) > 0 {
		mustNot = append(mustNot, map[string]interface{}{
			"terms": map[string]interface{}{FieldName: p.ExcludedNames},
		})
	}
	return filter, mustNot
}

func term(field, value string) map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{field: value}}
}

// buildKNNQuery builds an approximate kNN search restricted by the predicate.
func buildKNNQuery(embedding []float32, p Predicate, limit int) ([]byte, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}
	if limit <= 0 {
		limit = 1
	}

	numCandidates := limit * 10
	if numCandidates < 100 {
		numCandidates = 100
	}

	knn := map[string]interface{}{
		"field":          FieldEmbedding,
		"query_vector":   embedding,
		"k":              limit,
		"num_candidates": numCandidates,
	}

	filter, mustNot := p.clauses()
	if len(filter) > 0 || len(mustNot) > 0 {
		boolQuery := map[string]interface{}{}
		if len(filter) > 0 {
			boolQuery["filter"] = filter
		}
		if len(mustNot) > 0 {
			boolQuery["must_not"] = mustNot
		}
		knn["filter"] = map[string]interface{}{"bool": boolQuery}
	}

	return json.Marshal(map[string]interface{}{
		"knn":     knn,
		"size":    limit,
		"_source": map[string]interface{}{"excludes": []string{FieldEmbedding}},
	})
}

// indexMapping is the dense_vector mapping used by EnsureIndex.
func indexMapping(dims int) ([]byte, error) {
	keyword := map[string]interface{}{"type": "keyword"}
	return json.Marshal(map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				FieldEmbedding: map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "l2_norm",
				},
				FieldDocument:  map[string]interface{}{"type": "text"},
				FieldAddress:   map[string]interface{}{"type": "text", "fields": map[string]interface{}{"raw": keyword}},
				FieldName:      keyword,
				FieldProvince:  keyword,
				FieldDistrict:  keyword,
				FieldInOut:     keyword,
				FieldCategory1: keyword,
				FieldCategory3: keyword,
				// kept as strings; malformed values are coerced when read
				FieldLat:    keyword,
				FieldLon:    keyword,
				FieldAgeMin: keyword,
				FieldAgeMax: keyword,
			},
		},
	})
}
