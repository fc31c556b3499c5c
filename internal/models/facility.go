// internal/models/facility.go
package models

// Facility is one recommendable place. Catalog facilities carry coordinates;
// web and cafe results carry a Link and zero coordinates.
type Facility struct {
	Name               string        `json:"name"`
	Lat                float64       `json:"lat"`
	Lng                float64       `json:"lng"`
	Category           string        `json:"category"`
	Description        string        `json:"description"`
	Address            string        `json:"address"`
	IndoorOutdoor      IndoorOutdoor `json:"indoorOutdoor"`
	SimilarityDistance float64       `json:"similarityDistance"`
	Note               string        `json:"note,omitempty"`
	Link               string        `json:"link,omitempty"`
	Province           string        `json:"province,omitempty"`
	District           string        `json:"district,omitempty"`
	AgeMin             *int          `json:"ageMin,omitempty"`
	AgeMax             *int          `json:"ageMax,omitempty"`
}

// HasCoordinates reports whether the facility can be placed on a map.
func (f Facility) HasCoordinates() bool {
	return f.Lat != 0 || f.Lng != 0
}

// CopyFacilities returns a copy of the slice so stored results are never aliased.
func CopyFacilities(in []Facility) []Facility {
	if in == nil {
		return nil
	}
	out := make([]Facility, len(in))
	copy(out, in)
	return out
}

// Names returns facility names in order.
func Names(fs []Facility) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Name)
	}
	return out
}
