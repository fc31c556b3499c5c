// internal/models/search.go
package models

import "strings"

const DefaultResultCount = 3

// SearchFilter is the structured form of one search request.
type SearchFilter struct {
	QueryText     string
	Location      string
	IndoorOutdoor IndoorOutdoor
	ResultCount   int
	ExcludedNames []string
	ChildAge      *int
}

// Limit returns ResultCount, or the default when unset.
func (sf SearchFilter) Limit() int {
	if sf.ResultCount <= 0 {
		return DefaultResultCount
	}
	return sf.ResultCount
}

// FallbackQuery is the text sent to secondary providers: the query plus the location, if any.
func (sf SearchFilter) FallbackQuery() string {
	q := strings.TrimSpace(sf.QueryText)
	if loc := strings.TrimSpace(sf.Location); loc != "" {
		q += " " + loc
	}
	return q
}

// LocationMapping is a canonical administrative area. District may be empty.
type LocationMapping struct {
	Province string `json:"province" yaml:"province"`
	District string `json:"district,omitempty" yaml:"district,omitempty"`
}

// MapMarker is the compact facility shape returned for map rendering.
type MapMarker struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Desc string  `json:"desc"`
}

// LatLng is a map center.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
