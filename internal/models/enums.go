// internal/models/enums.go
package models

import "strings"

type IndoorOutdoor string

const (
	Indoor             IndoorOutdoor = "INDOOR"
	Outdoor            IndoorOutdoor = "OUTDOOR"
	IndoorOutdoorUnset IndoorOutdoor = "UNKNOWN"
)

// ParseIndoorOutdoor normalizes the Korean and English spellings seen in requests and catalog metadata.
func ParseIndoorOutdoor(s string) IndoorOutdoor {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "실내", "indoor", "inside", "in":
		return Indoor
	case "실외", "야외", "outdoor", "outside", "out":
		return Outdoor
	}
	return IndoorOutdoorUnset
}

// Korean returns the catalog spelling used in the index metadata.
func (io IndoorOutdoor) Korean() string {
	switch io {
	case Indoor:
		return "실내"
	case Outdoor:
		return "실외"
	}
	return ""
}

// Source tags where the last shown results came from.
type Source string

const (
	SourceRAG  Source = "RAG"
	SourceWeb  Source = "WEB"
	SourceCafe Source = "CAFE"
	SourceNone Source = "NONE"
)

func ParseSource(s string) Source {
	switch Source(strings.ToUpper(strings.TrimSpace(s))) {
	case SourceRAG:
		return SourceRAG
	case SourceWeb:
		return SourceWeb
	case SourceCafe:
		return SourceCafe
	}
	return SourceNone
}
