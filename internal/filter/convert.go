package filter

import (
	"fmt"
	"strconv"
	"strings"

	"outing-workers/internal/models"
	"outing-workers/internal/retrieval"
)

const (
	maxDescriptionRunes = 100
	defaultCategory     = "시설"
)

// ToFacility coerces untyped index metadata into a Facility. It never fails:
// missing or malformed values fall back to documented defaults.
func (p *Pipeline) ToFacility(c retrieval.Candidate) models.Facility {
	md := c.Metadata

	lat, latOK := floatField(md, retrieval.FieldLat)
	lng, lngOK := floatField(md, retrieval.FieldLon)
	if !latOK || !lngOK {
		if p.opts.ZeroOnMalformedCoords {
			lat, lng = 0, 0
		} else {
			lat, lng = p.opts.DefaultLat, p.opts.DefaultLng
		}
	}

	address := stringField(md, retrieval.FieldAddress)
	cat1 := stringField(md, retrieval.FieldCategory1)
	cat3 := stringField(md, retrieval.FieldCategory3)

	doc := c.Document
	if doc == "" {
		doc = stringField(md, retrieval.FieldDocument)
	}

	return models.Facility{
		Name:               stringField(md, retrieval.FieldName),
		Lat:                lat,
		Lng:                lng,
		Category:           category(cat1, cat3),
		Description:        description(doc, address, cat1, cat3),
		Address:            address,
		IndoorOutdoor:      models.ParseIndoorOutdoor(stringField(md, retrieval.FieldInOut)),
		SimilarityDistance: c.Distance,
		Note:               stringField(md, retrieval.FieldNote),
		Province:           stringField(md, retrieval.FieldProvince),
		District:           stringField(md, retrieval.FieldDistrict),
		AgeMin:             intField(md, retrieval.FieldAgeMin),
		AgeMax:             intField(md, retrieval.FieldAgeMax),
	}
}

func category(cat1, cat3 string) string {
	switch {
	case cat3 != "":
		return cat3
	case cat1 != "":
		return cat1
	}
	return defaultCategory
}

func description(doc, address, cat1, cat3 string) string {
	switch {
	case strings.TrimSpace(doc) != "":
		return truncateRunes(strings.TrimSpace(doc), maxDescriptionRunes)
	case address != "":
		return truncateRunes(address, maxDescriptionRunes)
	}
	return fmt.Sprintf("%s - %s", cat1, cat3)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func stringField(md map[string]interface{}, key string) string {
	switch v := md[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func floatField(md map[string]interface{}, key string) (float64, bool) {
	switch v := md[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func intField(md map[string]interface{}, key string) *int {
	f, ok := floatField(md, key)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}
