// Package mapview decides how the last results of a conversation can be shown on a map.
package mapview

import (
	"strconv"
	"strings"

	"outing-workers/internal/geocode"
	"outing-workers/internal/models"
)

// Action tells the caller what to do with a map request.
type Action string

const (
	// RenderStored renders the stored catalog coordinates.
	RenderStored Action = "render_stored"
	// RequireGeocode means the results have no coordinates; resolve a place text instead.
	RequireGeocode Action = "resolve_place_to_map"
	// RequireSearch means there is nothing to show; search first.
	RequireSearch Action = "search_first"
)

const DefaultIndices = "0,1,2"

const (
	MsgNoResults      = "지도에 표시할 최근 검색 결과가 없습니다. 먼저 시설을 검색해 주세요."
	MsgNeedsGeocode   = "웹 검색 결과는 좌표가 없어 바로 지도에 표시할 수 없습니다. 장소 이름으로 위치를 찾아 주세요."
	MsgNoCoordinates  = "선택한 시설의 좌표 정보가 없습니다. 주소 검색을 이용해 주세요."
	MsgNoConversation = "대화 ID가 없습니다."
)

// Decide maps the provenance of the last results to a map action.
func Decide(source models.Source) Action {
	switch source {
	case models.SourceRAG:
		return RenderStored
	case models.SourceWeb, models.SourceCafe:
		return RequireGeocode
	}
	return RequireSearch
}

type MapResult struct {
	Success         bool               `json:"success"`
	Facilities      []models.MapMarker `json:"facilities"`
	Message         string             `json:"message,omitempty"`
	Action          Action             `json:"action"`
	Center          *models.LatLng     `json:"center,omitempty"`
	MapLink         string             `json:"mapLink,omitempty"`
	SelectedIndices []int              `json:"selectedIndices"`
}

type Store interface {
	Last(id string) ([]models.Facility, models.Source)
	SetStatus(id, text string)
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
}

type Renderer struct {
	store  Store
	logger Logger
}

func NewRenderer(store Store, log Logger) *Renderer {
	return &Renderer{store: store, logger: log}
}

// RenderLastResults builds markers for the selected indices of the last results.
// Out-of-range indices are skipped and facilities at (0,0) are dropped.
func (r *Renderer) RenderLastResults(conversationID, indices string) MapResult {
	if strings.TrimSpace(conversationID) == "" {
		return MapResult{Action: RequireSearch, Message: MsgNoConversation, Facilities: []models.MapMarker{}}
	}
	r.store.SetStatus(conversationID, models.StatusBuildingMap)

	results, source := r.store.Last(conversationID)
	selected := ParseIndices(indices)
	res := MapResult{
		Action:          Decide(source),
		Facilities:      []models.MapMarker{},
		SelectedIndices: selected,
	}

	switch res.Action {
	case RequireGeocode:
		res.Message = MsgNeedsGeocode
		return res
	case RequireSearch:
		res.Message = MsgNoResults
		return res
	}

	for _, idx := range selected {
		if idx >= len(results) {
			continue
		}
		f := results[idx]
		if !f.HasCoordinates() {
			continue
		}
		res.Facilities = append(res.Facilities, models.MapMarker{
			Name: f.Name,
			Lat:  f.Lat,
			Lng:  f.Lng,
			Desc: markerDesc(f),
		})
	}

	if len(res.Facilities) == 0 {
		res.Message = MsgNoCoordinates
		return res
	}

	res.Success = true
	res.Center = center(res.Facilities)
	first := res.Facilities[0]
	res.MapLink = geocode.DirectionsLink(first.Name, first.Lat, first.Lng)

	r.logger.Info("map rendered", map[string]interface{}{
		"conversationId": conversationID,
		"markers":        len(res.Facilities),
	})
	return res
}

// ParseIndices reads a comma-separated index list. Tokens that are not
// non-negative integers are ignored, repeats are dropped, and an empty
// result falls back to DefaultIndices.
func ParseIndices(s string) []int {
	var out []int
	seen := make(map[int]struct{})
	for _, tok := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || n < 0 {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 && s != DefaultIndices {
		return ParseIndices(DefaultIndices)
	}
	return out
}

func markerDesc(f models.Facility) string {
	switch {
	case f.Description != "":
		return f.Description
	case f.Address != "":
		return f.Address
	}
	return f.Category
}

func center(markers []models.MapMarker) *models.LatLng {
	var lat, lng float64
	for _, m := range markers {
		lat += m.Lat
		lng += m.Lng
	}
	n := float64(len(markers))
	return &models.LatLng{Lat: lat / n, Lng: lng / n}
}
