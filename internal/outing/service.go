// Package outing composes retrieval, fallback, conversation state and map
// resolution into the operations exposed to the workflow engine.
package outing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "outing-workers/internal/common/errors"
	"outing-workers/internal/common/metrics"
	"outing-workers/internal/fallback"
	"outing-workers/internal/geocode"
	"outing-workers/internal/mapview"
	"outing-workers/internal/models"
	"outing-workers/internal/retrieval"
)

const (
	MsgIndexUnavailable = "지금은 시설 정보를 불러올 수 없습니다. 잠시 후 다시 시도해 주세요."
	MsgNoMatches        = "조건에 맞는 새로운 시설을 찾지 못했습니다."
	MsgEmptyQuery       = "검색어가 비어 있습니다."
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Searcher interface {
	SearchWithFallback(ctx context.Context, sf models.SearchFilter, conversationID string) (fallback.FallbackResult, error)
}

type Store interface {
	RecordResults(id string, facilities []models.Facility, source models.Source)
	SetStatus(id, text string)
	Status(id string) (string, bool)
	Teardown(id string) bool
}

type MapRenderer interface {
	RenderLastResults(conversationID, indices string) mapview.MapResult
}

type PlaceResolver interface {
	Resolve(ctx context.Context, text string) geocode.PlaceResult
}

type ToolRecorder interface {
	RecordTool(ctx context.Context, conversationID, tool string, started time.Time, err error)
}

type Deps struct {
	Searcher Searcher
	Store    Store
	Maps     MapRenderer
	Places   PlaceResolver
	Recorder ToolRecorder
}

type Service struct {
	deps          Deps
	defaultResult int
	logger        Logger
}

func NewService(deps Deps, defaultResultCount int, log Logger) *Service {
	if defaultResultCount <= 0 {
		defaultResultCount = models.DefaultResultCount
	}
	return &Service{deps: deps, defaultResult: defaultResultCount, logger: log}
}

type SearchRequest struct {
	QueryText      string
	ConversationID string
	Location       string
	IndoorOutdoor  models.IndoorOutdoor
	ResultCount    int
	ChildAge       *int
	ExcludedNames  []string
}

type SearchResponse struct {
	SearchID   string            `json:"searchId"`
	Success    bool              `json:"success"`
	Count      int               `json:"count"`
	Facilities []models.Facility `json:"facilities"`
	Source     models.Source     `json:"source"`
	Outcome    retrieval.Outcome `json:"outcome"`
	Relaxed    bool              `json:"relaxed"`
	Message    string            `json:"message,omitempty"`
}

// SearchFacilities runs one search turn and records its results in the conversation.
// The returned error is set only when the index was unreachable; the response is
// still filled in so the caller can apologize.
func (s *Service) SearchFacilities(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return SearchResponse{}, apperrors.NewConversationIDMissingError()
	}

	started := time.Now()
	s.deps.Store.SetStatus(req.ConversationID, models.StatusAnalyzing)

	count := req.ResultCount
	if count <= 0 {
		count = s.defaultResult
	}
	sf := models.SearchFilter{
		QueryText:     strings.TrimSpace(req.QueryText),
		Location:      strings.TrimSpace(req.Location),
		IndoorOutdoor: req.IndoorOutdoor,
		ResultCount:   count,
		ExcludedNames: req.ExcludedNames,
		ChildAge:      req.ChildAge,
	}

	resp := SearchResponse{SearchID: uuid.NewString(), Facilities: []models.Facility{}}

	res, err := s.deps.Searcher.SearchWithFallback(ctx, sf, req.ConversationID)
	s.record(ctx, req.ConversationID, "search_facilities", started, err)

	resp.Source = res.Source
	resp.Outcome = res.Outcome
	resp.Relaxed = res.Relaxed

	switch {
	case err != nil:
		metrics.SearchFailures.WithLabelValues(string(retrieval.OutcomeConnectionError)).Inc()
		s.logger.Error("facility search failed", map[string]interface{}{
			"conversationId": req.ConversationID,
			"searchId":       resp.SearchID,
			"errorCode":      string(apperrors.CodeOf(err)),
			"error":          err.Error(),
		})
		resp.Source = models.SourceNone
		resp.Outcome = retrieval.OutcomeConnectionError
		resp.Message = MsgIndexUnavailable
		return resp, err

	case res.Outcome == retrieval.OutcomeMalformedInput:
		metrics.SearchFailures.WithLabelValues(string(retrieval.OutcomeMalformedInput)).Inc()
		resp.Message = MsgEmptyQuery
		return resp, nil
	}

	resp.Success = true
	resp.Facilities = models.CopyFacilities(res.Facilities)
	if resp.Facilities == nil {
		resp.Facilities = []models.Facility{}
	}
	resp.Count = len(resp.Facilities)
	metrics.SearchTotal.WithLabelValues(string(res.Source)).Inc()

	if resp.Count == 0 {
		resp.Message = MsgNoMatches
	} else {
		s.deps.Store.RecordResults(req.ConversationID, res.Facilities, res.Source)
	}

	s.logger.Info("facility search answered", map[string]interface{}{
		"conversationId": req.ConversationID,
		"searchId":       resp.SearchID,
		"source":         string(resp.Source),
		"count":          resp.Count,
		"relaxed":        resp.Relaxed,
	})
	return resp, nil
}

// RenderMapForLastResults renders the selected stored results, or tells the
// caller which step must come first.
func (s *Service) RenderMapForLastResults(ctx context.Context, conversationID, indices string) mapview.MapResult {
	started := time.Now()
	if strings.TrimSpace(indices) == "" {
		indices = mapview.DefaultIndices
	}
	res := s.deps.Maps.RenderLastResults(conversationID, indices)
	s.record(ctx, conversationID, "show_map", started, nil)
	return res
}

// ResolvePlaceToMap geocodes a place text. conversationID is optional and only
// used for progress and timing.
func (s *Service) ResolvePlaceToMap(ctx context.Context, conversationID, placeText string) geocode.PlaceResult {
	started := time.Now()
	if conversationID != "" {
		s.deps.Store.SetStatus(conversationID, models.StatusGeocoding)
	}
	res := s.deps.Places.Resolve(ctx, placeText)
	s.record(ctx, conversationID, "search_map_by_address", started, nil)
	return res
}

// UpdateStatus sets the status when text is non-empty and returns the current status.
func (s *Service) UpdateStatus(conversationID, text string) (string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return "", apperrors.NewConversationIDMissingError()
	}
	if text != "" {
		s.deps.Store.SetStatus(conversationID, text)
	}
	status, _ := s.deps.Store.Status(conversationID)
	return status, nil
}

func (s *Service) ClearConversation(conversationID string) (bool, error) {
	if strings.TrimSpace(conversationID) == "" {
		return false, apperrors.NewConversationIDMissingError()
	}
	return s.deps.Store.Teardown(conversationID), nil
}

func (s *Service) record(ctx context.Context, conversationID, tool string, started time.Time, err error) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordTool(ctx, conversationID, tool, started, err)
	}
}
