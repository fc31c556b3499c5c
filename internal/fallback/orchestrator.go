// Package fallback runs the catalog search and escalates to live secondary
// providers when the catalog has nothing new to offer.
package fallback

import (
	"context"
	"strings"
	"time"

	apperrors "outing-workers/internal/common/errors"
	"outing-workers/internal/common/metrics"
	"outing-workers/internal/models"
	"outing-workers/internal/retrieval"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// SecondaryProvider is a live text search whose records carry no coordinates.
type SecondaryProvider interface {
	Source() models.Source
	Search(ctx context.Context, query string) ([]models.Facility, error)
}

// Enricher is implemented by providers that can improve the records they returned.
// It runs on the deduplicated records only.
type Enricher interface {
	Enrich(ctx context.Context, facilities []models.Facility)
}

type Retriever interface {
	RetrieveWithRelaxation(ctx context.Context, embedding []float32, p retrieval.Predicate, limit int) (retrieval.RetrievalResult, error)
}

type Pipeline interface {
	Filter(candidates []retrieval.Candidate, sf models.SearchFilter, shown map[string]struct{}) []models.Facility
	Predicate(sf models.SearchFilter, shown map[string]struct{}) retrieval.Predicate
}

// State is the slice of the conversation store the orchestrator reads and annotates.
type State interface {
	ShownNames(id string) map[string]struct{}
	SetStatus(id, text string)
}

// ToolRecorder records how long each tool call took.
type ToolRecorder interface {
	RecordTool(ctx context.Context, conversationID, tool string, started time.Time, err error)
}

type Options struct {
	Enabled        bool
	CandidateCount int
}

type FallbackResult struct {
	Facilities []models.Facility
	Source     models.Source
	Outcome    retrieval.Outcome
	Relaxed    bool
}

type Orchestrator struct {
	opts      Options
	embedder  retrieval.Embedder
	retriever Retriever
	pipeline  Pipeline
	state     State
	providers []SecondaryProvider
	recorder  ToolRecorder
	logger    Logger
}

func NewOrchestrator(opts Options, embedder retrieval.Embedder, retriever Retriever, pipeline Pipeline, state State, providers []SecondaryProvider, log Logger) *Orchestrator {
	return &Orchestrator{
		opts:      opts,
		embedder:  embedder,
		retriever: retriever,
		pipeline:  pipeline,
		state:     state,
		providers: providers,
		logger:    log,
	}
}

// WithRecorder attaches a tool timing recorder.
func (o *Orchestrator) WithRecorder(r ToolRecorder) *Orchestrator {
	o.recorder = r
	return o
}

// SearchWithFallback returns the catalog results when the pipeline keeps any,
// otherwise the first secondary provider that returns a record not yet shown.
// A non-nil error is only returned together with OutcomeConnectionError.
func (o *Orchestrator) SearchWithFallback(ctx context.Context, sf models.SearchFilter, conversationID string) (FallbackResult, error) {
	if strings.TrimSpace(sf.QueryText) == "" {
		return FallbackResult{Source: models.SourceNone, Outcome: retrieval.OutcomeMalformedInput}, nil
	}

	shown := o.state.ShownNames(conversationID)

	facilities, relaxed, err := o.searchCatalog(ctx, sf, shown, conversationID)
	if err != nil {
		return FallbackResult{Source: models.SourceNone, Outcome: retrieval.OutcomeConnectionError}, err
	}
	if len(facilities) > 0 {
		return FallbackResult{Facilities: facilities, Source: models.SourceRAG, Outcome: retrieval.OutcomeSuccess, Relaxed: relaxed}, nil
	}

	if !o.opts.Enabled {
		return FallbackResult{Source: models.SourceNone, Outcome: retrieval.OutcomeZeroResult, Relaxed: relaxed}, nil
	}

	for _, p := range o.providers {
		found := o.searchProvider(ctx, p, sf, shown, conversationID)
		if len(found) > 0 {
			return FallbackResult{Facilities: found, Source: p.Source(), Outcome: retrieval.OutcomeSuccess, Relaxed: relaxed}, nil
		}
	}

	return FallbackResult{Source: models.SourceNone, Outcome: retrieval.OutcomeZeroResult, Relaxed: relaxed}, nil
}

func (o *Orchestrator) searchCatalog(ctx context.Context, sf models.SearchFilter, shown map[string]struct{}, conversationID string) ([]models.Facility, bool, error) {
	started := time.Now()

	embedding, err := o.embedder.Embed(ctx, sf.QueryText)
	if err != nil {
		o.record(ctx, conversationID, "embed", started, err)
		return nil, false, apperrors.NewEmbeddingFailedError(err)
	}

	limit := sf.Limit()
	if o.opts.CandidateCount > limit {
		limit = o.opts.CandidateCount
	}

	res, err := o.retriever.RetrieveWithRelaxation(ctx, embedding, o.pipeline.Predicate(sf, shown), limit)
	o.record(ctx, conversationID, "rag_search", started, err)
	if err != nil {
		if apperrors.IsTimeout(err) {
			return nil, false, apperrors.NewSearchTimeoutError(err)
		}
		return nil, false, apperrors.NewIndexUnavailableError(err)
	}

	facilities := o.pipeline.Filter(res.Candidates, sf, shown)
	o.logger.Debug("catalog search finished", map[string]interface{}{
		"conversationId": conversationID,
		"candidates":     len(res.Candidates),
		"kept":           len(facilities),
		"relaxed":        res.Relaxed,
	})
	return facilities, res.Relaxed, nil
}

func (o *Orchestrator) searchProvider(ctx context.Context, p SecondaryProvider, sf models.SearchFilter, shown map[string]struct{}, conversationID string) []models.Facility {
	source := p.Source()
	label := strings.ToLower(string(source))
	o.state.SetStatus(conversationID, models.StatusFor(source))

	started := time.Now()
	found, err := p.Search(ctx, sf.FallbackQuery())
	o.record(ctx, conversationID, label+"_search", started, err)
	if err != nil {
		// a failing provider counts as empty; the next one is tried
		o.logger.Warn("secondary provider failed", map[string]interface{}{
			"provider":       label,
			"conversationId": conversationID,
			"errorCode":      string(apperrors.CodeOf(err)),
			"error":          err.Error(),
		})
		metrics.FallbackTotal.WithLabelValues(label, "error").Inc()
		return nil
	}

	out := dedup(found, shown, sf.ExcludedNames, sf.Limit())
	if len(out) == 0 {
		metrics.FallbackTotal.WithLabelValues(label, "empty").Inc()
		return nil
	}

	if e, ok := p.(Enricher); ok {
		e.Enrich(ctx, out)
	}

	metrics.FallbackTotal.WithLabelValues(label, "hit").Inc()
	o.logger.Info("secondary provider answered", map[string]interface{}{
		"provider":       label,
		"conversationId": conversationID,
		"count":          len(out),
	})
	return out
}

// dedup drops shown, excluded and repeated names, zeroes coordinates and caps the result.
func dedup(found []models.Facility, shown map[string]struct{}, excluded []string, limit int) []models.Facility {
	skip := make(map[string]struct{}, len(shown)+len(excluded))
	for n := range shown {
		skip[n] = struct{}{}
	}
	for _, n := range excluded {
		skip[n] = struct{}{}
	}

	out := make([]models.Facility, 0, limit)
	for _, f := range found {
		if _, ok := skip[f.Name]; ok {
			continue
		}
		skip[f.Name] = struct{}{}
		f.Lat, f.Lng = 0, 0
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (o *Orchestrator) record(ctx context.Context, conversationID, tool string, started time.Time, err error) {
	if o.recorder != nil {
		o.recorder.RecordTool(ctx, conversationID, tool, started, err)
	}
}

// BuildProviders orders the available providers by configured name ("web", "cafe").
// Unknown or unavailable names are skipped.
func BuildProviders(names []string, available map[string]SecondaryProvider) []SecondaryProvider {
	out := make([]SecondaryProvider, 0, len(names))
	for _, n := range names {
		if p, ok := available[strings.ToLower(strings.TrimSpace(n))]; ok && p != nil {
			out = append(out, p)
		}
	}
	return out
}
