package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "outing-workers/internal/common/errors"
	"outing-workers/internal/common/logger"
	"outing-workers/internal/conversation"
	"outing-workers/internal/filter"
	"outing-workers/internal/location"
	"outing-workers/internal/models"
	"outing-workers/internal/retrieval"
)

// ==========================
// Stubs
// ==========================

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2}, nil
}

type stubRetriever struct {
	candidates []retrieval.Candidate
	err        error
	calls      int
	lastPred   retrieval.Predicate
}

func (s *stubRetriever) RetrieveWithRelaxation(_ context.Context, _ []float32, p retrieval.Predicate, _ int) (retrieval.RetrievalResult, error) {
	s.calls++
	s.lastPred = p
	if s.err != nil {
		return retrieval.RetrievalResult{}, s.err
	}
	return retrieval.RetrievalResult{Candidates: s.candidates}, nil
}

type stubProvider struct {
	source models.Source
	found  []models.Facility
	err    error
	calls  int
}

func (s *stubProvider) Source() models.Source { return s.source }

func (s *stubProvider) Search(context.Context, string) ([]models.Facility, error) {
	s.calls++
	return s.found, s.err
}

// enrichingProvider records which names it was asked to enrich.
type enrichingProvider struct {
	stubProvider
	enriched []string
}

func (e *enrichingProvider) Enrich(_ context.Context, fs []models.Facility) {
	for i := range fs {
		e.enriched = append(e.enriched, fs[i].Name)
		fs[i].Description = "본문"
	}
}

type recordedTool struct {
	tool string
	err  error
}

type stubRecorder struct{ tools []recordedTool }

func (r *stubRecorder) RecordTool(_ context.Context, _ string, tool string, _ time.Time, err error) {
	r.tools = append(r.tools, recordedTool{tool, err})
}

func candidate(name string, dist float64) retrieval.Candidate {
	return retrieval.Candidate{
		Metadata: map[string]interface{}{"Name": name, "Address": "부산 해운대구", "LAT": "35.1", "LON": "129.1"},
		Distance: dist,
	}
}

func webResults(names ...string) []models.Facility {
	out := make([]models.Facility, 0, len(names))
	for _, n := range names {
		out = append(out, models.Facility{Name: n, Link: "https://e.example/" + n, Lat: 1, Lng: 1})
	}
	return out
}

type fixture struct {
	orch  *Orchestrator
	store *conversation.Store
	ret   *stubRetriever
	web   *stubProvider
	cafe  *stubProvider
	tools *stubRecorder
}

func newFixture(t *testing.T, enabled bool) *fixture {
	t.Helper()
	log := logger.NewZapAdapter(zaptest.NewLogger(t))

	resolver, err := location.NewResolver()
	require.NoError(t, err)
	pipeline := filter.NewPipeline(filter.Options{SimilarityThreshold: 1.3}, resolver, log)

	f := &fixture{
		store: conversation.NewStore(conversation.Options{}),
		ret:   &stubRetriever{},
		web:   &stubProvider{source: models.SourceWeb},
		cafe:  &stubProvider{source: models.SourceCafe},
		tools: &stubRecorder{},
	}
	providers := BuildProviders([]string{"web", "cafe"}, map[string]SecondaryProvider{"web": f.web, "cafe": f.cafe})
	f.orch = NewOrchestrator(Options{Enabled: enabled, CandidateCount: 5}, stubEmbedder{}, f.ret, pipeline, f.store, providers, log).
		WithRecorder(f.tools)
	return f
}

// ==========================
// Primary path
// ==========================

func TestSearchWithFallback_CatalogHit(t *testing.T) {
	f := newFixture(t, true)
	f.ret.candidates = []retrieval.Candidate{candidate("A", 0.2), candidate("far", 2.0)}

	res, err := f.orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "키즈카페"}, "c1")
	require.NoError(t, err)

	assert.Equal(t, models.SourceRAG, res.Source)
	assert.Equal(t, retrieval.OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"A"}, models.Names(res.Facilities))
	assert.Zero(t, f.web.calls)
	assert.Equal(t, "rag_search", f.tools.tools[0].tool)
}

func TestSearchWithFallback_PushesShownNamesDown(t *testing.T) {
	f := newFixture(t, true)
	f.store.RecordResults("c1", webResults("A"), models.SourceRAG)
	f.ret.candidates = []retrieval.Candidate{candidate("A", 0.1), candidate("B", 0.2)}

	res, err := f.orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "키즈카페"}, "c1")
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, models.Names(res.Facilities))
	assert.Equal(t, []string{"A"}, f.ret.lastPred.ExcludedNames)
}

// ==========================
// Fallback path
// ==========================

func TestSearchWithFallback_ZeroCatalogFallsBackToWeb(t *testing.T) {
	f := newFixture(t, true)
	f.web.found = webResults("행사 1", "행사 2")

	res, err := f.orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "아이랑 행사", Location: "부산"}, "c1")
	require.NoError(t, err)

	assert.Equal(t, models.SourceWeb, res.Source)
	require.Len(t, res.Facilities, 2)
	for _, fac := range res.Facilities {
		assert.False(t, fac.HasCoordinates())
	}
	assert.Zero(t, f.cafe.calls)

	status, ok := f.store.Status("c1")
	require.True(t, ok)
	assert.Equal(t, models.StatusWebSearch, status)
}

func TestSearchWithFallback_SameSourceOnRepeat(t *testing.T) {
	f := newFixture(t, true)
	f.web.found = webResults("행사 1")

	sf := models.SearchFilter{QueryText: "행사"}
	first, err := f.orch.SearchWithFallback(context.Background(), sf, "c1")
	require.NoError(t, err)
	second, err := f.orch.SearchWithFallback(context.Background(), sf, "c1")
	require.NoError(t, err)

	assert.Equal(t, first.Source, second.Source)
}

func TestSearchWithFallback_ProviderErrorMovesOn(t *testing.T) {
	f := newFixture(t, true)
	f.web.err = apperrors.NewWebSearchTimeoutError(context.DeadlineExceeded)
	f.cafe.found = webResults("후기")

	res, err := f.orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "행사"}, "c1")
	require.NoError(t, err)

	assert.Equal(t, models.SourceCafe, res.Source)
	assert.Equal(t, 1, f.web.calls)
	status, _ := f.store.Status("c1")
	assert.Equal(t, models.StatusCafeSearch, status)
}

func TestSearchWithFallback_ProviderResultsAlreadyShown(t *testing.T) {
	f := newFixture(t, true)
	f.store.RecordResults("c1", webResults("행사 1"), models.SourceWeb)
	f.web.found = webResults("행사 1")

	res, err := f.orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "행사"}, "c1")
	require.NoError(t, err)

	assert.Equal(t, models.SourceNone, res.Source)
	assert.Equal(t, retrieval.OutcomeZeroResult, res.Outcome)
	assert.Equal(t, 1, f.cafe.calls)
}

func TestSearchWithFallback_EnrichesOnlyUnshownRecords(t *testing.T) {
	log := logger.NewZapAdapter(zaptest.NewLogger(t))
	resolver, err := location.NewResolver()
	require.NoError(t, err)
	pipeline := filter.NewPipeline(filter.Options{SimilarityThreshold: 1.3}, resolver, log)
	store := conversation.NewStore(conversation.Options{})
	store.RecordResults("c1", webResults("후기 1", "후기 2"), models.SourceCafe)

	cafe := &enrichingProvider{stubProvider: stubProvider{source: models.SourceCafe}}
	cafe.found = webResults("후기 1", "후기 2", "후기 3", "후기 4")
	orch := NewOrchestrator(Options{Enabled: true}, stubEmbedder{}, &stubRetriever{}, pipeline, store, []SecondaryProvider{cafe}, log)

	res, err := orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "후기"}, "c1")
	require.NoError(t, err)

	assert.Equal(t, []string{"후기 3", "후기 4"}, cafe.enriched)
	require.Len(t, res.Facilities, 2)
	assert.Equal(t, "본문", res.Facilities[0].Description)
}

func TestSearchWithFallback_Disabled(t *testing.T) {
	f := newFixture(t, false)
	f.web.found = webResults("행사 1")

	res, err := f.orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "행사"}, "c1")
	require.NoError(t, err)

	assert.Equal(t, models.SourceNone, res.Source)
	assert.Equal(t, retrieval.OutcomeZeroResult, res.Outcome)
	assert.Zero(t, f.web.calls)
}

// ==========================
// Failures
// ==========================

func TestSearchWithFallback_IndexUnavailableNeverFallsBack(t *testing.T) {
	f := newFixture(t, true)
	f.ret.err = &retrieval.IndexUnavailableError{Op: "search", Err: errors.New("connection refused")}
	f.web.found = webResults("행사 1")

	res, err := f.orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "행사"}, "c1")
	require.Error(t, err)

	assert.Equal(t, retrieval.OutcomeConnectionError, res.Outcome)
	assert.Equal(t, apperrors.ErrCodeIndexUnavailable, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, retrieval.ErrIndexUnavailable)
	assert.Zero(t, f.web.calls)
}

func TestSearchWithFallback_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, true)
	f.orch.embedder = stubEmbedder{err: errors.New("503")}

	res, err := f.orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "행사"}, "c1")
	require.Error(t, err)
	assert.Equal(t, retrieval.OutcomeConnectionError, res.Outcome)
	assert.Equal(t, apperrors.ErrCodeEmbeddingFailed, apperrors.CodeOf(err))
	assert.Zero(t, f.ret.calls)
}

func TestSearchWithFallback_EmptyQuery(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.orch.SearchWithFallback(context.Background(), models.SearchFilter{QueryText: "  "}, "c1")
	require.NoError(t, err)
	assert.Equal(t, retrieval.OutcomeMalformedInput, res.Outcome)
	assert.Zero(t, f.ret.calls)
}

func TestBuildProviders(t *testing.T) {
	web := &stubProvider{source: models.SourceWeb}
	cafe := &stubProvider{source: models.SourceCafe}

	got := BuildProviders([]string{"cafe", "blog", " WEB "}, map[string]SecondaryProvider{"web": web, "cafe": cafe})
	require.Len(t, got, 2)
	assert.Equal(t, models.SourceCafe, got[0].Source())
	assert.Equal(t, models.SourceWeb, got[1].Source())
}
