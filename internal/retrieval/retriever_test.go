package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"outing-workers/internal/common/logger"
	"outing-workers/internal/models"
)

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

// fakeES answers _search requests from a queue of canned responses and records request bodies.
type fakeES struct {
	mu        sync.Mutex
	bodies    []map[string]interface{}
	responses []string
	status    int
}

func (f *fakeES) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	raw, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(raw, &body)
	f.bodies = append(f.bodies, body)

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"type":"search_phase_execution_exception"}}`))
		return
	}

	resp := `{"hits":{"hits":[]}}`
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	_, _ = w.Write([]byte(resp))
}

func newTestRetriever(t *testing.T, fake *fakeES) *Retriever {
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewRetriever(client, "kid_program_facilities", createTestLogger(t))
}

const twoHits = `{"hits":{"hits":[
	{"_id":"b","_score":0.5,"_source":{"Name":"B","document":"doc b","CTPRVN_NM":"서울특별시"}},
	{"_id":"a","_score":0.8,"_source":{"Name":"A","document":"doc a","CTPRVN_NM":"서울특별시"}}
]}}`

// ==========================
// Retrieve
// ==========================

func TestRetrieve_ConvertsScoresAndOrders(t *testing.T) {
	fake := &fakeES{responses: []string{twoHits}}
	r := newTestRetriever(t, fake)

	cands, err := r.Retrieve(context.Background(), []float32{0.1, 0.2}, Predicate{Province: "서울특별시"}, 5)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, "A", cands[0].Metadata["Name"])
	assert.InDelta(t, 0.25, cands[0].Distance, 1e-9)
	assert.Equal(t, "doc a", cands[0].Document)
	assert.InDelta(t, 1.0, cands[1].Distance, 1e-9)
}

func TestRetrieve_PushesPredicateDown(t *testing.T) {
	fake := &fakeES{}
	r := newTestRetriever(t, fake)

	p := Predicate{
		Province:      "서울특별시",
		District:      "강남구",
		InOut:         models.Indoor,
		ExcludedNames: []string{"키즈카페 A"},
	}
	_, err := r.Retrieve(context.Background(), []float32{1}, p, 3)
	require.NoError(t, err)
	require.Len(t, fake.bodies, 1)

	knn := fake.bodies[0]["knn"].(map[string]interface{})
	assert.Equal(t, "embedding", knn["field"])
	assert.EqualValues(t, 3, knn["k"])
	assert.EqualValues(t, 100, knn["num_candidates"])

	boolQ := knn["filter"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, boolQ["filter"], 3)
	assert.Len(t, boolQ["must_not"], 1)

	encoded, _ := json.Marshal(boolQ)
	assert.Contains(t, string(encoded), "강남구")
	assert.Contains(t, string(encoded), "실내")
	assert.Contains(t, string(encoded), "키즈카페 A")
}

func TestRetrieve_NoPredicateOmitsFilter(t *testing.T) {
	fake := &fakeES{}
	r := newTestRetriever(t, fake)

	cands, err := r.Retrieve(context.Background(), []float32{1}, Predicate{}, 3)
	require.NoError(t, err)
	assert.Empty(t, cands)

	knn := fake.bodies[0]["knn"].(map[string]interface{})
	assert.NotContains(t, knn, "filter")
}

func TestRetrieve_IndexErrorIsUnavailable(t *testing.T) {
	fake := &fakeES{status: http.StatusInternalServerError}
	r := newTestRetriever(t, fake)

	_, err := r.Retrieve(context.Background(), []float32{1}, Predicate{}, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexUnavailable))

	var idxErr *IndexUnavailableError
	require.True(t, errors.As(err, &idxErr))
	assert.Equal(t, "search", idxErr.Op)
}

func TestRetrieve_EmptyEmbedding(t *testing.T) {
	r := newTestRetriever(t, &fakeES{})
	_, err := r.Retrieve(context.Background(), nil, Predicate{}, 3)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrIndexUnavailable))
}

// ==========================
// RetrieveWithRelaxation
// ==========================

func TestRetrieveWithRelaxation_RetriesWithoutLocation(t *testing.T) {
	fake := &fakeES{responses: []string{`{"hits":{"hits":[]}}`, twoHits}}
	r := newTestRetriever(t, fake)

	p := Predicate{Province: "부산광역시", InOut: models.Outdoor}
	res, err := r.RetrieveWithRelaxation(context.Background(), []float32{1}, p, 3)
	require.NoError(t, err)
	assert.True(t, res.Relaxed)
	assert.Len(t, res.Candidates, 2)

	require.Len(t, fake.bodies, 2)
	second, _ := json.Marshal(fake.bodies[1])
	assert.NotContains(t, string(second), "부산광역시")
	assert.Contains(t, string(second), "실외")
}

func TestRetrieveWithRelaxation_NoLocationNoRetry(t *testing.T) {
	fake := &fakeES{}
	r := newTestRetriever(t, fake)

	res, err := r.RetrieveWithRelaxation(context.Background(), []float32{1}, Predicate{InOut: models.Indoor}, 3)
	require.NoError(t, err)
	assert.False(t, res.Relaxed)
	assert.Empty(t, res.Candidates)
	assert.Len(t, fake.bodies, 1)
}

func TestRetrieveWithRelaxation_HitsFirstTime(t *testing.T) {
	fake := &fakeES{responses: []string{twoHits}}
	r := newTestRetriever(t, fake)

	res, err := r.RetrieveWithRelaxation(context.Background(), []float32{1}, Predicate{Province: "서울특별시"}, 3)
	require.NoError(t, err)
	assert.False(t, res.Relaxed)
	assert.Len(t, fake.bodies, 1)
}

func TestScoreToDistance(t *testing.T) {
	assert.Equal(t, 0.0, scoreToDistance(1))
	assert.InDelta(t, 3.0, scoreToDistance(0.25), 1e-9)
	assert.Equal(t, maxDistance, scoreToDistance(0))
}

// ==========================
// Index management
// ==========================

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	var created map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &created)
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	r := NewRetriever(client, "facilities", createTestLogger(t))

	ok, err := r.EnsureIndex(context.Background(), 256)
	require.NoError(t, err)
	assert.True(t, ok)

	props := created["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	emb := props["embedding"].(map[string]interface{})
	assert.Equal(t, "dense_vector", emb["type"])
	assert.Equal(t, "l2_norm", emb["similarity"])
	assert.EqualValues(t, 256, emb["dims"])
}

func TestIndexFacilities_CountsAccepted(t *testing.T) {
	var lines int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		raw, _ := io.ReadAll(r.Body)
		for _, b := range raw {
			if b == '\n' {
				lines++
			}
		}
		_, _ = w.Write([]byte(`{"errors":true,"items":[{"index":{"status":201}},{"index":{"status":400}}]}`))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	r := NewRetriever(client, "facilities", createTestLogger(t))

	n, err := r.IndexFacilities(context.Background(), []FacilityDocument{
		{Name: "A", Embedding: []float32{1}},
		{Name: "B", Embedding: []float32{2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, lines)
}
