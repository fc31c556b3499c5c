// Package retrieval runs nearest-neighbour searches against the facility index.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Outcome tags how a search ended. Callers switch on it instead of relying on errors.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeZeroResult      Outcome = "zero_result"
	OutcomeConnectionError Outcome = "connection_error"
	OutcomeMalformedInput  Outcome = "malformed_input"
)

// ErrIndexUnavailable marks failures that end the request; they never trigger fallback.
var ErrIndexUnavailable = errors.New("facility index unavailable")

// IndexUnavailableError carries the operation and cause of an index failure.
type IndexUnavailableError struct {
	Op  string
	Err error
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrIndexUnavailable, e.Op, e.Err)
}

func (e *IndexUnavailableError) Unwrap() []error {
	return []error{ErrIndexUnavailable, e.Err}
}

func unavailable(op string, err error) error {
	return &IndexUnavailableError{Op: op, Err: err}
}

// Candidate is one raw index hit. Metadata is untyped and converted by the filter pipeline.
type Candidate struct {
	ID       string
	Document string
	Metadata map[string]interface{}
	Distance float64
}

// RetrievalResult is the output of RetrieveWithRelaxation.
type RetrievalResult struct {
	Candidates []Candidate
	Relaxed    bool
}

// Retriever queries an Elasticsearch dense_vector index.
type Retriever struct {
	client *elasticsearch.Client
	index  string
	logger Logger
}

func NewRetriever(client *elasticsearch.Client, index string, log Logger) *Retriever {
	return &Retriever{client: client, index: index, logger: log}
}

// Retrieve returns up to limit candidates ordered by ascending squared L2 distance.
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, p Predicate, limit int) ([]Candidate, error) {
	body, err := buildKNNQuery(embedding, p, limit)
	if err != nil {
		return nil, err
	}

	req := esapi.SearchRequest{
		Index: []string{r.index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return nil, unavailable("search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, unavailable("search", fmt.Errorf("%s: %s", res.Status(), msg))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, unavailable("decode", err)
	}

	out := make([]Candidate, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		doc, _ := hit.Source[FieldDocument].(string)
		out = append(out, Candidate{
			ID:       hit.ID,
			Document: doc,
			Metadata: hit.Source,
			Distance: scoreToDistance(hit.Score),
		})
	}

	// hits arrive by descending score; distance order is the same modulo rounding
	sortByDistance(out)
	return out, nil
}

// RetrieveWithRelaxation retries once without the location constraint when the
// constrained query returns nothing. It never retries network failures.
func (r *Retriever) RetrieveWithRelaxation(ctx context.Context, embedding []float32, p Predicate, limit int) (RetrievalResult, error) {
	cands, err := r.Retrieve(ctx, embedding, p, limit)
	if err != nil {
		return RetrievalResult{}, err
	}
	if len(cands) > 0 || !p.HasLocation() {
		return RetrievalResult{Candidates: cands}, nil
	}

	r.logger.Info("no candidates with location constraint, retrying without it", map[string]interface{}{
		"province": p.Province,
		"district": p.District,
	})

	cands, err = r.Retrieve(ctx, embedding, p.WithoutLocation(), limit)
	if err != nil {
		return RetrievalResult{}, err
	}
	return RetrievalResult{Candidates: cands, Relaxed: true}, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string                 `json:"_id"`
			Score  float64                `json:"_score"`
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// scoreToDistance inverts the l2_norm score 1/(1+d²) back to the squared distance d².
func scoreToDistance(score float64) float64 {
	if score <= 0 {
		return maxDistance
	}
	d := 1/score - 1
	if d < 0 {
		return 0
	}
	return d
}

const maxDistance = 1e9

func sortByDistance(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Distance < c[j].Distance })
}
