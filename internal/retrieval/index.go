package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// FacilityDocument is one catalog row as stored in the index.
type FacilityDocument struct {
	ID        string    `json:"-"`
	Document  string    `json:"document"`
	Name      string    `json:"Name"`
	Lat       string    `json:"LAT"`
	Lon       string    `json:"LON"`
	Address   string    `json:"Address"`
	Category1 string    `json:"Category1"`
	Category3 string    `json:"Category3"`
	Note      string    `json:"Note,omitempty"`
	District  string    `json:"SIGNGU_NM"`
	Province  string    `json:"CTPRVN_NM"`
	InOut     string    `json:"in_out"`
	AgeMin    string    `json:"age_min,omitempty"`
	AgeMax    string    `json:"age_max,omitempty"`
	Embedding []float32 `json:"embedding"`
}

// EnsureIndex creates the facility index with a dense_vector mapping if it does not exist.
func (r *Retriever) EnsureIndex(ctx context.Context, dims int) (bool, error) {
	exists := esapi.IndicesExistsRequest{Index: []string{r.index}}
	res, err := exists.Do(ctx, r.client)
	if err != nil {
		return false, unavailable("exists", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
	default:
		return false, unavailable("exists", fmt.Errorf("status %d", res.StatusCode))
	}

	mapping, err := indexMapping(dims)
	if err != nil {
		return false, err
	}

	create := esapi.IndicesCreateRequest{Index: r.index, Body: bytes.NewReader(mapping)}
	res, err = create.Do(ctx, r.client)
	if err != nil {
		return false, unavailable("create", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return false, unavailable("create", fmt.Errorf("%s: %s", res.Status(), msg))
	}

	r.logger.Info("created facility index", map[string]interface{}{"index": r.index, "dims": dims})
	return true, nil
}

// IndexFacilities bulk-indexes documents and returns how many were accepted.
func (r *Retriever) IndexFacilities(ctx context.Context, docs []FacilityDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		action := map[string]interface{}{"index": map[string]interface{}{"_index": r.index, "_id": id}}
		if err := enc.Encode(action); err != nil {
			return 0, err
		}
		if err := enc.Encode(doc); err != nil {
			return 0, err
		}
	}

	req := esapi.BulkRequest{Body: &buf, Refresh: "true"}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return 0, unavailable("bulk", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return 0, unavailable("bulk", fmt.Errorf("%s: %s", res.Status(), msg))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, unavailable("bulk decode", err)
	}

	accepted := 0
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Status >= 200 && result.Status < 300 {
				accepted++
			}
		}
	}
	if parsed.Errors {
		r.logger.Warn("bulk index had failures", map[string]interface{}{
			"submitted": len(docs),
			"accepted":  accepted,
		})
	}
	return accepted, nil
}
