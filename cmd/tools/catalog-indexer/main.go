// cmd/tools/catalog-indexer/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"outing-workers/internal/common/config"
	"outing-workers/internal/common/database"
	"outing-workers/internal/common/logger"
	"outing-workers/internal/retrieval"
)

var (
	catalogPath string
	batchSize   int
	parallel    int
	dryRun      bool
)

var rootCmd = &cobra.Command{
	Use:           "catalog-indexer <catalog.json>",
	Short:         "Embed facility rows and bulk-load them into the kNN index",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

// row is one catalog entry as exported from the facility dataset.
type row struct {
	ID string `json:"id"`
	retrieval.FacilityDocument
}

func init() {
	rootCmd.Flags().IntVar(&batchSize, "batch", 200, "Documents per bulk request")
	rootCmd.Flags().IntVar(&parallel, "parallel", 4, "Concurrent embedding calls")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Embed and report without writing to the index")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	catalogPath = args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.NewZapAdapter(logger.New(cfg.Logging.Level, "console"))

	docs, err := readCatalog(catalogPath)
	if err != nil {
		return err
	}
	log.Info("catalog loaded", map[string]interface{}{"rows": len(docs), "path": catalogPath})

	embedder, closeFn, err := newEmbedder(ctx, cfg.APIs.Embedding)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := embedAll(ctx, embedder, docs, parallel); err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("Embedded %d documents (dry run)\n", len(docs))
		return nil
	}

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
	if err != nil {
		return err
	}
	retriever := retrieval.NewRetriever(es.Client, es.Index, log)
	if created, err := retriever.EnsureIndex(ctx, cfg.Database.Elasticsearch.Dims); err != nil {
		return err
	} else if created {
		log.Info("facility index created", map[string]interface{}{"index": es.Index})
	}

	total := 0
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		n, err := retriever.IndexFacilities(ctx, docs[start:end])
		if err != nil {
			return fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		total += n
	}
	fmt.Printf("Indexed %d/%d documents into %s\n", total, len(docs), es.Index)
	return nil
}

func readCatalog(path string) ([]retrieval.FacilityDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	docs := make([]retrieval.FacilityDocument, 0, len(rows))
	for i, r := range rows {
		d := r.FacilityDocument
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("row %d: Name is required", i)
		}
		d.ID = r.ID
		if d.Document == "" {
			d.Document = documentText(d)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// documentText is the text that gets embedded when a row carries no document.
func documentText(d retrieval.FacilityDocument) string {
	parts := []string{d.Name, d.Category1, d.Category3, d.Province, d.District, d.Address, d.Note}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func embedAll(ctx context.Context, e retrieval.Embedder, docs []retrieval.FacilityDocument, limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i := range docs {
		g.Go(func() error {
			vec, err := e.Embed(gctx, docs[i].Document)
			if err != nil {
				return fmt.Errorf("embed %q: %w", docs[i].Name, err)
			}
			docs[i].Embedding = vec
			return nil
		})
	}
	return g.Wait()
}

func newEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (retrieval.Embedder, func(), error) {
	if cfg.Provider == "gemini" {
		g, err := retrieval.NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close() }, nil
	}
	return retrieval.NewHTTPEmbedder(cfg.BaseURL, cfg.APIKey, config.GetDuration(cfg.Timeout)), func() {}, nil
}
