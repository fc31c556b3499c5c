package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"outing-workers/internal/common/config"
	"outing-workers/internal/common/database"
	"outing-workers/internal/common/logger"
	"outing-workers/internal/location"
	"outing-workers/internal/retrieval"

	cc "outing-workers/internal/workers/outing/clear-conversation"
	rm "outing-workers/internal/workers/outing/render-map-for-last-results"
	rp "outing-workers/internal/workers/outing/resolve-place-to-map"
	sf "outing-workers/internal/workers/outing/search-facilities"
	us "outing-workers/internal/workers/outing/update-conversation-status"
)

// buildLocator loads the embedded location table plus the optional YAML file and
// location_mappings rows. A reachable Postgres is added to the readiness checks.
func buildLocator(ctx context.Context, cfg *config.Config, checks map[string]database.Pinger, zapLog *zap.Logger) (*location.Resolver, error) {
	b, err := location.NewBuilder()
	if err != nil {
		return nil, err
	}
	b.AddStopwords(cfg.Retrieval.TokenStoplist...)

	if path := cfg.Retrieval.LocationTablePath; path != "" {
		if err := b.LoadFile(path); err != nil {
			return nil, err
		}
		zapLog.Info("location table merged", zap.String("path", path))
	}

	if cfg.Database.Postgres.Enabled && cfg.Retrieval.LocationFromPostgres {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		n, err := b.LoadFromPostgres(loadCtx, pg.DB)
		if err != nil {
			zapLog.Warn("location_mappings not loaded, using built-in table", zap.Error(err))
		} else {
			zapLog.Info("location_mappings loaded", zap.Int("rows", n))
		}
		checks["postgres"] = pg
	}

	r := b.Build()
	zapLog.Info("location resolver ready", zap.Int("names", r.Size()))
	return r, nil
}

// buildEmbedder picks the embedding backend and wraps it with the Redis cache
// when a TTL is configured. The returned func releases the backend.
func buildEmbedder(ctx context.Context, cfg *config.Config, redis *database.RedisClient, log logger.Logger) (retrieval.Embedder, func(), error) {
	emb := cfg.APIs.Embedding

	var (
		base    retrieval.Embedder
		closeFn = func() {}
	)
	switch emb.Provider {
	case "gemini":
		g, err := retrieval.NewGeminiEmbedder(ctx, emb.APIKey, emb.Model)
		if err != nil {
			return nil, nil, err
		}
		base = g
		closeFn = func() { _ = g.Close() }
	default:
		base = retrieval.NewHTTPEmbedder(emb.BaseURL, emb.APIKey, config.GetDuration(emb.Timeout))
	}

	if emb.CacheTTL > 0 {
		base = retrieval.NewCachedEmbedder(base, redis.Client, emb.CachePrefix, time.Duration(emb.CacheTTL)*time.Second, log)
	}
	return base, closeFn, nil
}

// Logger adapters for workers that declare their own Logger interfaces
type searchLoggerAdapter struct {
	logger.Logger
}

func (a *searchLoggerAdapter) With(fields map[string]interface{}) sf.Logger {
	return &searchLoggerAdapter{a.Logger.With(fields)}
}

type renderMapLoggerAdapter struct {
	logger.Logger
}

func (a *renderMapLoggerAdapter) With(fields map[string]interface{}) rm.Logger {
	return &renderMapLoggerAdapter{a.Logger.With(fields)}
}

type resolvePlaceLoggerAdapter struct {
	logger.Logger
}

func (a *resolvePlaceLoggerAdapter) With(fields map[string]interface{}) rp.Logger {
	return &resolvePlaceLoggerAdapter{a.Logger.With(fields)}
}

type updateStatusLoggerAdapter struct {
	logger.Logger
}

func (a *updateStatusLoggerAdapter) With(fields map[string]interface{}) us.Logger {
	return &updateStatusLoggerAdapter{a.Logger.With(fields)}
}

type clearConversationLoggerAdapter struct {
	logger.Logger
}

func (a *clearConversationLoggerAdapter) With(fields map[string]interface{}) cc.Logger {
	return &clearConversationLoggerAdapter{a.Logger.With(fields)}
}
