// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"outing-workers/internal/api"
	"outing-workers/internal/common/camunda"
	"outing-workers/internal/common/config"
	"outing-workers/internal/common/database"
	"outing-workers/internal/common/logger"
	"outing-workers/internal/common/observability"
	"outing-workers/internal/conversation"
	"outing-workers/internal/fallback"
	"outing-workers/internal/fallback/navercafe"
	"outing-workers/internal/fallback/perplexity"
	"outing-workers/internal/filter"
	"outing-workers/internal/geocode"
	"outing-workers/internal/mapview"
	"outing-workers/internal/outing"
	"outing-workers/internal/retrieval"
	"outing-workers/pkg/registry"

	cc "outing-workers/internal/workers/outing/clear-conversation"
	rm "outing-workers/internal/workers/outing/render-map-for-last-results"
	rp "outing-workers/internal/workers/outing/resolve-place-to-map"
	sf "outing-workers/internal/workers/outing/search-facilities"
	us "outing-workers/internal/workers/outing/update-conversation-status"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting outing worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
		TimingBuffer:   cfg.Observability.TimingBuffer,
	}, log)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Elasticsearch (facility index) ---
	var es *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
		if err != nil {
			return err
		}
		return es.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully", zap.String("index", es.Index))

	// --- Redis (embedding + geocode caches) ---
	redis := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]database.Pinger{
		"elasticsearch": es,
		"redis":         redis,
	}

	// --- Location table ---
	locator, err := buildLocator(ctx, cfg, checks, zapLog)
	if err != nil {
		zapLog.Fatal("location table failed", zap.Error(err))
	}

	// --- Retrieval ---
	embedder, closeEmbedder, err := buildEmbedder(ctx, cfg, redis, log)
	if err != nil {
		zapLog.Fatal("embedder init failed", zap.Error(err))
	}
	defer closeEmbedder()

	retriever := retrieval.NewRetriever(es.Client, es.Index, log)
	if created, err := retriever.EnsureIndex(ctx, cfg.Database.Elasticsearch.Dims); err != nil {
		zapLog.Warn("could not ensure facility index", zap.Error(err))
	} else if created {
		zapLog.Info("facility index created", zap.String("index", es.Index))
	}

	pipeline := filter.NewPipeline(filter.Options{
		SimilarityThreshold:   cfg.Retrieval.SimilarityThreshold,
		DefaultLat:            cfg.Retrieval.DefaultLat,
		DefaultLng:            cfg.Retrieval.DefaultLng,
		ZeroOnMalformedCoords: cfg.Retrieval.ZeroOnMalformedCoords,
	}, locator, log)

	// --- Conversation state ---
	store := conversation.NewStore(conversation.Options{
		TTL:             time.Duration(cfg.Conversation.TTL) * time.Second,
		CleanupInterval: time.Duration(cfg.Conversation.CleanupInterval) * time.Second,
	})
	store.OnTeardown(func(id string) {
		drained := obs.Timings.DrainFor(id)
		log.Info("conversation torn down", map[string]interface{}{
			"conversationId": id,
			"toolCalls":      len(drained),
		})
	})

	// --- Secondary search ---
	web := perplexity.NewClient(perplexity.Config{
		BaseURL: cfg.APIs.Perplexity.BaseURL,
		APIKey:  cfg.APIs.Perplexity.APIKey,
		Model:   cfg.APIs.Perplexity.Model,
		Timeout: config.GetDuration(cfg.APIs.Perplexity.Timeout),
	})
	cafe := navercafe.NewClient(navercafe.Config{
		BaseURL:        cfg.APIs.NaverCafe.BaseURL,
		ClientID:       cfg.APIs.NaverCafe.ClientID,
		ClientSecret:   cfg.APIs.NaverCafe.ClientSecret,
		Display:        cfg.APIs.NaverCafe.Display,
		Timeout:        config.GetDuration(cfg.APIs.NaverCafe.Timeout),
		EnrichArticles: cfg.APIs.NaverCafe.EnrichArticles,
		EnrichTimeout:  config.GetDuration(cfg.APIs.NaverCafe.EnrichTimeout),
	}, log)
	providers := fallback.BuildProviders(cfg.Fallback.Providers, map[string]fallback.SecondaryProvider{
		"web":  web,
		"cafe": cafe,
	})

	orchestrator := fallback.NewOrchestrator(fallback.Options{
		Enabled:        cfg.Fallback.Enabled,
		CandidateCount: cfg.Retrieval.CandidateCount,
	}, embedder, retriever, pipeline, store, providers, log).WithRecorder(obs)

	// --- Map resolution ---
	geocoder := geocode.NewGeocoder(geocode.Config{
		BaseURL:     cfg.APIs.Kakao.BaseURL,
		APIKey:      cfg.APIs.Kakao.APIKey,
		Timeout:     config.GetDuration(cfg.APIs.Kakao.Timeout),
		MaxAttempts: cfg.Geocode.MaxAttempts,
		CacheTTL:    time.Duration(cfg.Geocode.CacheTTL) * time.Second,
		RateLimit:   cfg.Geocode.RateLimit,
	}, redis.Client, log)

	service := outing.NewService(outing.Deps{
		Searcher: orchestrator,
		Store:    store,
		Maps:     mapview.NewRenderer(store, log),
		Places:   geocoder,
		Recorder: obs,
	}, cfg.Retrieval.DefaultResultCount, log)

	// --- Activity registry (input schemas) ---
	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Warn("activity registry not loaded, using built-in schemas", zap.Error(err))
	} else if problems := reg.Validate(); len(problems) > 0 {
		zapLog.Fatal("activity registry invalid", zap.Errors("problems", problems))
	}

	// --- Zeebe ---
	zeebe, err := camunda.NewClientWithConfig(&camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		RetryConfig:            &camunda.RetryConfig{MaxRetries: 10, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	checks["zeebe"] = zeebe
	zapLog.Info("Zeebe client connected successfully")

	// --- Workers ---
	var workers []*camunda.Worker
	start := func(taskType string, handler func() workerHandler) {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		if !wcfg.Enabled {
			zapLog.Info("worker disabled", zap.String("taskType", taskType))
			return
		}
		h := handler()
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
		}, obs.Instrument(taskType, h.Handle), log))
	}
	timeout := func(taskType string) time.Duration {
		return config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
	}

	start(sf.TaskType, func() workerHandler {
		return sf.NewHandler(&sf.Config{Timeout: timeout(sf.TaskType)}, service, reg, &searchLoggerAdapter{log})
	})
	start(rm.TaskType, func() workerHandler {
		return rm.NewHandler(&rm.Config{Timeout: timeout(rm.TaskType)}, service, reg, &renderMapLoggerAdapter{log})
	})
	start(rp.TaskType, func() workerHandler {
		return rp.NewHandler(&rp.Config{Timeout: timeout(rp.TaskType)}, service, reg, &resolvePlaceLoggerAdapter{log})
	})
	start(us.TaskType, func() workerHandler {
		return us.NewHandler(&us.Config{Timeout: timeout(us.TaskType)}, service, reg, &updateStatusLoggerAdapter{log})
	})
	start(cc.TaskType, func() workerHandler {
		return cc.NewHandler(&cc.Config{Timeout: timeout(cc.TaskType)}, service, reg, &clearConversationLoggerAdapter{log})
	})
	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	// --- HTTP: health, readiness, metrics, progress stream ---
	apiHandler := api.NewHandler(store, obs.Timings, checks, api.Options{
		PollInterval: config.GetDuration(cfg.Server.StreamPollInterval),
		IdleTimeout:  config.GetDuration(cfg.Server.StreamIdleTimeout),
	}, log)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(apiHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	for tool, sum := range observability.Summarize(obs.Timings.Drain()) {
		zapLog.Info("undrained tool timings",
			zap.String("tool", tool),
			zap.Int("calls", sum.Calls),
			zap.Int("failures", sum.Failures),
			zap.Duration("total", sum.Total))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

type workerHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}
