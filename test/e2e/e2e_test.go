// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"outing-workers/internal/common/config"
	"outing-workers/internal/common/database"
	"outing-workers/internal/common/logger"
	"outing-workers/internal/conversation"
	"outing-workers/internal/fallback"
	"outing-workers/internal/filter"
	"outing-workers/internal/location"
	"outing-workers/internal/mapview"
	"outing-workers/internal/models"
	"outing-workers/internal/outing"
	"outing-workers/internal/retrieval"

	clearconversation "outing-workers/internal/workers/outing/clear-conversation"
	rendermap "outing-workers/internal/workers/outing/render-map-for-last-results"
	searchfacilities "outing-workers/internal/workers/outing/search-facilities"
)

const dims = 8

var (
	zeebeClient zbc.Client
	zapLog      *zap.Logger
	log         logger.Logger
)

// Logger adapters to bridge logger.Logger to worker-specific Logger interfaces
type searchLoggerAdapter struct {
	logger.Logger
}

func (a *searchLoggerAdapter) With(fields map[string]interface{}) searchfacilities.Logger {
	return &searchLoggerAdapter{a.Logger.With(fields)}
}

type renderMapLoggerAdapter struct {
	logger.Logger
}

func (a *renderMapLoggerAdapter) With(fields map[string]interface{}) rendermap.Logger {
	return &renderMapLoggerAdapter{a.Logger.With(fields)}
}

type clearLoggerAdapter struct {
	logger.Logger
}

func (a *clearLoggerAdapter) With(fields map[string]interface{}) clearconversation.Logger {
	return &clearLoggerAdapter{a.Logger.With(fields)}
}

// unitEmbedder maps every text to the same vector so all indexed rows sit at distance 0.
type unitEmbedder struct{}

func (unitEmbedder) Embed(context.Context, string) ([]float32, error) {
	v := make([]float32, dims)
	v[0] = 1
	return v, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestMain(m *testing.M) {
	if os.Getenv("OUTING_E2E") == "" {
		fmt.Println("OUTING_E2E not set, skipping e2e tests")
		os.Exit(0)
	}

	var err error
	zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         envOr("ZEEBE_ADDRESS", "localhost:26500"),
		UsePlaintextConnection: true,
	})
	if err != nil {
		panic(fmt.Sprintf("❌ Failed to connect to Zeebe: %v", err))
	}

	zapLog, _ = zap.NewDevelopment()
	log = logger.NewZapAdapter(zapLog)

	code := m.Run()

	zeebeClient.Close()
	os.Exit(code)
}

// ==========================
// 1. Service connectivity
// ==========================
func TestServicesConnectivity(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	es, err := database.NewElasticsearch(config.ElasticsearchConfig{URL: envOr("ELASTICSEARCH_URL", "http://localhost:9200")}, nil)
	require.NoError(t, err, "❌ Elasticsearch client creation failed")
	assert.NoError(t, es.Ping(ctx), "❌ Elasticsearch ping failed")

	rdb := database.NewRedis(config.RedisConfig{Address: envOr("REDIS_ADDRESS", "localhost:6379")})
	defer rdb.Close()
	assert.NoError(t, rdb.Ping(ctx), "❌ Redis ping failed")

	_, err = zeebeClient.NewTopologyCommand().Send(ctx)
	assert.NoError(t, err, "❌ Zeebe topology request failed")
}

// ==========================
// 2. Search, map, clear against a real index
// ==========================
func TestSearchRenderClear(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	index := "e2e_facilities_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	es, err := database.NewElasticsearch(config.ElasticsearchConfig{
		URL:   envOr("ELASTICSEARCH_URL", "http://localhost:9200"),
		Index: index,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		res, err := es.Client.Indices.Delete([]string{index})
		if err == nil {
			res.Body.Close()
		}
	})

	retriever := retrieval.NewRetriever(es.Client, index, log)
	created, err := retriever.EnsureIndex(ctx, dims)
	require.NoError(t, err)
	require.True(t, created)

	vec, _ := unitEmbedder{}.Embed(ctx, "")
	n, err := retriever.IndexFacilities(ctx, []retrieval.FacilityDocument{
		{ID: "1", Name: "서울숲 가족마당", Document: "서울숲 가족마당 공원", Address: "서울특별시 성동구 뚝섬로 273",
			Lat: "37.5444", Lon: "127.0374", Category1: "공원", District: "성동구", Province: "서울특별시", InOut: "실외", Embedding: vec},
		{ID: "2", Name: "국립어린이과학관", Document: "국립어린이과학관 과학관", Address: "서울특별시 종로구 창경궁로 215",
			Lat: "37.5838", Lon: "126.9982", Category1: "과학관", District: "종로구", Province: "서울특별시", InOut: "실내", Embedding: vec},
		{ID: "3", Name: "아기 놀이방", Document: "아기 놀이방 키즈카페", Address: "서울특별시 마포구 월드컵로 10",
			Lat: "37.5551", Lon: "126.9105", Category1: "키즈카페", District: "마포구", Province: "서울특별시", InOut: "실내",
			AgeMin: "1", AgeMax: "4", Embedding: vec},
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	builder, err := location.NewBuilder()
	require.NoError(t, err)
	pipeline := filter.NewPipeline(filter.Options{SimilarityThreshold: 1.3}, builder.Build(), log)
	store := conversation.NewStore(conversation.Options{})
	orchestrator := fallback.NewOrchestrator(fallback.Options{CandidateCount: 10}, unitEmbedder{}, retriever, pipeline, store, nil, log)
	service := outing.NewService(outing.Deps{
		Searcher: orchestrator,
		Store:    store,
		Maps:     mapview.NewRenderer(store, log),
	}, 5, log)

	conversationID := "e2e-" + uuid.NewString()

	search := searchfacilities.NewHandler(&searchfacilities.Config{Timeout: 15 * time.Second}, service, nil, &searchLoggerAdapter{log})
	age := 8
	found, err := search.Execute(ctx, &searchfacilities.Input{
		ConversationID: conversationID,
		QueryText:      "주말에 아이랑 갈 만한 곳",
		ChildAge:       &age,
	})
	require.NoError(t, err)
	assert.True(t, found.Success)
	assert.Equal(t, models.SourceRAG, found.Source)
	assert.Equal(t, 2, found.Count, "age-limited play room should be filtered out")
	t.Logf("✅ search returned %d facilities", found.Count)

	render := rendermap.NewHandler(&rendermap.Config{Timeout: 5 * time.Second}, service, nil, &renderMapLoggerAdapter{log})
	shown := render.Execute(ctx, &rendermap.Input{ConversationID: conversationID, Indices: "0,1"})
	assert.True(t, shown.Success)
	assert.Len(t, shown.Facilities, 2)
	assert.Equal(t, []int{0, 1}, shown.SelectedIndices)
	t.Log("✅ map rendered for last results")

	again, err := search.Execute(ctx, &searchfacilities.Input{
		ConversationID: conversationID,
		QueryText:      "주말에 아이랑 갈 만한 곳",
		ChildAge:       &age,
	})
	require.NoError(t, err)
	assert.Zero(t, again.Count, "already shown facilities are not repeated")

	clearer := clearconversation.NewHandler(&clearconversation.Config{Timeout: 2 * time.Second}, service, nil, &clearLoggerAdapter{log})
	cleared, err := clearer.Execute(&clearconversation.Input{ConversationID: conversationID})
	require.NoError(t, err)
	assert.True(t, cleared.Cleared)
	assert.Zero(t, store.Len())
}
