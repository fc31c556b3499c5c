package database

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"outing-workers/internal/common/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func esServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ==========================
// Elasticsearch
// ==========================

func TestElasticsearch_Ping(t *testing.T) {
	srv := esServer(t, http.StatusOK)

	es, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL, Index: "facilities"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "facilities", es.Index)
	assert.NoError(t, es.Ping(context.Background()))
}

func TestElasticsearch_PingError(t *testing.T) {
	srv := esServer(t, http.StatusServiceUnavailable)

	es, err := NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{srv.URL}}, nil)
	require.NoError(t, err)
	assert.Error(t, es.Ping(context.Background()))
}

// ==========================
// Redis / Postgres
// ==========================

func TestRedis_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := NewRedis(config.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	assert.NoError(t, rc.Ping(context.Background()))

	mr.Close()
	assert.Error(t, rc.Ping(context.Background()))
}

func TestPostgres_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	pg := &PostgresClient{DB: db}
	mock.ExpectPing()
	assert.NoError(t, pg.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorContains(t, pg.Ping(context.Background()), "postgres ping failed")

	mock.ExpectClose()
	assert.NoError(t, pg.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// CheckAll
// ==========================

func TestCheckAll(t *testing.T) {
	failures := CheckAll(context.Background(), map[string]Pinger{
		"elasticsearch": PingerFunc(func(context.Context) error { return nil }),
		"redis":         PingerFunc(func(context.Context) error { return errors.New("refused") }),
		"postgres":      nil,
	})

	require.Len(t, failures, 1)
	assert.Equal(t, []string{"redis: refused"}, Summarize(failures))
}
