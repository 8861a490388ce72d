package main

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/api"
	"storefront/internal/config"
	"storefront/internal/events"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandler(t *testing.T) {
	database, _, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &config.Config{AppEnv: "test", ReservationTimeout: time.Second}
	h := newHandler(ctx, cfg, database, events.NopPublisher{})
	require.NotNil(t, h)
	assert.False(t, h.SecureCookies)
	assert.Nil(t, h.Idempotency)

	router := api.NewRouter(h)

	t.Run("Health", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Metrics", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "storefront_checkout_total")
	})
}

func TestRun(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE role = \$1`).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectClose()

	origInitDB := initDBFunc
	defer func() { initDBFunc = origInitDB }()
	initDBFunc = func(*config.Config) *sql.DB { return database }

	var addr string
	origStart := startServerFunc
	defer func() { startServerFunc = origStart }()
	startServerFunc = func(_ context.Context, srv *http.Server) error {
		addr = srv.Addr
		return nil
	}

	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("JWT_SECRET", "testsecret")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, run(ctx))
	assert.Equal(t, ":9090", addr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("JWT_SECRET", "")

	err := run(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingConfig)
}
