package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/mcp-openai/internal/auth"
	"github.com/iyunix/mcp-openai/internal/config"
	"github.com/iyunix/mcp-openai/internal/observability"
	"github.com/iyunix/mcp-openai/internal/ratelimit"
	"github.com/iyunix/mcp-openai/internal/services"
	"github.com/iyunix/mcp-openai/internal/services/images"
)

func testApplication(t *testing.T, links *auth.LinkSigner) *Application {
	t.Helper()
	store, err := images.NewStore(t.TempDir())
	require.NoError(t, err)
	logger := services.NewProductionLoggerTo(&nopWriter{}, "test", services.LogLevelError)
	app := &Application{
		Config:          &config.Config{},
		Logger:          logger,
		Store:           store,
		Links:           links,
		DownloadLimiter: ratelimit.NewMemoryRateLimiter(ratelimit.DefaultDownloadConfig()),
		APILimiter:      ratelimit.NewMemoryRateLimiter(ratelimit.DefaultAPIConfig()),
	}
	t.Cleanup(func() { _ = app.Close(t.Context()) })
	return app
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	router := testApplication(t, nil).Router()

	assert.Equal(t, http.StatusOK, get(router, "/health").Code)

	metrics := get(router, "/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")

	// No audit database configured.
	assert.Equal(t, http.StatusNotFound, get(router, "/api/invocations").Code)
}

func TestRouter_DownloadsWithoutSecret(t *testing.T) {
	app := testApplication(t, nil)
	name, err := app.Store.Save([]byte("png"), "image/png")
	require.NoError(t, err)

	rec := get(app.Router(), "/images/"+name)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_DownloadsRequireSignedLink(t *testing.T) {
	links, err := auth.NewLinkSigner([]byte("secret"), time.Hour)
	require.NoError(t, err)
	app := testApplication(t, links)
	name, err := app.Store.Save([]byte("png"), "image/png")
	require.NoError(t, err)
	router := app.Router()

	assert.Equal(t, http.StatusUnauthorized, get(router, "/images/"+name).Code)
	assert.Equal(t, http.StatusForbidden, get(router, "/images/"+name+"?token=bogus").Code)

	token, _, err := links.Sign(name)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(router, "/images/"+name+"?token="+token).Code)
}

func TestOrchestratorOptions(t *testing.T) {
	cfg := &config.Config{ProgressFlush: time.Second, ProgressQueueSize: 8}
	assert.Len(t, orchestratorOptions(cfg, nil), 1)

	tp, err := observability.NewTracerProvider("mcp-openai-test", "test", &nopWriter{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	assert.Len(t, orchestratorOptions(cfg, tp), 2)
}
