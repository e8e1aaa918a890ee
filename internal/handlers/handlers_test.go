package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/mcp-openai/internal/domain"
	"github.com/iyunix/mcp-openai/internal/services/images"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

type fakeRepo struct {
	rows     []domain.Invocation
	err      error
	gotTool  string
	gotLimit int
}

func (f *fakeRepo) Create(context.Context, *domain.Invocation) error { return f.err }

func (f *fakeRepo) FindByRequestID(context.Context, string) (*domain.Invocation, error) {
	return nil, f.err
}

func (f *fakeRepo) Recent(_ context.Context, tool string, limit int) ([]domain.Invocation, error) {
	f.gotTool, f.gotLimit = tool, limit
	return f.rows, f.err
}

func (f *fakeRepo) CountByState(context.Context) (map[string]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]int64{"succeeded": 3, "failed_permanent": 1}, nil
}

func imageRouter(t *testing.T) (*mux.Router, *images.Store) {
	t.Helper()
	store, err := images.NewStore(t.TempDir())
	require.NoError(t, err)
	r := mux.NewRouter()
	r.HandleFunc("/images/{filename}", NewImageHandler(store, noopLogger{}).Download).Methods(http.MethodGet)
	return r, store
}

func TestImageDownload_ServesAttachment(t *testing.T) {
	r, store := imageRouter(t)
	name, err := store.Save([]byte("\x89PNG fake"), "image/png")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/"+name, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=`+name, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "\x89PNG fake", rec.Body.String())
}

func TestImageDownload_RejectsBadNames(t *testing.T) {
	r, _ := imageRouter(t)

	tests := []struct {
		path string
		code int
	}{
		{"/images/passwd", http.StatusBadRequest},
		{"/images/01ARZ3NDEKTSV4RRFFQ69G5FAV.exe", http.StatusBadRequest},
		{"/images/01ARZ3NDEKTSV4RRFFQ69G5FAV.png", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestInvocationsRecent(t *testing.T) {
	repo := &fakeRepo{rows: []domain.Invocation{{RequestID: "a", Tool: "ask-openai", State: "succeeded"}}}
	h := NewInvocationHandler(repo, noopLogger{})

	rec := httptest.NewRecorder()
	h.Recent(rec, httptest.NewRequest(http.MethodGet, "/api/invocations?limit=5&tool=ask-openai", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ask-openai", repo.gotTool)
	assert.Equal(t, 5, repo.gotLimit)

	var body struct {
		Invocations []domain.Invocation `json:"invocations"`
		Count       int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "a", body.Invocations[0].RequestID)
}

func TestInvocationsRecent_Validation(t *testing.T) {
	h := NewInvocationHandler(&fakeRepo{}, noopLogger{})
	for _, q := range []string{"limit=0", "limit=500", "limit=x", "tool=draw"} {
		rec := httptest.NewRecorder()
		h.Recent(rec, httptest.NewRequest(http.MethodGet, "/api/invocations?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec := httptest.NewRecorder()
	h.Recent(rec, httptest.NewRequest(http.MethodGet, "/api/invocations", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvocationsRepoFailure(t *testing.T) {
	h := NewInvocationHandler(&fakeRepo{err: errors.New("disk full")}, noopLogger{})

	rec := httptest.NewRecorder()
	h.Recent(rec, httptest.NewRequest(http.MethodGet, "/api/invocations", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/invocations/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInvocationsStats(t *testing.T) {
	h := NewInvocationHandler(&fakeRepo{}, noopLogger{})
	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/invocations/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"states":{"succeeded":3,"failed_permanent":1}}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
