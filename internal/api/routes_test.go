package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/skyfetch/internal/fetch"
	"github.com/yegors/skyfetch/pkg/logger"
)

func TestGetProgress(t *testing.T) {
	agg := fetch.NewAggregator(10, nil, logger.Nop())
	agg.Record(fetch.FetchResult{Outcome: fetch.OutcomeFetched})
	agg.Record(fetch.FetchResult{Outcome: fetch.OutcomeSkipped})

	handler := NewRouter(agg, logger.Nop()).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var prog fetch.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prog))
	assert.Equal(t, 10, prog.Planned)
	assert.Equal(t, 2, prog.Done)
	assert.Equal(t, 1, prog.Fetched)
	assert.Equal(t, 1, prog.Skipped)
}

func TestGetHealth(t *testing.T) {
	handler := NewRouter(fetch.NewAggregator(0, nil, logger.Nop()), logger.Nop()).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	handler := NewRouter(fetch.NewAggregator(0, nil, logger.Nop()), logger.Nop()).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
