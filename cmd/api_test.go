package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/license-verify/internal/cache"
	"github.com/sells-group/license-verify/internal/model"
	"github.com/sells-group/license-verify/internal/registry"
	"github.com/sells-group/license-verify/internal/strategy"
	"github.com/sells-group/license-verify/internal/verify"
)

const resultPage = `<html><body><table>
<tr><td>Business Name</td><td>ACME BUILDERS INC</td></tr>
<tr><td>License Status</td><td>Active</td></tr>
<tr><td>Expiration Date</td><td>01/31/2027</td></tr>
</table></body></html>`

type stubStrategy struct {
	method model.FetchMethod
	calls  atomic.Int32
}

func (s *stubStrategy) Method() model.FetchMethod { return s.method }

func (s *stubStrategy) Fetch(_ context.Context, cfg model.JurisdictionConfig, id string) strategy.Outcome {
	s.calls.Add(1)
	return strategy.Outcome{Content: []byte(resultPage), FinalURL: cfg.URL + "?id=" + id}
}

type stubStats struct {
	stats cache.Stats
	err   error
}

func (s stubStats) Stats(context.Context) (cache.Stats, error) { return s.stats, s.err }

func newTestAPI(t *testing.T, maxBatch int) (*api, *stubStrategy) {
	t.Helper()
	reg := registry.New([]model.JurisdictionConfig{
		{
			Code:        "CA",
			LicenseType: "Contractor",
			URL:         "https://ca.example.gov/lookup",
			Strategy:    model.StrategyStatic,
			Format:      model.FormatRule{Pattern: `^\d{6,8}$`, Description: "6-8 digits", Example: "927123"},
		},
		{Code: "OR", LicenseType: "CCB", URL: "https://or.example.gov/lookup", Strategy: model.StrategyStatic},
	})
	static := &stubStrategy{method: model.FetchStatic}
	svc := verify.New(verify.Options{
		Registry:         reg,
		Static:           static,
		Interactive:      &stubStrategy{method: model.FetchInteractive},
		ForceInteractive: []string{},
		Batch:            verify.BatchOptions{Sleep: func(context.Context, time.Duration) error { return nil }},
	})
	a := &api{
		svc:      svc,
		stats:    stubStats{stats: cache.Stats{CachedItems: 3, SizeMB: 0.01, Backend: "file", TTLHours: 24}},
		maxBatch: maxBatch,
		now:      func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	return a, static
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestAPI_RootAndHealth(t *testing.T) {
	a, _ := newTestAPI(t, 0)
	h := a.routes()

	w := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	var root map[string]any
	decodeBody(t, w, &root)
	assert.Equal(t, "active", root["status"])
	assert.EqualValues(t, 2, root["supported_states"])

	w = do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]any
	decodeBody(t, w, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "2026-05-01T12:00:00Z", health["timestamp"])
}

func TestAPI_Verify(t *testing.T) {
	a, static := newTestAPI(t, 0)
	h := a.routes()

	w := do(t, h, http.MethodPost, "/verify", `{"state":"ca","license_number":"927123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res model.VerificationResult
	decodeBody(t, w, &res)
	assert.Equal(t, "CA", res.Jurisdiction)
	assert.Equal(t, model.StatusActive, res.Status)
	assert.Equal(t, "ACME BUILDERS INC", res.HolderName)
	assert.True(t, res.Verified)
	assert.Equal(t, int32(1), static.calls.Load())
}

func TestAPI_VerifyUnsupportedIsNotAnError(t *testing.T) {
	a, _ := newTestAPI(t, 0)

	w := do(t, a.routes(), http.MethodPost, "/verify", `{"state":"ZZ","license_number":"1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res model.VerificationResult
	decodeBody(t, w, &res)
	assert.Equal(t, model.StatusUnsupported, res.Status)
}

func TestAPI_VerifyBadRequests(t *testing.T) {
	a, static := newTestAPI(t, 0)
	h := a.routes()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"state":`, "invalid request body"},
		{"long state", `{"state":"California","license_number":"1"}`, "2-letter code"},
		{"empty license", `{"state":"CA","license_number":" "}`, "invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/verify", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
	assert.Equal(t, int32(0), static.calls.Load())
}

func TestAPI_VerifyBatch(t *testing.T) {
	a, _ := newTestAPI(t, 0)

	body := `{"requests":[
		{"state":"CA","license_number":"927123"},
		{"state":"ZZ","license_number":"1"},
		{"state":"OR","license_number":"","business_name":"x"}
	]}`
	w := do(t, a.routes(), http.MethodPost, "/verify_batch", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp batchResponse
	decodeBody(t, w, &resp)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, model.StatusActive, resp.Results[0].Status)
	assert.Equal(t, model.StatusUnsupported, resp.Results[1].Status)
	assert.Equal(t, model.StatusError, resp.Results[2].Status)
	assert.Equal(t, 3, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.Active)
}

func TestAPI_VerifyBatchLimits(t *testing.T) {
	a, _ := newTestAPI(t, 2)
	h := a.routes()

	w := do(t, h, http.MethodPost, "/verify_batch", `{"requests":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	reqs := strings.Repeat(`{"state":"CA","license_number":"927123"},`, 3)
	w = do(t, h, http.MethodPost, "/verify_batch", `{"requests":[`+strings.TrimSuffix(reqs, ",")+`]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "batch size cannot exceed 2 requests")

	w = do(t, h, http.MethodPost, "/verify_batch", `{"requests":[{"state":"CA","license_number":"1"},{"state":"Texas","license_number":"2"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "requests[1]")
}

func TestAPI_DefaultBatchLimit(t *testing.T) {
	a, _ := newTestAPI(t, 0)
	a.routes()
	assert.Equal(t, defaultMaxBatch, a.maxBatch)
}

func TestAPI_ValidateFormat(t *testing.T) {
	a, static := newTestAPI(t, 0)
	h := a.routes()

	w := do(t, h, http.MethodPost, "/validate_format", `{"state":"CA","license_number":"12AB"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res verify.FormatResult
	decodeBody(t, w, &res)
	assert.False(t, res.Valid)
	assert.Equal(t, "927123", res.Example)

	w = do(t, h, http.MethodPost, "/validate_format", `{"state":"ZZ","license_number":"1"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "state ZZ not supported")

	w = do(t, h, http.MethodPost, "/validate_format", `{"state":"CA","license_number":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, int32(0), static.calls.Load(), "format checks never fetch")
}

func TestAPI_States(t *testing.T) {
	a, _ := newTestAPI(t, 0)
	h := a.routes()

	for _, path := range []string{"/states", "/examples"} {
		w := do(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		var list map[string]verify.JurisdictionInfo
		decodeBody(t, w, &list)
		assert.Contains(t, list, "CA")
		assert.Contains(t, list, "OR")
	}

	w := do(t, h, http.MethodGet, "/states/ca", "")
	require.Equal(t, http.StatusOK, w.Code)
	var d verify.JurisdictionDetail
	decodeBody(t, w, &d)
	assert.Equal(t, "CA", d.Code)
	assert.Equal(t, "https://ca.example.gov/lookup", d.VerificationURL)

	w = do(t, h, http.MethodGet, "/states/zz", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "state ZZ not supported")
}

func TestAPI_Search(t *testing.T) {
	a, static := newTestAPI(t, 0)
	h := a.routes()

	w := do(t, h, http.MethodGet, "/search?license_number=1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/search?state=CA&license_number=927123&format_only=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	var fr verify.FormatResult
	decodeBody(t, w, &fr)
	assert.True(t, fr.Valid)
	assert.Equal(t, int32(0), static.calls.Load())

	w = do(t, h, http.MethodGet, "/search?state=CA&license_number=927123", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res model.VerificationResult
	decodeBody(t, w, &res)
	assert.Equal(t, model.StatusActive, res.Status)
	assert.Equal(t, int32(1), static.calls.Load())
}

func TestAPI_Stats(t *testing.T) {
	a, _ := newTestAPI(t, 0)

	w := do(t, a.routes(), http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]any
	decodeBody(t, w, &out)
	assert.EqualValues(t, 3, out["cached_results"])
	assert.Equal(t, "file", out["cache_backend"])
	assert.EqualValues(t, 24, out["cache_ttl_hours"])
	assert.EqualValues(t, 2, out["supported_states"])
}

func TestAPI_StatsBackendError(t *testing.T) {
	a, _ := newTestAPI(t, 0)
	a.stats = stubStats{err: errors.New("redis down")}

	w := do(t, a.routes(), http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]any
	decodeBody(t, w, &out)
	assert.NotContains(t, out, "cached_results")
	assert.EqualValues(t, 2, out["supported_states"])
}

func TestAPI_Metrics(t *testing.T) {
	a, _ := newTestAPI(t, 0)

	w := do(t, a.routes(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_CORS(t *testing.T) {
	a, _ := newTestAPI(t, 0)
	a.origins = []string{"https://portal.example.com"}

	r := httptest.NewRequest(http.MethodOptions, "/verify", nil)
	r.Header.Set("Origin", "https://portal.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	a.routes().ServeHTTP(w, r)

	assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestValidateState(t *testing.T) {
	assert.Empty(t, validateState("CA"))
	assert.Empty(t, validateState(" tx "))
	assert.NotEmpty(t, validateState("C"))
	assert.NotEmpty(t, validateState("Texas"))
}
