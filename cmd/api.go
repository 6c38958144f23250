package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/cache"
	"github.com/sells-group/license-verify/internal/model"
	"github.com/sells-group/license-verify/internal/verify"
)

const (
	apiVersion      = "4.0"
	defaultMaxBatch = 50
	maxBodyBytes    = 1 << 20
)

// statsSource is the slice of the result cache the API reports on.
type statsSource interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// api serves the HTTP surface over a verify.Service.
type api struct {
	svc      *verify.Service
	stats    statsSource
	maxBatch int
	origins  []string
	now      func() time.Time
}

type licenseRequest struct {
	State         string `json:"state"`
	LicenseNumber string `json:"license_number"`
	BusinessName  string `json:"business_name,omitempty"`
}

type batchRequest struct {
	Requests []licenseRequest `json:"requests"`
}

type batchResponse struct {
	Results []model.VerificationResult `json:"results"`
	Summary verify.BatchSummary        `json:"summary"`
}

// routes builds the router.
func (a *api) routes() http.Handler {
	if a.maxBatch <= 0 {
		a.maxBatch = defaultMaxBatch
	}
	if a.now == nil {
		a.now = time.Now
	}
	origins := a.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", a.handleRoot)
	r.Get("/health", a.handleHealth)
	r.Post("/verify", a.handleVerify)
	r.Post("/verify_batch", a.handleVerifyBatch)
	r.Post("/validate_format", a.handleValidateFormat)
	r.Get("/states", a.handleStates)
	r.Get("/states/{state}", a.handleState)
	r.Get("/search", a.handleSearch)
	r.Get("/examples", a.handleStates)
	r.Get("/stats", a.handleStats)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (a *api) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Contractor License Verification API v" + apiVersion,
		"status":           "active",
		"supported_states": a.svc.Registry().Len(),
		"features": []string{
			"License verification",
			"Format validation",
			"Batch processing",
			"Screenshot evidence",
		},
	})
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"states_loaded": a.svc.Registry().Len(),
		"timestamp":     a.now().UTC().Format(time.RFC3339),
	})
}

func (a *api) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if !decode(w, r, &req) {
		return
	}
	if msg := validateState(req.State); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	a.verifyOne(w, r, req)
}

func (a *api) verifyOne(w http.ResponseWriter, r *http.Request, req licenseRequest) {
	res, err := a.svc.Verify(r.Context(), req.State, req.LicenseNumber, req.BusinessName)
	if err != nil {
		if errors.Is(err, verify.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("api: verify failed", zap.String("state", req.State), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "requests must not be empty")
		return
	}
	if len(req.Requests) > a.maxBatch {
		writeError(w, http.StatusBadRequest, "batch size cannot exceed "+strconv.Itoa(a.maxBatch)+" requests")
		return
	}
	reqs := make([]model.VerificationRequest, len(req.Requests))
	for i, lr := range req.Requests {
		if msg := validateState(lr.State); msg != "" {
			writeError(w, http.StatusBadRequest, "requests["+strconv.Itoa(i)+"]: "+msg)
			return
		}
		reqs[i] = model.VerificationRequest{Jurisdiction: lr.State, Identifier: lr.LicenseNumber, Hint: lr.BusinessName}
	}

	results := a.svc.VerifyMany(r.Context(), reqs)
	writeJSON(w, http.StatusOK, batchResponse{Results: results, Summary: verify.Summarize(results)})
}

func (a *api) handleValidateFormat(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if !decode(w, r, &req) {
		return
	}
	a.checkFormat(w, req.State, req.LicenseNumber)
}

func (a *api) checkFormat(w http.ResponseWriter, state, license string) {
	res, err := a.svc.CheckFormat(state, license)
	switch {
	case errors.Is(err, verify.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, verify.ErrUnsupportedJurisdiction):
		writeError(w, http.StatusNotFound, "state "+strings.ToUpper(strings.TrimSpace(state))+" not supported")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (a *api) handleStates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.ListJurisdictions())
}

func (a *api) handleState(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")
	d, err := a.svc.Jurisdiction(state)
	if err != nil {
		if errors.Is(err, verify.ErrUnsupportedJurisdiction) {
			writeError(w, http.StatusNotFound, "state "+strings.ToUpper(state)+" not supported")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := licenseRequest{
		State:         q.Get("state"),
		LicenseNumber: q.Get("license_number"),
		BusinessName:  q.Get("business_name"),
	}
	if strings.TrimSpace(req.State) == "" {
		writeError(w, http.StatusBadRequest, "state is required")
		return
	}
	if formatOnly, _ := strconv.ParseBool(q.Get("format_only")); formatOnly && req.LicenseNumber != "" {
		a.checkFormat(w, req.State, req.LicenseNumber)
		return
	}
	a.verifyOne(w, r, req)
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"supported_states": a.svc.Registry().Len()}
	if a.stats != nil {
		st, err := a.stats.Stats(r.Context())
		if err != nil {
			zap.L().Warn("api: cache stats", zap.Error(err))
		} else {
			out["cached_results"] = st.CachedItems
			out["cache_size_mb"] = st.SizeMB
			out["cache_backend"] = st.Backend
			out["cache_ttl_hours"] = st.TTLHours
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// validateState enforces the two-letter code the API accepts.
func validateState(s string) string {
	if len(strings.TrimSpace(s)) != 2 {
		return "state must be a 2-letter code (e.g., CA, FL, TX)"
	}
	return ""
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
