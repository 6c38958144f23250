// Package verify is the verification dispatcher: it resolves a
// jurisdiction, consults the result cache, picks a fetch strategy, runs
// extraction and assembles the normalized result. It also sequences
// batches.
package verify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/cache"
	"github.com/sells-group/license-verify/internal/extract"
	"github.com/sells-group/license-verify/internal/format"
	"github.com/sells-group/license-verify/internal/metrics"
	"github.com/sells-group/license-verify/internal/model"
	"github.com/sells-group/license-verify/internal/registry"
	"github.com/sells-group/license-verify/internal/resilience"
	"github.com/sells-group/license-verify/internal/strategy"
)

// DefaultForceInteractive lists jurisdictions whose sites only answer a
// real browser, whatever their registry row says.
var DefaultForceInteractive = []string{"CA", "TX", "NY", "FL", "IL"}

// Options wires a Service. Registry is required; everything else is
// optional.
type Options struct {
	Registry  *registry.Registry
	Overrides registry.Overrides
	// Cache may be nil, in which case every call fetches.
	Cache       cache.Cache
	Static      strategy.Strategy
	Interactive strategy.Strategy
	Extractor   *extract.Engine
	// ForceInteractive nil means DefaultForceInteractive. An empty non-nil
	// slice disables forcing.
	ForceInteractive []string
	Breakers         *resilience.Breakers
	Metrics          *metrics.Metrics
	Batch            BatchOptions
	Now              func() time.Time
}

// Service implements the verification contract. It is safe for concurrent
// use; the force list is the only state that changes after construction.
type Service struct {
	reg         *registry.Registry
	overrides   registry.Overrides
	cache       cache.Cache
	static      strategy.Strategy
	interactive strategy.Strategy
	extractor   *extract.Engine
	breakers    *resilience.Breakers
	metrics     *metrics.Metrics
	batch       BatchOptions
	now         func() time.Time

	forceMu sync.RWMutex
	force   map[string]bool
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		reg:         opts.Registry,
		overrides:   opts.Overrides,
		cache:       opts.Cache,
		static:      opts.Static,
		interactive: opts.Interactive,
		extractor:   opts.Extractor,
		breakers:    opts.Breakers,
		metrics:     opts.Metrics,
		batch:       opts.Batch.withDefaults(),
		now:         opts.Now,
	}
	if s.extractor == nil {
		s.extractor = extract.New(opts.Metrics)
	}
	if s.now == nil {
		s.now = time.Now
	}
	force := opts.ForceInteractive
	if force == nil {
		force = DefaultForceInteractive
	}
	s.SetForceInteractive(force)
	return s
}

// SetForceInteractive replaces the force list. Takes effect on the next call.
func (s *Service) SetForceInteractive(codes []string) {
	m := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c = registry.CodeFor(c); c != "" {
			m[c] = true
		}
	}
	s.forceMu.Lock()
	s.force = m
	s.forceMu.Unlock()
}

// Forced reports whether code is on the force list.
func (s *Service) Forced(code string) bool {
	s.forceMu.RLock()
	defer s.forceMu.RUnlock()
	return s.force[registry.CodeFor(code)]
}

// Registry returns the registry the service resolves against.
func (s *Service) Registry() *registry.Registry { return s.reg }

// VerifyRequest is Verify for a request value.
func (s *Service) VerifyRequest(ctx context.Context, req model.VerificationRequest) (model.VerificationResult, error) {
	return s.Verify(ctx, req.Jurisdiction, req.Identifier, req.Hint)
}

// Verify checks one license. The error is non-nil only for missing input;
// unsupported jurisdictions, fetch failures and extraction gaps are all
// reported through the result.
func (s *Service) Verify(ctx context.Context, jurisdiction, identifier, hint string) (model.VerificationResult, error) {
	jurisdiction = strings.TrimSpace(jurisdiction)
	identifier = strings.TrimSpace(identifier)
	hint = strings.TrimSpace(hint)
	if jurisdiction == "" {
		return model.VerificationResult{}, eris.Wrap(ErrInvalidInput, "jurisdiction is required")
	}
	if identifier == "" {
		return model.VerificationResult{}, eris.Wrap(ErrInvalidInput, "license number is required")
	}

	cfg, err := s.resolve(jurisdiction)
	if err != nil {
		zap.L().Debug("verify: unsupported jurisdiction", zap.Error(err))
		res := model.NewResult(strings.ToUpper(jurisdiction), format.Normalize(nil, identifier), model.StatusUnsupported)
		res.Message = msgUnsupported
		res.CheckedAt = s.now().UTC()
		s.metrics.ObserveVerification(res.Jurisdiction, string(res.Status), string(res.Method))
		return res, nil
	}

	id := format.Normalize(&cfg, identifier)
	check := format.Check(&cfg, id)
	log := zap.L().With(zap.String("jurisdiction", cfg.Code), zap.String("license", id))

	fp := cache.Fingerprint(cfg.Code, id, hint)
	if s.cache != nil {
		if hit, ok := s.cache.Get(ctx, fp); ok {
			// Method stays the one that fetched the page; Cached marks the origin.
			hit.Cached = true
			log.Debug("verify: cache hit", zap.String("method", string(hit.Method)))
			s.metrics.ObserveVerification(cfg.Code, string(hit.Status), string(model.FetchCache))
			return *hit, nil
		}
	}

	res := model.NewResult(cfg.Code, id, model.StatusUnknown)
	res.Format = check
	res.FormatValid = check.Valid
	res.VerificationURL = cfg.URL

	strat := s.strategyFor(cfg)
	if strat == nil {
		res.Status = model.StatusError
		res.Message = "no fetch strategy available"
		return s.finish(ctx, fp, res, false), nil
	}
	res.Method = strat.Method()

	var breaker *resilience.Breaker
	if s.breakers != nil {
		breaker = s.breakers.For(cfg.Code)
		if err := breaker.Allow(); err != nil {
			s.metrics.IncrementCircuitRejected(cfg.Code)
			log.Warn("verify: circuit open, skipping fetch")
			res.Status = model.StatusError
			res.Message = msgCircuitOpen
			return s.finish(ctx, fp, res, false), nil
		}
	}

	out := strat.Fetch(ctx, cfg, id)
	if breaker != nil {
		breaker.Record(out.Failed())
	}
	if out.Failed() {
		s.metrics.IncrementFetchFailure(cfg.Code, string(res.Method))
		log.Warn("verify: fetch failed",
			zap.String("method", string(res.Method)),
			zap.String("kind", resilience.Kind(out.Err)),
			zap.Error(out.Err),
		)
		res.Status = model.StatusError
		res.Message = out.Err.Error()
		return s.finish(ctx, fp, res, true), nil
	}

	fields := s.extractor.Extract(out.Content, cfg.Rules)
	res.HolderName = fields.Name
	res.Status = fields.Status
	res.Expiration = fields.Expiration
	res.Evidence = out.Evidence
	if out.FinalURL != "" {
		res.VerificationURL = out.FinalURL
	}
	if res.Status == model.StatusUnknown {
		res.Message = "status not found on result page"
	}
	log.Info("verify: done",
		zap.String("status", string(res.Status)),
		zap.String("method", string(res.Method)),
	)
	return s.finish(ctx, fp, res, true), nil
}

// strategyFor picks interactive when the merged config asks for it or the
// jurisdiction is forced; static otherwise.
func (s *Service) strategyFor(cfg model.JurisdictionConfig) strategy.Strategy {
	if cfg.Strategy == model.StrategyInteractive || s.Forced(cfg.Code) {
		return s.interactive
	}
	return s.static
}

// finish stamps and records res, caching it when store is set. A result
// produced under a cancelled context is never cached.
func (s *Service) finish(ctx context.Context, fp string, res model.VerificationResult, store bool) model.VerificationResult {
	res.Verified = res.Status.Conclusive()
	res.CheckedAt = s.now().UTC()
	s.metrics.ObserveVerification(res.Jurisdiction, string(res.Status), string(res.Method))
	if store && s.cache != nil && ctx.Err() == nil {
		s.cache.Put(ctx, fp, res)
	}
	return res
}
