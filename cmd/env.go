package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/license-verify/internal/cache"
	"github.com/sells-group/license-verify/internal/evidence"
	"github.com/sells-group/license-verify/internal/extract"
	"github.com/sells-group/license-verify/internal/fetcher"
	"github.com/sells-group/license-verify/internal/metrics"
	"github.com/sells-group/license-verify/internal/registry"
	"github.com/sells-group/license-verify/internal/resilience"
	"github.com/sells-group/license-verify/internal/store"
	"github.com/sells-group/license-verify/internal/strategy"
	"github.com/sells-group/license-verify/internal/verify"
)

// verifyEnv holds everything the verify, batch and serve commands share.
type verifyEnv struct {
	Registry *registry.Registry
	Store    store.EntryStore
	Cache    *cache.ResultCache
	Service  *verify.Service
	Metrics  *metrics.Metrics
	Browser  *strategy.RodLauncher
}

// Close releases resources held by the environment.
func (e *verifyEnv) Close() {
	if e.Browser != nil {
		if err := e.Browser.Close(); err != nil {
			zap.L().Warn("close browser connection", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initCache opens the configured cache backend.
func initCache(ctx context.Context, m *metrics.Metrics) (store.EntryStore, *cache.ResultCache, error) {
	st, err := store.Open(ctx, store.Options{
		Backend:  cfg.Cache.Backend,
		Dir:      cfg.Cache.Dir,
		DSN:      cfg.Cache.DSN,
		RedisURL: cfg.Cache.RedisURL,
		Expiry:   cfg.Cache.TTL(),
		Pool:     &store.PoolConfig{MaxConns: cfg.Cache.MaxConns, MinConns: cfg.Cache.MinConns},
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "open cache store")
	}
	rc := cache.New(st,
		cache.WithTTL(cfg.Cache.TTL()),
		cache.WithMetrics(m),
		cache.WithBackendName(cfg.Cache.Backend),
	)
	return st, rc, nil
}

// loadRegistry builds the registry from a file, a URL, or the embedded
// table, then reads the override file when one is configured.
func loadRegistry(ctx context.Context) (*registry.Registry, registry.Overrides, error) {
	var (
		reg    *registry.Registry
		report registry.LoadReport
		err    error
	)
	switch {
	case cfg.Registry.Path != "":
		reg, report, err = registry.LoadFile(ctx, cfg.Registry.Path)
	case cfg.Registry.URL != "":
		reg, report, err = registry.LoadURL(ctx, fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}), cfg.Registry.URL)
	default:
		reg = registry.Default()
		report.Loaded = reg.Len()
	}
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("registry loaded",
		zap.Int("jurisdictions", reg.Len()),
		zap.Int("skipped_rows", report.Skipped),
	)

	overrides := registry.DefaultOverrides()
	if cfg.Registry.OverridesPath != "" {
		extra, err := registry.LoadOverrides(cfg.Registry.OverridesPath)
		if err != nil {
			return nil, nil, err
		}
		overrides = overrides.With(extra)
	}
	return reg, overrides, nil
}

// initEnv wires the registry, cache, strategies and dispatcher. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*verifyEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	m := metrics.Default()
	reg, overrides, err := loadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	st, rc, err := initCache(ctx, m)
	if err != nil {
		return nil, err
	}

	static := strategy.NewStatic(strategy.StaticOptions{
		Timeout:   time.Duration(cfg.Fetch.StaticTimeoutSecs) * time.Second,
		UserAgent: cfg.Fetch.UserAgent,
		ThinkMin:  time.Duration(cfg.Fetch.ThinkMinMs) * time.Millisecond,
		ThinkMax:  time.Duration(cfg.Fetch.ThinkMaxMs) * time.Millisecond,
		Limiters:  fetcher.NewHostLimiters(rate.Limit(cfg.Fetch.RatePerSec), 2),
		Metrics:   m,
	})

	browser := strategy.NewRodLauncher(strategy.RodOptions{
		RemoteURL: cfg.Fetch.RemoteURL,
		Bin:       cfg.Fetch.BrowserBin,
		Headless:  cfg.Fetch.Headless,
	})
	iopts := strategy.InteractiveOptions{
		Timeout:  time.Duration(cfg.Fetch.InteractiveTimeoutSecs) * time.Second,
		Launcher: browser,
		Metrics:  m,
	}
	if cfg.Evidence.Enabled {
		ev, err := evidence.New(cfg.Evidence.Dir)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		iopts.Evidence = ev
	}

	var breakers *resilience.Breakers
	if cfg.Breaker.Enabled {
		breakers = resilience.NewBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         time.Duration(cfg.Breaker.CooldownSecs) * time.Second,
			OnStateChange: func(code string, from, to resilience.State) {
				zap.L().Warn("circuit state changed",
					zap.String("jurisdiction", code),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		})
	}

	svc := verify.New(verify.Options{
		Registry:         reg,
		Overrides:        overrides,
		Cache:            rc,
		Static:           static,
		Interactive:      strategy.NewInteractive(iopts),
		Extractor:        extract.New(m),
		ForceInteractive: cfg.Fetch.ForceInteractive,
		Breakers:         breakers,
		Metrics:          m,
		Batch: verify.BatchOptions{
			CrossDelay: time.Duration(cfg.Batch.DelayCrossMs) * time.Millisecond,
			SameDelay:  time.Duration(cfg.Batch.DelaySameMs) * time.Millisecond,
		},
	})

	return &verifyEnv{Registry: reg, Store: st, Cache: rc, Service: svc, Metrics: m, Browser: browser}, nil
}
