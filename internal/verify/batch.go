package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/format"
	"github.com/sells-group/license-verify/internal/model"
	"github.com/sells-group/license-verify/internal/registry"
)

// BatchOptions controls pacing between batch items.
type BatchOptions struct {
	// CrossDelay is the pause before an item whose jurisdiction differs from
	// the previous one. Default: 2s.
	CrossDelay time.Duration
	// SameDelay is the pause between items for the same jurisdiction.
	// Default: 500ms.
	SameDelay time.Duration
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.CrossDelay <= 0 {
		o.CrossDelay = 2 * time.Second
	}
	if o.SameDelay <= 0 {
		o.SameDelay = 500 * time.Millisecond
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// VerifyMany verifies reqs one at a time, in order. The result has the same
// length and order as reqs; a failing item becomes an Error result at its
// own position and never stops the rest. Once ctx is done every remaining
// item is reported as an Error carrying the context error.
func (s *Service) VerifyMany(ctx context.Context, reqs []model.VerificationRequest) []model.VerificationResult {
	out := make([]model.VerificationResult, len(reqs))
	prev := ""
	for i, req := range reqs {
		code := registry.CodeFor(req.Jurisdiction)
		if i > 0 {
			d := s.batch.SameDelay
			if code != prev {
				d = s.batch.CrossDelay
			}
			if err := s.batch.Sleep(ctx, d); err != nil && ctx.Err() == nil {
				zap.L().Debug("verify: batch delay interrupted", zap.Error(err))
			}
		}
		prev = code

		if err := ctx.Err(); err != nil {
			out[i] = s.itemError(req, err)
			continue
		}
		out[i] = s.verifyItem(ctx, i, req)
		s.metrics.IncrementBatchItem()
	}
	return out
}

// verifyItem runs one batch entry, converting errors and panics to data.
func (s *Service) verifyItem(ctx context.Context, i int, req model.VerificationRequest) (res model.VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("verify: batch item panicked",
				zap.Int("index", i),
				zap.String("jurisdiction", req.Jurisdiction),
				zap.Any("panic", r),
			)
			res = s.itemError(req, eris.Errorf("internal error: %v", r))
		}
	}()

	res, err := s.VerifyRequest(ctx, req)
	if err != nil {
		return s.itemError(req, err)
	}
	return res
}

func (s *Service) itemError(req model.VerificationRequest, err error) model.VerificationResult {
	code := registry.CodeFor(req.Jurisdiction)
	var cfg *model.JurisdictionConfig
	if c, ok := s.reg.Lookup(code); ok {
		cfg = &c
	}
	res := model.NewResult(code, format.Normalize(cfg, req.Identifier), model.StatusError)
	res.Message = err.Error()
	res.CheckedAt = s.now().UTC()
	return res
}

// BatchSummary counts outcomes across a batch.
type BatchSummary struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Errors   int `json:"errors"`
	Active   int `json:"active"`
	Expired  int `json:"expired"`
	Invalid  int `json:"invalid"`
}

func (b BatchSummary) String() string {
	return fmt.Sprintf("%d total, %d verified (%d active, %d expired, %d invalid), %d errors",
		b.Total, b.Verified, b.Active, b.Expired, b.Invalid, b.Errors)
}

// Summarize tallies results.
func Summarize(results []model.VerificationResult) BatchSummary {
	sum := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Verified {
			sum.Verified++
		}
		switch r.Status {
		case model.StatusError:
			sum.Errors++
		case model.StatusActive:
			sum.Active++
		case model.StatusExpired:
			sum.Expired++
		case model.StatusInvalid:
			sum.Invalid++
		}
	}
	return sum
}
