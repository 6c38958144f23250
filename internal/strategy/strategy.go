// Package strategy fetches a jurisdiction's results page for one
// identifier. Static submits the lookup over plain HTTP; Interactive drives
// a headless browser. Neither panics nor returns a Go error for ordinary
// failures: the diagnostic travels in Outcome.Err.
package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/license-verify/internal/model"
)

// DefaultField is the query/form field used when a jurisdiction names none.
const DefaultField = "license_number"

// Strategy fetches a results page.
type Strategy interface {
	Method() model.FetchMethod
	Fetch(ctx context.Context, cfg model.JurisdictionConfig, identifier string) Outcome
}

// Outcome is the result of one fetch. Content is only meaningful when Err
// is nil.
type Outcome struct {
	Content  []byte
	Evidence *model.Evidence
	FinalURL string
	Err      error
}

// Failed reports whether the fetch produced no usable page.
func (o Outcome) Failed() bool { return o.Err != nil }

func failure(err error) Outcome { return Outcome{Err: err} }

// NeedsCaution reports whether a jurisdiction's notes say the site punishes
// fast or automated clients.
func NeedsCaution(notes string) bool {
	n := strings.ToLower(notes)
	for _, marker := range []string{"rate limit", "rate-limit", "throttl", "captcha"} {
		if strings.Contains(n, marker) {
			return true
		}
	}
	return false
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
