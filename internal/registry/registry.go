// Package registry holds the immutable per-jurisdiction configuration table
// and the loaders that populate it from tabular sources.
package registry

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/model"
)

// Registry is an immutable lookup table of jurisdiction configs. It is safe
// for concurrent use because nothing mutates it after New returns.
type Registry struct {
	byCode map[string]model.JurisdictionConfig
	codes  []string
}

// New builds a Registry. Codes are upper-cased; when a code appears more
// than once the first record wins and later ones are dropped.
func New(configs []model.JurisdictionConfig) *Registry {
	r := &Registry{byCode: make(map[string]model.JurisdictionConfig, len(configs))}
	for _, c := range configs {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		if code == "" {
			continue
		}
		if _, dup := r.byCode[code]; dup {
			zap.L().Warn("registry: duplicate jurisdiction dropped", zap.String("code", code))
			continue
		}
		c = c.Clone()
		c.Code = code
		if c.Name == "" {
			c.Name = NameFor(code)
		}
		r.byCode[code] = c
		r.codes = append(r.codes, code)
	}
	sort.Strings(r.codes)
	return r
}

// Lookup resolves a code or full jurisdiction name, case-insensitively.
// A miss returns false; it is never an error. The returned config is a copy.
func (r *Registry) Lookup(codeOrName string) (model.JurisdictionConfig, bool) {
	if r == nil {
		return model.JurisdictionConfig{}, false
	}
	c, ok := r.byCode[CodeFor(codeOrName)]
	if !ok {
		return model.JurisdictionConfig{}, false
	}
	return c.Clone(), true
}

// All returns the supported codes in sorted order.
func (r *Registry) All() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.codes...)
}

// Len returns the number of jurisdictions loaded.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.codes)
}
