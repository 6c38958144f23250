// Package format normalizes license identifiers and checks them against a
// jurisdiction's shape rule. Checks are advisory: a mismatch never blocks a
// lookup.
package format

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/model"
)

// WarningNoRule is reported when no usable pattern exists for a jurisdiction.
const WarningNoRule = "no format rule for jurisdiction"

// compiled caches anchored patterns by their source text.
var compiled sync.Map // string -> *regexp.Regexp (nil when invalid)

// Normalize trims and upper-cases raw and removes all whitespace. When cfg
// carries a prefix and the result is all digits, the prefix is prepended.
// Normalize(cfg, Normalize(cfg, x)) == Normalize(cfg, x).
func Normalize(cfg *model.JurisdictionConfig, raw string) string {
	id := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)

	if cfg == nil || id == "" {
		return id
	}
	prefix := strings.ToUpper(strings.TrimSpace(cfg.Format.Prefix))
	if prefix != "" && allDigits(id) && !strings.HasPrefix(id, prefix) {
		id = prefix + id
	}
	return id
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Check reports whether identifier fully matches cfg's pattern. Missing or
// uncompilable patterns pass with a warning.
func Check(cfg *model.JurisdictionConfig, identifier string) model.FormatCheck {
	if cfg == nil || strings.TrimSpace(cfg.Format.Pattern) == "" {
		out := model.FormatCheck{Valid: true, Warning: WarningNoRule}
		if cfg != nil {
			out.Expected = cfg.Format.Description
			out.Example = cfg.Format.Example
		}
		return out
	}

	out := model.FormatCheck{
		Expected: cfg.Format.Description,
		Example:  cfg.Format.Example,
		Pattern:  cfg.Format.Pattern,
	}
	if out.Expected == "" {
		out.Expected = cfg.Format.Pattern
	}

	re := anchored(cfg.Format.Pattern)
	if re == nil {
		out.Valid = true
		out.Warning = WarningNoRule
		return out
	}
	out.Valid = re.MatchString(identifier)
	return out
}

func anchored(pattern string) *regexp.Regexp {
	if v, ok := compiled.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		zap.L().Warn("format: invalid pattern", zap.String("pattern", pattern), zap.Error(err))
		re = nil
	}
	compiled.Store(pattern, re)
	return re
}
