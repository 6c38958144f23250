package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/model"
	"github.com/sells-group/license-verify/internal/registry"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func lookup(t *testing.T, code string) *model.JurisdictionConfig {
	t.Helper()
	cfg, ok := registry.Default().Lookup(code)
	if !ok {
		t.Fatalf("jurisdiction %s not registered", code)
	}
	return &cfg
}

func TestNormalize(t *testing.T) {
	fl := &model.JurisdictionConfig{Code: "FL", Format: model.FormatRule{Prefix: "CGC"}}

	tests := []struct {
		name string
		cfg  *model.JurisdictionConfig
		raw  string
		want string
	}{
		{"trim and upper", nil, "  cgc 152 4312 ", "CGC1524312"},
		{"tabs and newlines", nil, "12\t34\n56", "123456"},
		{"empty", fl, "   ", ""},
		{"prefix applied to digits", fl, "1524312", "CGC1524312"},
		{"prefix not applied to mixed", fl, "cbc1234567", "CBC1234567"},
		{"already prefixed", fl, "CGC1524312", "CGC1524312"},
		{"no prefix configured", &model.JurisdictionConfig{}, "927123", "927123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.cfg, tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(tt.cfg, got), "normalize must be idempotent")
		})
	}
}

func TestNormalize_NumericPrefixIdempotent(t *testing.T) {
	va := &model.JurisdictionConfig{Format: model.FormatRule{Prefix: "27"}}
	once := Normalize(va, "05123456")
	assert.Equal(t, "2705123456", once)
	assert.Equal(t, once, Normalize(va, once))
}

func TestCheck_KnownJurisdictions(t *testing.T) {
	tests := []struct {
		code  string
		id    string
		valid bool
	}{
		{"CA", "927123", true},
		{"CA", "ABC123", false},
		{"FL", "CGC1524312", true},
		{"FL", "123456", false},
		{"PA", "PA123456", true},
		{"UT", "123456-5501", true},
		{"NY", "1234567-DCA", true},
		{"NY", "12345", true},
	}
	for _, tt := range tests {
		t.Run(tt.code+"_"+tt.id, func(t *testing.T) {
			t.Parallel()
			cfg := lookup(t, tt.code)
			got := Check(cfg, Normalize(cfg, tt.id))
			assert.Equal(t, tt.valid, got.Valid)
			assert.Empty(t, got.Warning)
			assert.Equal(t, cfg.Format.Pattern, got.Pattern)
			assert.NotEmpty(t, got.Expected)
		})
	}
}

func TestCheck_FullMatchOnly(t *testing.T) {
	cfg := &model.JurisdictionConfig{Format: model.FormatRule{Pattern: `\d{6}`}}
	assert.True(t, Check(cfg, "123456").Valid)
	assert.False(t, Check(cfg, "1234567").Valid)
	assert.False(t, Check(cfg, "X123456").Valid)
}

func TestCheck_AlternationAnchored(t *testing.T) {
	cfg := &model.JurisdictionConfig{Format: model.FormatRule{Pattern: `AB\d|\d{3}`}}
	assert.True(t, Check(cfg, "AB1").Valid)
	assert.True(t, Check(cfg, "123").Valid)
	assert.False(t, Check(cfg, "AB1XYZ").Valid)
	assert.False(t, Check(cfg, "XYZ123").Valid)
}

func TestCheck_NoRule(t *testing.T) {
	got := Check(&model.JurisdictionConfig{Format: model.FormatRule{Example: "1"}}, "anything")
	assert.True(t, got.Valid)
	assert.Equal(t, WarningNoRule, got.Warning)
	assert.Equal(t, "1", got.Example)

	got = Check(nil, "anything")
	assert.True(t, got.Valid)
	assert.Equal(t, WarningNoRule, got.Warning)
}

func TestCheck_InvalidPattern(t *testing.T) {
	cfg := &model.JurisdictionConfig{Format: model.FormatRule{Pattern: `(\d{6}`}}
	for range 2 {
		got := Check(cfg, "123456")
		assert.True(t, got.Valid)
		assert.Equal(t, WarningNoRule, got.Warning)
		assert.Equal(t, `(\d{6}`, got.Pattern)
	}
}
