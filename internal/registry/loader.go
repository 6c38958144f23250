package registry

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/fetcher"
	"github.com/sells-group/license-verify/internal/model"
)

//go:embed data/jurisdictions.csv
var dataFS embed.FS

// Column names recognized by the tabular loaders. Matching is
// case-insensitive and column order does not matter.
const (
	ColState              = "STATE"
	ColName               = "NAME"
	ColLicenseType        = "LICENSE_TYPE"
	ColLicenseRegex       = "LICENSE_REGEX"
	ColLicenseFormat      = "LICENSE_FORMAT"
	ColExampleLicense     = "EXAMPLE_LICENSE"
	ColLicensePrefix      = "LICENSE_PREFIX"
	ColVerificationURL    = "VERIFICATION_URL"
	ColSubmitMethod       = "SUBMIT_METHOD"
	ColLicenseField       = "LICENSE_FIELD"
	ColRequiresJavascript = "REQUIRES_JAVASCRIPT"
	ColInputSelector      = "INPUT_SELECTOR"
	ColSubmitSelector     = "SUBMIT_SELECTOR"
	ColNameSelector       = "NAME_SELECTOR"
	ColStatusSelector     = "STATUS_SELECTOR"
	ColExpirationSelector = "EXPIRATION_SELECTOR"
	ColNotes              = "NOTES"
)

// DefaultLicenseType is used when a row leaves LICENSE_TYPE blank.
const DefaultLicenseType = "Professional License"

var twoLetter = regexp.MustCompile(`^[A-Z]{2}$`)

// LoadReport summarizes a load: rows turned into configs and rows skipped.
type LoadReport struct {
	Loaded  int      `json:"loaded"`
	Skipped int      `json:"skipped"`
	Reasons []string `json:"reasons,omitempty"`
}

func (lr *LoadReport) skip(row int, reason string) {
	lr.Skipped++
	lr.Reasons = append(lr.Reasons, fmt.Sprintf("row %d: %s", row, reason))
	zap.L().Warn("registry: skipping row", zap.Int("row", row), zap.String("reason", reason))
}

// FromTable converts a parsed table into jurisdiction configs. Malformed rows
// are skipped and counted; they never abort the load.
func FromTable(t *fetcher.Table) ([]model.JurisdictionConfig, LoadReport) {
	var report LoadReport
	if t.Column(ColState) < 0 {
		report.Skipped = len(t.Rows)
		zap.L().Error("registry: table has no STATE column", zap.Strings("header", t.Header))
		return nil, report
	}

	configs := make([]model.JurisdictionConfig, 0, len(t.Rows))
	for i, row := range t.Rows {
		// Header is row 1.
		cfg, reason := parseRow(t, row)
		if reason != "" {
			report.skip(i+2, reason)
			continue
		}
		configs = append(configs, cfg)
		report.Loaded++
	}
	return configs, report
}

func parseRow(t *fetcher.Table, row []string) (model.JurisdictionConfig, string) {
	get := func(col string) string {
		idx := t.Column(col)
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	code := CodeFor(get(ColState))
	if !twoLetter.MatchString(code) {
		return model.JurisdictionConfig{}, "invalid state " + get(ColState)
	}

	pattern := get(ColLicenseRegex)
	if pattern != "" {
		if _, err := regexp.Compile(pattern); err != nil {
			return model.JurisdictionConfig{}, "invalid LICENSE_REGEX for " + code + ": " + err.Error()
		}
	}

	cfg := model.JurisdictionConfig{
		Code:        code,
		Name:        get(ColName),
		LicenseType: get(ColLicenseType),
		Format: model.FormatRule{
			Pattern:     pattern,
			Description: get(ColLicenseFormat),
			Example:     get(ColExampleLicense),
			Prefix:      strings.ToUpper(get(ColLicensePrefix)),
		},
		URL:      get(ColVerificationURL),
		Method:   model.SubmitGET,
		Field:    get(ColLicenseField),
		Strategy: model.StrategyStatic,
		Selectors: model.Selectors{
			Input:  get(ColInputSelector),
			Submit: get(ColSubmitSelector),
		},
		Notes: get(ColNotes),
	}
	if cfg.LicenseType == "" {
		cfg.LicenseType = DefaultLicenseType
	}
	if strings.EqualFold(get(ColSubmitMethod), string(model.SubmitPOST)) {
		cfg.Method = model.SubmitPOST
	}
	if truthy(get(ColRequiresJavascript)) {
		cfg.Strategy = model.StrategyInteractive
	}
	if s := get(ColNameSelector); s != "" {
		cfg.Rules.Name = []model.ExtractionRule{{Kind: model.RuleSelector, Selector: s}}
	}
	if s := get(ColStatusSelector); s != "" {
		cfg.Rules.Status = []model.ExtractionRule{{Kind: model.RuleSelector, Selector: s}}
	}
	if s := get(ColExpirationSelector); s != "" {
		cfg.Rules.Expiration = []model.ExtractionRule{{Kind: model.RuleSelector, Selector: s}}
	}
	return cfg, ""
}

func truthy(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "TRUE", "1", "YES":
		return true
	}
	return false
}

// LoadCSV parses a CSV registry sheet and builds a Registry from it.
func LoadCSV(ctx context.Context, r io.Reader) (*Registry, LoadReport, error) {
	t, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{Comment: '#'})
	if err != nil {
		return nil, LoadReport{}, eris.Wrap(err, "registry: load csv")
	}
	configs, report := FromTable(t)
	return New(configs), report, nil
}

// LoadXLSX parses the first sheet of an XLSX workbook.
func LoadXLSX(path string) (*Registry, LoadReport, error) {
	t, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, LoadReport{}, eris.Wrapf(err, "registry: load xlsx %s", path)
	}
	configs, report := FromTable(t)
	return New(configs), report, nil
}

// LoadFile picks a parser from the file extension.
func LoadFile(ctx context.Context, path string) (*Registry, LoadReport, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadXLSX(path)
	case ".csv", ".txt":
		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			return nil, LoadReport{}, eris.Wrapf(err, "registry: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return LoadCSV(ctx, f)
	default:
		return nil, LoadReport{}, eris.Errorf("registry: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadURL downloads a CSV registry sheet.
func LoadURL(ctx context.Context, f fetcher.Fetcher, url string) (*Registry, LoadReport, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, LoadReport{}, eris.Wrapf(err, "registry: download %s", url)
	}
	defer body.Close() //nolint:errcheck
	return LoadCSV(ctx, body)
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry built from the embedded sheet covering the
// fifty states and DC. It is built once and shared.
func Default() *Registry {
	defaultOnce.Do(func() {
		f, err := dataFS.Open("data/jurisdictions.csv")
		if err != nil {
			zap.L().Error("registry: open embedded data", zap.Error(err))
			defaultReg = New(nil)
			return
		}
		defer f.Close() //nolint:errcheck
		reg, report, err := LoadCSV(context.Background(), f)
		if err != nil {
			zap.L().Error("registry: parse embedded data", zap.Error(err))
			defaultReg = New(nil)
			return
		}
		if report.Skipped > 0 {
			zap.L().Warn("registry: embedded data has skipped rows", zap.Strings("reasons", report.Reasons))
		}
		defaultReg = reg
	})
	return defaultReg
}
