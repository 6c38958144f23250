package verify

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/license-verify/internal/format"
	"github.com/sells-group/license-verify/internal/model"
)

// JurisdictionInfo is the public listing entry for one jurisdiction.
type JurisdictionInfo struct {
	Type    string `json:"type"`
	Format  string `json:"format"`
	Example string `json:"example"`
}

// JurisdictionDetail is the full public view of one jurisdiction.
type JurisdictionDetail struct {
	Code             string `json:"state"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	Format           string `json:"format"`
	Example          string `json:"example"`
	Pattern          string `json:"pattern,omitempty"`
	VerificationURL  string `json:"verification_url"`
	Strategy         string `json:"strategy"`
	ForceInteractive bool   `json:"force_interactive"`
	Notes            string `json:"notes,omitempty"`
}

// FormatResult is the outcome of CheckFormat.
type FormatResult struct {
	Jurisdiction string `json:"state"`
	Identifier   string `json:"license_number"`
	model.FormatCheck
}

// CheckFormat normalizes identifier and checks it against the
// jurisdiction's shape rule without touching the network.
func (s *Service) CheckFormat(jurisdiction, identifier string) (FormatResult, error) {
	if strings.TrimSpace(jurisdiction) == "" || strings.TrimSpace(identifier) == "" {
		return FormatResult{}, eris.Wrap(ErrInvalidInput, "jurisdiction and license number are required")
	}
	cfg, err := s.resolve(jurisdiction)
	if err != nil {
		return FormatResult{}, err
	}
	id := format.Normalize(&cfg, identifier)
	return FormatResult{Jurisdiction: cfg.Code, Identifier: id, FormatCheck: format.Check(&cfg, id)}, nil
}

// ListJurisdictions describes every supported jurisdiction by code.
func (s *Service) ListJurisdictions() map[string]JurisdictionInfo {
	codes := s.reg.All()
	out := make(map[string]JurisdictionInfo, len(codes))
	for _, code := range codes {
		cfg, err := s.resolve(code)
		if err != nil {
			continue
		}
		out[code] = JurisdictionInfo{
			Type:    cfg.LicenseType,
			Format:  cfg.Format.Description,
			Example: cfg.Format.Example,
		}
	}
	return out
}

// Jurisdiction returns the detail view for a code or name.
func (s *Service) Jurisdiction(codeOrName string) (JurisdictionDetail, error) {
	cfg, err := s.resolve(codeOrName)
	if err != nil {
		return JurisdictionDetail{}, err
	}
	forced := s.Forced(cfg.Code)
	strat := string(cfg.Strategy)
	if forced {
		strat = string(model.StrategyInteractive)
	}
	return JurisdictionDetail{
		Code:             cfg.Code,
		Name:             cfg.Name,
		Type:             cfg.LicenseType,
		Format:           cfg.Format.Description,
		Example:          cfg.Format.Example,
		Pattern:          cfg.Format.Pattern,
		VerificationURL:  cfg.URL,
		Strategy:         strat,
		ForceInteractive: forced,
		Notes:            cfg.Notes,
	}, nil
}

// resolve returns the override-merged config for a code or name.
func (s *Service) resolve(codeOrName string) (model.JurisdictionConfig, error) {
	base, ok := s.reg.Lookup(codeOrName)
	if !ok {
		return model.JurisdictionConfig{}, eris.Wrapf(ErrUnsupportedJurisdiction, "%q", strings.TrimSpace(codeOrName))
	}
	if o, ok := s.overrides.Get(base.Code); ok {
		return model.Merge(base, o), nil
	}
	return base, nil
}
