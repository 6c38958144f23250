package registry

import (
	"maps"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/license-verify/internal/model"
)

// Overrides maps jurisdiction codes to partial configs applied after lookup.
// Treat it as read-only once handed to a dispatcher.
type Overrides map[string]model.OverrideRecord

// Get returns the override for code, if any.
func (o Overrides) Get(code string) (model.OverrideRecord, bool) {
	rec, ok := o[strings.ToUpper(strings.TrimSpace(code))]
	return rec, ok
}

// With returns a copy of o with other's entries layered on top.
func (o Overrides) With(other Overrides) Overrides {
	out := maps.Clone(o)
	if out == nil {
		out = make(Overrides, len(other))
	}
	for code, rec := range other {
		out[strings.ToUpper(code)] = rec
	}
	return out
}

// LoadOverrides reads an override table from YAML. The file has a top-level
// "overrides" key mapping codes to records.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read overrides %s", path)
	}

	var wrapper struct {
		Overrides map[string]model.OverrideRecord `yaml:"overrides"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "registry: parse overrides")
	}

	out := make(Overrides, len(wrapper.Overrides))
	for code, rec := range wrapper.Overrides {
		c := CodeFor(code)
		if !twoLetter.MatchString(c) {
			return nil, eris.Errorf("registry: override for unknown jurisdiction %q", code)
		}
		out[c] = rec
	}
	return out, nil
}

func label(labels ...string) model.ExtractionRule {
	return model.ExtractionRule{Kind: model.RuleLabel, Labels: labels}
}

func css(selector string) model.ExtractionRule {
	return model.ExtractionRule{Kind: model.RuleSelector, Selector: selector}
}

// DefaultOverrides returns the built-in corrections for sites whose sheet
// entry is not enough on its own. Each call returns a fresh table.
func DefaultOverrides() Overrides {
	return Overrides{
		"CA": {
			Rules: model.FieldRules{
				Name:       []model.ExtractionRule{css("#MainContent_BusInfo"), label("Business Name")},
				Status:     []model.ExtractionRule{css("#MainContent_Status"), label("License Status")},
				Expiration: []model.ExtractionRule{css("#MainContent_ExpDt"), label("Expire Date", "Expiration Date")},
			},
			Notes: "CSLB check license; rate limited",
		},
		"FL": {
			URL:    "https://www.myfloridalicense.com/wl11.asp?mode=0&SID=&brd=&typ=",
			Method: model.SubmitPOST,
			Field:  "LicNbr",
			Form:   map[string]string{"hSearchType": "LicNbr", "hDivision": "ALL"},
			Rules: model.FieldRules{
				Name:       []model.ExtractionRule{label("Name:", "Licensee Name")},
				Status:     []model.ExtractionRule{label("License Status", "Status:")},
				Expiration: []model.ExtractionRule{label("Expires:", "Expiration Date")},
			},
		},
		"OR": {
			Rules: model.FieldRules{
				Name:   []model.ExtractionRule{css("#MainContent_lblEntityName"), label("Business Name")},
				Status: []model.ExtractionRule{css("#MainContent_lblStatus"), label("License Status")},
			},
		},
		"TX": {
			Rules: model.FieldRules{
				Expiration: []model.ExtractionRule{label("Expiration Date", "License Expires")},
			},
			Notes: "TDLR license search; rate limited",
		},
		"UT": {
			Rules: model.FieldRules{
				Status: []model.ExtractionRule{label("License Status", "Status")},
			},
		},
	}
}
