package model

import "maps"

// SubmitMethod is how the identifier is sent to the lookup endpoint.
type SubmitMethod string

const (
	SubmitGET  SubmitMethod = "GET"
	SubmitPOST SubmitMethod = "POST"
)

// Strategy is the preferred fetch mechanism for a jurisdiction.
type Strategy string

const (
	StrategyStatic      Strategy = "static"
	StrategyInteractive Strategy = "interactive"
)

// FormatRule describes the expected shape of a license identifier.
type FormatRule struct {
	Pattern     string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Example     string `json:"example,omitempty" yaml:"example,omitempty"`
	// Prefix is prepended to bare-digit identifiers during normalization.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// IsZero reports whether no part of the rule is set.
func (f FormatRule) IsZero() bool {
	return f == FormatRule{}
}

// RuleKind tags the variant of an ExtractionRule.
type RuleKind string

const (
	// RuleSelector evaluates one configured CSS selector.
	RuleSelector RuleKind = "selector"
	// RuleSelectorSet evaluates a heuristic list of CSS selectors in order.
	RuleSelectorSet RuleKind = "selectors"
	// RuleLabel finds an element whose text is one of Labels and reads the
	// adjacent value cell.
	RuleLabel RuleKind = "label"
	// RulePattern applies regular expressions to the rendered page text.
	RulePattern RuleKind = "pattern"
)

// ExtractionRule is a single attempt at pulling one field out of a page.
// Only the fields relevant to Kind are consulted.
type ExtractionRule struct {
	Kind      RuleKind `json:"kind" yaml:"kind"`
	Selector  string   `json:"selector,omitempty" yaml:"selector,omitempty"`
	Attr      string   `json:"attr,omitempty" yaml:"attr,omitempty"`
	Selectors []string `json:"selectors,omitempty" yaml:"selectors,omitempty"`
	Labels    []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Patterns  []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	// SkipForms runs pattern rules over the page without its search forms.
	SkipForms bool `json:"skip_forms,omitempty" yaml:"skip_forms,omitempty"`
}

// FieldRules holds the ordered rule chain for each extracted field.
type FieldRules struct {
	Name       []ExtractionRule `json:"name,omitempty" yaml:"name,omitempty"`
	Status     []ExtractionRule `json:"status,omitempty" yaml:"status,omitempty"`
	Expiration []ExtractionRule `json:"expiration,omitempty" yaml:"expiration,omitempty"`
}

func (r FieldRules) clone() FieldRules {
	return FieldRules{
		Name:       cloneRules(r.Name),
		Status:     cloneRules(r.Status),
		Expiration: cloneRules(r.Expiration),
	}
}

func cloneRules(in []ExtractionRule) []ExtractionRule {
	if in == nil {
		return nil
	}
	out := make([]ExtractionRule, len(in))
	for i, r := range in {
		r.Selectors = append([]string(nil), r.Selectors...)
		r.Labels = append([]string(nil), r.Labels...)
		r.Patterns = append([]string(nil), r.Patterns...)
		out[i] = r
	}
	return out
}

// Selectors are interactive-fetch hints for locating the search form.
type Selectors struct {
	Input  string `json:"input,omitempty" yaml:"input,omitempty"`
	Submit string `json:"submit,omitempty" yaml:"submit,omitempty"`
}

// JurisdictionConfig is the immutable configuration record for one
// licensing authority.
type JurisdictionConfig struct {
	Code        string            `json:"code"`
	Name        string            `json:"name"`
	LicenseType string            `json:"type"`
	Format      FormatRule        `json:"format"`
	URL         string            `json:"verification_url"`
	Method      SubmitMethod      `json:"method"`
	Field       string            `json:"field"`
	Form        map[string]string `json:"form,omitempty"`
	Rules       FieldRules        `json:"rules"`
	Strategy    Strategy          `json:"strategy"`
	Selectors   Selectors         `json:"selectors"`
	Notes       string            `json:"notes,omitempty"`
}

// Clone returns a deep copy so callers can never alias registry state.
func (c JurisdictionConfig) Clone() JurisdictionConfig {
	out := c
	out.Form = maps.Clone(c.Form)
	out.Rules = c.Rules.clone()
	return out
}

// OverrideRecord is a partial JurisdictionConfig applied after registry
// lookup. Empty fields leave the base untouched.
type OverrideRecord struct {
	URL              string            `json:"verification_url,omitempty" yaml:"verification_url,omitempty"`
	Method           SubmitMethod      `json:"method,omitempty" yaml:"method,omitempty"`
	Field            string            `json:"field,omitempty" yaml:"field,omitempty"`
	Form             map[string]string `json:"form,omitempty" yaml:"form,omitempty"`
	Strategy         Strategy          `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	ForceInteractive *bool             `json:"force_interactive,omitempty" yaml:"force_interactive,omitempty"`
	Format           FormatRule        `json:"format,omitempty" yaml:"format,omitempty"`
	Rules            FieldRules        `json:"rules,omitempty" yaml:"rules,omitempty"`
	Selectors        Selectors         `json:"selectors,omitempty" yaml:"selectors,omitempty"`
	Notes            string            `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// ForcesInteractive reports whether the override demands browser automation.
func (o OverrideRecord) ForcesInteractive() bool {
	if o.ForceInteractive != nil && *o.ForceInteractive {
		return true
	}
	return o.Strategy == StrategyInteractive
}

// Merge returns base patched by o. The base is not mutated; a fresh merged
// view is returned on every call.
func Merge(base JurisdictionConfig, o OverrideRecord) JurisdictionConfig {
	out := base.Clone()
	if o.URL != "" {
		out.URL = o.URL
	}
	if o.Method != "" {
		out.Method = o.Method
	}
	if o.Field != "" {
		out.Field = o.Field
	}
	if len(o.Form) > 0 {
		out.Form = maps.Clone(o.Form)
	}
	if o.Strategy != "" {
		out.Strategy = o.Strategy
	}
	if o.ForcesInteractive() {
		out.Strategy = StrategyInteractive
	}
	if o.Format.Pattern != "" {
		out.Format.Pattern = o.Format.Pattern
	}
	if o.Format.Description != "" {
		out.Format.Description = o.Format.Description
	}
	if o.Format.Example != "" {
		out.Format.Example = o.Format.Example
	}
	if o.Format.Prefix != "" {
		out.Format.Prefix = o.Format.Prefix
	}
	overrides := o.Rules.clone()
	if len(overrides.Name) > 0 {
		out.Rules.Name = overrides.Name
	}
	if len(overrides.Status) > 0 {
		out.Rules.Status = overrides.Status
	}
	if len(overrides.Expiration) > 0 {
		out.Rules.Expiration = overrides.Expiration
	}
	if o.Selectors.Input != "" {
		out.Selectors.Input = o.Selectors.Input
	}
	if o.Selectors.Submit != "" {
		out.Selectors.Submit = o.Selectors.Submit
	}
	if o.Notes != "" {
		out.Notes = o.Notes
	}
	return out
}
