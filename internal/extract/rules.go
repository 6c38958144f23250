package extract

import "github.com/sells-group/license-verify/internal/model"

// GenericNameRules are tried after a jurisdiction's own name rules.
func GenericNameRules() []model.ExtractionRule {
	return []model.ExtractionRule{
		{Kind: model.RuleSelectorSet, Selectors: []string{
			".business-name", ".licensee-name", ".license-name", "#businessName", "#licenseeName",
			"[id*=BusinessName]", "[id*=LicenseeName]", "[class*=business-name]", "[class*=licensee]",
		}},
		{Kind: model.RuleLabel, Labels: []string{
			"Business Name", "Licensee Name", "Company Name", "Entity Name", "Contractor Name",
			"Legal Name", "Doing Business As", "Licensee", "Name",
		}},
		{Kind: model.RulePattern, Patterns: []string{
			`(?im)^(?:business|licensee|company|entity|contractor|legal)\s+name\s*[:\-]\s*(.+)$`,
		}},
	}
}

// GenericStatusRules are tried after a jurisdiction's own status rules. The
// last rule is a bare vocabulary scan so "No records found" pages still
// resolve; it ignores search forms, whose options ("Active licenses only")
// are not results.
func GenericStatusRules() []model.ExtractionRule {
	return []model.ExtractionRule{
		{Kind: model.RuleSelectorSet, Selectors: []string{
			".license-status", ".status", "#licenseStatus", "#status",
			"[id*=LicenseStatus]", "[id*=Status]", "[class*=status]",
		}},
		{Kind: model.RuleLabel, Labels: []string{
			"License Status", "Licence Status", "Current Status", "Primary Status", "Status",
		}},
		{Kind: model.RulePattern, Patterns: []string{
			`(?im)^(?:license\s+|current\s+)?status\s*[:\-]\s*(.+)$`,
		}},
		{Kind: model.RulePattern, SkipForms: true, Patterns: []string{
			`(?i)\b(active|inactive|expired|lapsed|delinquent|suspended|revoked|invalid|not found|no records? found|no results)\b`,
		}},
	}
}

// GenericExpirationRules are tried after a jurisdiction's own expiration
// rules.
func GenericExpirationRules() []model.ExtractionRule {
	return []model.ExtractionRule{
		{Kind: model.RuleSelectorSet, Selectors: []string{
			".expiration-date", ".expiration", ".expires", "#expirationDate",
			"[id*=Expir]", "[class*=expir]",
		}},
		{Kind: model.RuleLabel, Labels: []string{
			"Expiration Date", "Expiration", "Expires", "Expires On", "Expiry Date",
			"Expire Date", "Exp Date", "Valid Through", "Valid Until",
		}},
		{Kind: model.RulePattern, Patterns: []string{
			`(?im)(?:expir\w*|valid\s+(?:through|until)|exp\.?\s+date)(?:\s+(?:date|on))?\s*[:\-]?\s*([A-Za-z0-9 ,./\-]{6,40})`,
		}},
	}
}
