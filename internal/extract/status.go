package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/license-verify/internal/model"
)

// Status vocabularies. Matching is case-insensitive on word boundaries so
// "invalid" never reads as "valid" and "inactive" never as "active".
var (
	NegatedActiveTerms = []string{
		"inactive", "not active", "non-active", "non active", "no longer active",
		"not current", "not in good standing",
	}
	NegatedValidTerms = []string{"not valid", "not licensed", "unlicensed"}
	ActiveTerms       = []string{"active", "in good standing"}
	// ActiveValues only count as Active when they are the whole value.
	// Inside longer text they are usually labels ("Current Status",
	// "Valid Through").
	ActiveValues = []string{"current", "valid", "licensed", "clear"}
	ExpiredTerms = []string{"expired", "lapsed", "delinquent", "not renewed", "expire"}
	InvalidTerms = []string{
		"invalid", "not found", "no record", "no records", "no results", "no match",
		"no matches", "does not exist", "void", "cancelled", "canceled",
	}
	SuspendedTerms = []string{
		"suspended", "suspension", "revoked", "revocation", "probation",
		"disciplinary", "surrendered", "terminated",
	}
)

type statusClass struct {
	re     *regexp.Regexp
	status model.Status
}

// statusClasses are consulted in precedence order; the first match wins.
var statusClasses = []statusClass{
	{termRegexp(NegatedActiveTerms), model.StatusExpired},
	{termRegexp(NegatedValidTerms), model.StatusInvalid},
	{termRegexp(ActiveTerms), model.StatusActive},
	{termRegexp(ExpiredTerms), model.StatusExpired},
	{termRegexp(InvalidTerms), model.StatusInvalid},
	{termRegexp(SuspendedTerms), model.StatusSuspended},
}

var (
	activeValueRe = regexp.MustCompile(`(?i)^(?:` + strings.Join(ActiveValues, "|") + `)$`)
	// statusLabelRe matches a status label on its own: "Status",
	// "Current Status:", "License Status".
	statusLabelRe = regexp.MustCompile(`(?i)^(?:(?:license|licence|current|primary|registration|account)\s+)*status\s*:?$`)
	// statusPrefixRe matches a leading "Current Status:" style label.
	statusPrefixRe = regexp.MustCompile(`(?i)^(?:(?:license|licence|current|primary|registration|account)\s+)*status\s*[:\-]\s*`)
)

// IsStatusLabel reports whether text is a status label rather than a value.
func IsStatusLabel(text string) bool {
	return statusLabelRe.MatchString(collapse(text))
}

// stripStatusLabel removes a leading status label from text.
func stripStatusLabel(text string) string {
	return strings.TrimSpace(statusPrefixRe.ReplaceAllString(text, ""))
}

func termRegexp(terms []string) *regexp.Regexp {
	alts := make([]string, len(terms))
	for i, t := range terms {
		words := strings.Fields(t)
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		alts[i] = strings.Join(words, `[\s-]+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// NormalizeStatus maps free text from a results page onto the closed status
// set. A leading status label is ignored. Precedence is Active, then
// Expired, Invalid, Suspended; text that matches nothing is Unknown.
func NormalizeStatus(text string) model.Status {
	t := stripStatusLabel(collapse(text))
	if t == "" || IsStatusLabel(t) {
		return model.StatusUnknown
	}
	if activeValueRe.MatchString(strings.Trim(t, " .;")) {
		return model.StatusActive
	}
	for _, c := range statusClasses {
		if c.re.MatchString(t) {
			return c.status
		}
	}
	return model.StatusUnknown
}
