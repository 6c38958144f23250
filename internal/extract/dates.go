package extract

import (
	"regexp"
	"strings"
	"time"
)

const months = `(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?`

type dateForm struct {
	re      *regexp.Regexp
	layouts []string
	// clean rewrites the matched token before parsing.
	clean func(string) string
}

var dateForms = []dateForm{
	{re: regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`), layouts: []string{"2006-1-2"}},
	{re: regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`), layouts: []string{"1/2/2006"}},
	{re: regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{4}\b`), layouts: []string{"1-2-2006"}},
	{
		re:      regexp.MustCompile(`(?i)\b` + months + `\s+\d{1,2},?\s+\d{4}\b`),
		layouts: []string{"January 2 2006", "Jan 2 2006"},
		clean:   stripDatePunct,
	},
	{
		re:      regexp.MustCompile(`(?i)\b\d{1,2}\s+` + months + `,?\s+\d{4}\b`),
		layouts: []string{"2 January 2006", "2 Jan 2006"},
		clean:   stripDatePunct,
	},
	{re: regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2}\b`), layouts: []string{"1/2/06"}},
}

func stripDatePunct(s string) string {
	s = strings.NewReplacer(".", " ", ",", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeDate finds the earliest date token in s. Parseable tokens come
// back as YYYY-MM-DD; unparseable ones (e.g. "Sept 31 2027") come back
// verbatim. ok is false when s holds no date token at all.
func NormalizeDate(s string) (string, bool) {
	best, bestAt := -1, len(s)+1
	var token string
	for i, f := range dateForms {
		loc := f.re.FindStringIndex(s)
		if loc != nil && loc[0] < bestAt {
			best, bestAt, token = i, loc[0], s[loc[0]:loc[1]]
		}
	}
	if best < 0 {
		return "", false
	}

	f := dateForms[best]
	candidate := token
	if f.clean != nil {
		candidate = f.clean(candidate)
	}
	for _, layout := range f.layouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	return token, true
}
