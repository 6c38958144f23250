package registry

import "strings"

// stateNames maps lower-cased full jurisdiction names to their codes.
var stateNames = map[string]string{
	"alabama":              "AL",
	"alaska":               "AK",
	"arizona":              "AZ",
	"arkansas":             "AR",
	"california":           "CA",
	"colorado":             "CO",
	"connecticut":          "CT",
	"delaware":             "DE",
	"district of columbia": "DC",
	"washington dc":        "DC",
	"washington d.c.":      "DC",
	"florida":              "FL",
	"georgia":              "GA",
	"hawaii":               "HI",
	"idaho":                "ID",
	"illinois":             "IL",
	"indiana":              "IN",
	"iowa":                 "IA",
	"kansas":               "KS",
	"kentucky":             "KY",
	"louisiana":            "LA",
	"maine":                "ME",
	"maryland":             "MD",
	"massachusetts":        "MA",
	"michigan":             "MI",
	"minnesota":            "MN",
	"mississippi":          "MS",
	"missouri":             "MO",
	"montana":              "MT",
	"nebraska":             "NE",
	"nevada":               "NV",
	"new hampshire":        "NH",
	"new jersey":           "NJ",
	"new mexico":           "NM",
	"new york":             "NY",
	"north carolina":       "NC",
	"north dakota":         "ND",
	"ohio":                 "OH",
	"oklahoma":             "OK",
	"oregon":               "OR",
	"pennsylvania":         "PA",
	"rhode island":         "RI",
	"south carolina":       "SC",
	"south dakota":         "SD",
	"tennessee":            "TN",
	"texas":                "TX",
	"utah":                 "UT",
	"vermont":              "VT",
	"virginia":             "VA",
	"washington":           "WA",
	"west virginia":        "WV",
	"wisconsin":            "WI",
	"wyoming":              "WY",
}

// CodeFor resolves a code or full name to an upper-case code. Unknown names
// are returned upper-cased and trimmed so the caller can still attempt a
// direct lookup.
func CodeFor(codeOrName string) string {
	s := strings.Join(strings.Fields(strings.ToLower(codeOrName)), " ")
	if code, ok := stateNames[s]; ok {
		return code
	}
	return strings.ToUpper(s)
}

// NameFor returns the canonical full name for a code, or "" if none is known.
func NameFor(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	best := ""
	for name, c := range stateNames {
		if c != code {
			continue
		}
		// Prefer the longest alias ("district of columbia" over "washington dc").
		if len(name) > len(best) {
			best = name
		}
	}
	return titleName(best)
}

func titleName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "of" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
