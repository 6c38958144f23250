package model

import "time"

// Unknown is the sentinel used for holder name and expiration when a value
// could not be determined. Consumers never branch on missing keys.
const Unknown = "Unknown"

// Status is the closed set of verification outcomes.
type Status string

const (
	StatusActive      Status = "Active"
	StatusExpired     Status = "Expired"
	StatusInvalid     Status = "Invalid"
	StatusSuspended   Status = "Suspended"
	StatusUnknown     Status = "Unknown"
	StatusUnsupported Status = "Unsupported"
	StatusError       Status = "Error"
)

// AllStatuses returns every defined status.
func AllStatuses() []Status {
	return []Status{
		StatusActive,
		StatusExpired,
		StatusInvalid,
		StatusSuspended,
		StatusUnknown,
		StatusUnsupported,
		StatusError,
	}
}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	for _, v := range AllStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// Conclusive reports whether the authority gave a definite answer.
func (s Status) Conclusive() bool {
	switch s {
	case StatusActive, StatusExpired, StatusInvalid, StatusSuspended:
		return true
	}
	return false
}

// FetchMethod identifies how a result page was obtained. FetchCache is
// only a metrics label: a cached result keeps the method that fetched it.
type FetchMethod string

const (
	FetchStatic      FetchMethod = "static"
	FetchInteractive FetchMethod = "interactive"
	FetchCache       FetchMethod = "cache"
	FetchNone        FetchMethod = "none"
)

// VerificationRequest is a single lookup. Hint is an optional holder-name hint.
type VerificationRequest struct {
	Jurisdiction string `json:"state"`
	Identifier   string `json:"license_number"`
	Hint         string `json:"business_name,omitempty"`
}

// FormatCheck is the advisory outcome of checking an identifier against a
// jurisdiction's shape rule.
type FormatCheck struct {
	Valid    bool   `json:"valid"`
	Expected string `json:"expected_format,omitempty"`
	Example  string `json:"example,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// Evidence points at a rendered-page snapshot captured during an
// interactive fetch.
type Evidence struct {
	Key        string    `json:"key"`
	Path       string    `json:"path"`
	Bytes      int       `json:"bytes"`
	CapturedAt time.Time `json:"captured_at"`
}

// VerificationResult is the normalized outcome of a verification call.
type VerificationResult struct {
	Jurisdiction    string      `json:"state"`
	Identifier      string      `json:"license_number"`
	HolderName      string      `json:"business_name"`
	Status          Status      `json:"status"`
	Expiration      string      `json:"expires"`
	FormatValid     bool        `json:"format_valid"`
	Format          FormatCheck `json:"format_check"`
	Method          FetchMethod `json:"method"`
	Evidence        *Evidence   `json:"evidence,omitempty"`
	Message         string      `json:"message,omitempty"`
	Cached          bool        `json:"cached"`
	Verified        bool        `json:"verified"`
	VerificationURL string      `json:"verification_url,omitempty"`
	CheckedAt       time.Time   `json:"checked_at"`
}

// NewResult returns a result with the sentinel defaults applied.
func NewResult(jurisdiction, identifier string, status Status) VerificationResult {
	return VerificationResult{
		Jurisdiction: jurisdiction,
		Identifier:   identifier,
		HolderName:   Unknown,
		Status:       status,
		Expiration:   Unknown,
		Method:       FetchNone,
		Verified:     status.Conclusive(),
		CheckedAt:    time.Now().UTC(),
	}
}

// Fill restores sentinel defaults on fields that are empty or outside the
// closed set. Used after decoding cached entries.
func (r *VerificationResult) Fill() {
	if r.HolderName == "" {
		r.HolderName = Unknown
	}
	if r.Expiration == "" {
		r.Expiration = Unknown
	}
	if !r.Status.Valid() {
		r.Status = StatusUnknown
	}
	if r.Method == "" {
		r.Method = FetchNone
	}
	r.Verified = r.Status.Conclusive()
}
