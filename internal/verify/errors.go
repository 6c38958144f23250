package verify

import "github.com/rotisserie/eris"

// Only ErrInvalidInput is ever returned by Verify. Every other failure is
// reported as a result status so a single call's outcome is always data.
var (
	// ErrInvalidInput means the jurisdiction or identifier was missing.
	ErrInvalidInput = eris.New("invalid input")
	// ErrUnsupportedJurisdiction marks a code with no registry entry. Verify
	// reports it as StatusUnsupported; Jurisdiction returns it directly.
	ErrUnsupportedJurisdiction = eris.New("unsupported jurisdiction")
)

const (
	msgUnsupported = "jurisdiction not in configuration"
	msgCircuitOpen = "circuit open"
)
