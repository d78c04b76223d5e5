package core

import "fmt"

// Status represents the execution status of a slip item or gate
type Status int

const (
	StatusPending Status = iota // Not yet started
	StatusRunning               // Currently executing
	StatusPassed                // Side control clicked
	StatusFailed                // Player card missing or an action raised
	StatusSkipped               // Run cancelled before the item started
	StatusWarned                // Completed with a fallback (card clicked instead of a side control)
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusWarned:
		return "warned"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its string form in JSON reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusPending; st <= StatusWarned; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// IsTerminal returns true if the status is a final state
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped, StatusWarned:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status indicates success (passed or warned)
func (s Status) IsSuccess() bool {
	return s == StatusPassed || s == StatusWarned
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryDecode                          // Slip payload malformed or wrong shape
	ErrCategoryElement                         // Tab, card or side control absent
	ErrCategoryTimeout                         // Bounded poll exhausted
	ErrCategoryLaunch                          // Browser or session could not start
	ErrCategoryNavigation                      // Page load or route change failed
	ErrCategoryConfig                          // Invalid configuration
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryDecode:
		return "decode"
	case ErrCategoryElement:
		return "element"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryLaunch:
		return "launch"
	case ErrCategoryNavigation:
		return "navigation"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}
