// Package judge converts raw judge service responses at the boundary and
// builds job requests for the external execution service.
package judge

import (
	"fmt"
)

// StatusKind is the closed set of outcomes this core reasons about.
// Raw integer codes from the judge are converted exactly once, at the
// callback boundary; aggregation logic never sees raw integers.
type StatusKind int

const (
	KindQueued StatusKind = iota + 1
	KindProcessing
	KindAccepted
	KindFailure
)

// Raw judge status codes (Judge0 taxonomy, consumed not redefined).
const (
	codeQueued     = 1
	codeProcessing = 2
	codeAccepted   = 3

	// Everything >= 4 is a failure variant: wrong answer, limit exceeded,
	// compile error, runtime error families, internal error.
	codeWrongAnswer       = 4
	codeTimeLimitExceeded = 5
	codeCompilationError  = 6
	codeInternalError     = 13
	codeExecFormatError   = 14
)

// Status is a judge status converted from its raw wire code.
// Code preserves the exact variant for persistence and display.
type Status struct {
	Kind StatusKind
	Code int
}

// FromCode converts a raw judge status code into a closed Status.
// Codes below 1 are invalid; codes above the known range still convert
// (any new failure variant the judge grows is a failure here too).
func FromCode(code int) (Status, error) {
	switch {
	case code == codeQueued:
		return Status{Kind: KindQueued, Code: code}, nil
	case code == codeProcessing:
		return Status{Kind: KindProcessing, Code: code}, nil
	case code == codeAccepted:
		return Status{Kind: KindAccepted, Code: code}, nil
	case code >= codeWrongAnswer:
		return Status{Kind: KindFailure, Code: code}, nil
	default:
		return Status{}, fmt.Errorf("invalid judge status code %d", code)
	}
}

// IsFailure reports whether this status denotes any failure variant.
func (s Status) IsFailure() bool {
	return s.Kind == KindFailure
}

// IsTerminal reports whether the judge finished with this testcase.
func (s Status) IsTerminal() bool {
	return s.Kind == KindAccepted || s.Kind == KindFailure
}

// Description returns a human-readable name for the raw code.
func (s Status) Description() string {
	switch s.Code {
	case codeQueued:
		return "In Queue"
	case codeProcessing:
		return "Processing"
	case codeAccepted:
		return "Accepted"
	case codeWrongAnswer:
		return "Wrong Answer"
	case codeTimeLimitExceeded:
		return "Time Limit Exceeded"
	case codeCompilationError:
		return "Compilation Error"
	case 7, 8, 9, 10, 11, 12:
		return "Runtime Error"
	case codeInternalError:
		return "Internal Error"
	case codeExecFormatError:
		return "Exec Format Error"
	default:
		return fmt.Sprintf("Failure (%d)", s.Code)
	}
}
