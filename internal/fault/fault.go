// Package fault defines the error taxonomy shared by the access gate and the
// commit pipeline.
//
// Every failure surfaced to a caller is a *Fault carrying a Code. Callers
// classify with the Is* predicates (errors.As under the hood), never by
// string matching. Faults caused by an external service wrap the underlying
// transport error so errors.Is/As keep working through the chain.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes a fault.
type Code string

const (
	// CodeValidation indicates malformed or missing input.
	CodeValidation Code = "VALIDATION"

	// CodeAuthorization indicates a missing capability, a missing approved
	// grant, or an ownership mismatch.
	CodeAuthorization Code = "AUTHORIZATION"

	// CodeNotFound indicates a referenced entity does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodePinning indicates the content pinning service failed.
	CodePinning Code = "PINNING_UNAVAILABLE"

	// CodeLedger indicates the ledger anchor service failed.
	CodeLedger Code = "LEDGER_UNAVAILABLE"
)

// Fault is a structured error with a code and optional diagnostic fields.
type Fault struct {
	// Code identifies the failure category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Details contains additional context (entity ids, step names).
	Details map[string]string

	// Cause is the wrapped underlying error, set for external-service faults.
	Cause error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (f *Fault) Unwrap() error {
	return f.Cause
}

// Validation creates a VALIDATION fault.
func Validation(format string, args ...any) *Fault {
	return &Fault{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Authorization creates an AUTHORIZATION fault.
func Authorization(format string, args ...any) *Fault {
	return &Fault{Code: CodeAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a NOT_FOUND fault for a missing entity.
func NotFound(entity, id string) *Fault {
	return &Fault{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]string{"entity": entity, "id": id},
	}
}

// Pinning creates a PINNING_UNAVAILABLE fault wrapping the transport error.
func Pinning(cause error) *Fault {
	return &Fault{
		Code:    CodePinning,
		Message: "content pinning failed",
		Cause:   cause,
	}
}

// Ledger creates a LEDGER_UNAVAILABLE fault wrapping the transport error.
// recordID identifies the Record row left in FAILED state, when one exists.
func Ledger(cause error, recordID string) *Fault {
	f := &Fault{
		Code:    CodeLedger,
		Message: "ledger anchor failed",
		Cause:   cause,
	}
	if recordID != "" {
		f.Details = map[string]string{"record_id": recordID}
	}
	return f
}

// codeOf extracts the fault code from err, or "" if err is not a Fault.
func codeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// IsValidation reports whether err is a validation fault.
func IsValidation(err error) bool { return codeOf(err) == CodeValidation }

// IsAuthorization reports whether err is an authorization fault.
func IsAuthorization(err error) bool { return codeOf(err) == CodeAuthorization }

// IsNotFound reports whether err is a not-found fault.
func IsNotFound(err error) bool { return codeOf(err) == CodeNotFound }

// IsPinning reports whether err is a pinning-service fault.
func IsPinning(err error) bool { return codeOf(err) == CodePinning }

// IsLedger reports whether err is a ledger-service fault.
func IsLedger(err error) bool { return codeOf(err) == CodeLedger }

// IsExternal reports whether err came from an external collaborator
// (pinning or ledger), as opposed to a caller mistake.
func IsExternal(err error) bool {
	c := codeOf(err)
	return c == CodePinning || c == CodeLedger
}
