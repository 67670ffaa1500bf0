package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/medledger/medledger/internal/fault"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Domain failure (authorization denied, commit failed, etc.)
	ExitCommandError = 2 // Command error (bad flags, missing configuration, etc.)
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error. Errors without an
// explicit code map to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// Response is the standard JSON envelope for CLI output.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError is the error structure inside a Response.
type ResponseError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Success outputs a result in the configured format. In text mode the
// caller usually prints its own lines and passes a short summary here.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// SuccessJSON outputs data as the JSON envelope regardless of any text
// rendering the caller did. Used by commands whose text mode is custom.
func (f *OutputFormatter) SuccessJSON(data any) error {
	return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
}

// Fail renders err in the configured format and returns an ExitError so
// the process exits non-zero. Typed faults surface their code and
// details.
func (f *OutputFormatter) Fail(err error) error {
	code := "INTERNAL"
	var details map[string]string
	var flt *fault.Fault
	if errors.As(err, &flt) {
		code = string(flt.Code)
		details = flt.Details
	}

	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: err.Error(), Details: details},
		})
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %v\n", code, err)
	}
	return &ExitError{Code: ExitFailure, Message: err.Error(), Err: err}
}

// VerboseLog outputs a diagnostic line only when verbose mode is on.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.Writer, format+"\n", args...)
}
