package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/asaidimu/go-anansi-bootstrap/core/applier"
	"github.com/asaidimu/go-anansi-bootstrap/core/manifest"
	"github.com/fatih/color"
)

// Exit codes of the anansi-bootstrap command.
const (
	ExitSuccess    = 0
	ExitConfig     = 1
	ExitConnection = 2
	ExitFailures   = 3
	ExitManifest   = 4
	ExitInternal   = 10
)

// cliError is an error meant for the operator: what went wrong, why, and how to
// fix it.
type cliError struct {
	Message  string
	Cause    string
	Fix      string
	ExitCode int
	Err      error
}

func (e *cliError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *cliError) Unwrap() error {
	return e.Err
}

type cliErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exitCode"`
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Pretty renders the error for a terminal.
func (e *cliError) Pretty() string {
	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

func configError(msg string, err error, fix string) *cliError {
	e := &cliError{Message: msg, Fix: fix, ExitCode: ExitConfig, Err: err}
	if err != nil {
		e.Cause = err.Error()
	}
	return e
}

// manifestError classifies a failure to open a manifest.
func manifestError(ref string, err error) *cliError {
	var invalid *manifest.ValidationError
	switch {
	case errors.As(err, &invalid):
		lines := make([]string, len(invalid.Issues))
		for i, issue := range invalid.Issues {
			lines[i] = issue.String()
		}
		return &cliError{
			Message:  fmt.Sprintf("Manifest %s is invalid", ref),
			Cause:    strings.Join(lines, "; "),
			Fix:      "Correct the listed entries and run 'anansi-bootstrap validate' again",
			ExitCode: ExitManifest,
			Err:      err,
		}
	case errors.Is(err, os.ErrNotExist):
		return configError(fmt.Sprintf("Manifest %s not found", ref), err,
			"Pass an existing file, an s3:// object or one of the names printed by 'anansi-bootstrap list'")
	}
	return &cliError{
		Message:  fmt.Sprintf("Cannot load manifest %s", ref),
		Cause:    err.Error(),
		Fix:      "Check that the manifest is well-formed YAML or JSON",
		ExitCode: ExitManifest,
		Err:      err,
	}
}

// applyError classifies the error returned by a run.
func applyError(err error) *cliError {
	var connErr *applier.ConnectionError
	switch {
	case errors.As(err, &connErr):
		return &cliError{
			Message:  "Cannot reach the database",
			Cause:    connErr.Err.Error(),
			Fix:      "Check --uri and the credentials, then rerun; entries already applied are kept",
			ExitCode: ExitConnection,
			Err:      err,
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &cliError{
			Message:  "Run interrupted before every entry was applied",
			Cause:    err.Error(),
			Fix:      "Rerun; entries already applied are reported as already present",
			ExitCode: ExitConnection,
			Err:      err,
		}
	}
	return &cliError{Message: "Unexpected failure", Cause: err.Error(), ExitCode: ExitInternal, Err: err}
}

// reportError prints err to w and returns its exit code.
func reportError(w io.Writer, err error, jsonOutput bool) int {
	var ce *cliError
	if !errors.As(err, &ce) {
		ce = &cliError{Message: "Unexpected failure", Cause: err.Error(), ExitCode: ExitInternal, Err: err}
	}
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(cliErrorJSON{Error: ce.Message, Cause: ce.Cause, Fix: ce.Fix, ExitCode: ce.ExitCode})
	} else {
		fmt.Fprint(w, ce.Pretty())
	}
	return ce.ExitCode
}
