package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/credroute/pkg/credential"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ArgumentError reports a malformed command-line argument.
type ArgumentError struct {
	Flag       string
	Value      string
	Message    string
	Suggestion string
}

func (e ArgumentError) Error() string {
	msg := fmt.Sprintf("Invalid --%s", e.Flag)
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

var suggestions = []struct {
	err        error
	message    string
	suggestion string
}{
	{credential.ErrItemNotFound, "No matching item", "Loosen the query or list candidates with 'credroute find --limit all --return attributes'"},
	{credential.ErrDuplicateItem, "An item with the same primary key already exists", "Use 'credroute update' to change the existing item"},
	{credential.ErrItemClassMissing, "The query has no item class", "Pass --class generic_password, internet_password, certificate, key or identity"},
	{credential.ErrReturnDataUnsupported, "Data cannot be returned for more than one item", "Drop --limit all, or ask for --return ref instead"},
	{credential.ErrInteractionNotAllowed, "The modern store is locked and may not prompt", "Unlock the login keyring, or run 'credroute doctor' to check the unlock capability"},
	{credential.ErrAuthenticationRequired, "The store needs authentication", "Unlock the legacy keychain and retry"},
	{credential.ErrMissingEntitlement, "The modern store refused access", "Check that this process may use the requested access group"},
	{credential.ErrInvalidValue, "The query is invalid", "Check attribute names and value types with 'credroute find --help'"},
	{credential.ErrParameter, "A parameter is invalid", ""},
	{credential.ErrBackendInternal, "A credential store failed internally", "Run 'credroute doctor' and retry with --debug"},
}

// CredentialError turns a router error into a user-facing error with a
// suggestion matched on the error taxonomy.
func CredentialError(operation string, err error) error {
	if err == nil {
		return nil
	}
	for _, s := range suggestions {
		if errors.Is(err, s.err) {
			return UserError{
				Message:    fmt.Sprintf("%s failed: %s", operation, s.message),
				Suggestion: s.suggestion,
				Details:    err.Error(),
				Err:        err,
			}
		}
	}
	return UserError{
		Message: fmt.Sprintf("%s failed", operation),
		Details: err.Error(),
		Err:     err,
	}
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	// Already a user-friendly error
	var (
		userErr   UserError
		configErr ConfigError
		argErr    ArgumentError
	)
	if errors.As(err, &userErr) || errors.As(err, &configErr) || errors.As(err, &argErr) {
		return err
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
