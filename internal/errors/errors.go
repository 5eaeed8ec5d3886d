package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/secretspec/pkg/provider"
)

// Exit codes returned by the secretspec binary. Scripts branch on these,
// so the values are part of the public contract.
const (
	ExitOK                  = 0
	ExitFailure             = 1
	ExitConfig              = 2
	ExitMissingSecrets      = 3
	ExitProviderUnavailable = 4
	ExitWriteRefused        = 5
	ExitPartialImport       = 6
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

// CommandError represents a command execution error
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ParseError reports a malformed declaration or user config file.
// Line and Column are zero when the decoder did not report a position.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e ParseError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
		if e.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, e.Column)
		}
	}
	msg := fmt.Sprintf("failed to parse %s", loc)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// CyclicInheritanceError is returned when an extends chain revisits a file
// that is already being resolved. Chain lists the files in visit order,
// ending with the repeated one.
type CyclicInheritanceError struct {
	Chain []string
}

func (e CyclicInheritanceError) Error() string {
	return "cyclic inheritance: " + strings.Join(e.Chain, " -> ")
}

// MissingParentError is returned when an extends entry cannot be loaded.
type MissingParentError struct {
	From string
	Path string
	Err  error
}

func (e MissingParentError) Error() string {
	msg := fmt.Sprintf("%s extends %s, which could not be loaded", e.From, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e MissingParentError) Unwrap() error {
	return e.Err
}

// DuplicateProviderError is raised while building a provider registry when
// two backends claim the same scheme.
type DuplicateProviderError struct {
	Scheme string
}

func (e DuplicateProviderError) Error() string {
	return fmt.Sprintf("provider scheme %q registered more than once", e.Scheme)
}

// MissingRequiredError lists every required secret that did not resolve.
type MissingRequiredError struct {
	Profile  string
	Provider string
	Keys     []string
}

func (e MissingRequiredError) Error() string {
	keys := append([]string(nil), e.Keys...)
	sort.Strings(keys)
	return fmt.Sprintf("%d required secret(s) missing in profile %s (provider %s): %s",
		len(keys), e.Profile, e.Provider, strings.Join(keys, ", "))
}

// SubprocessError carries a non-zero exit status from the command started by run.
type SubprocessError struct {
	Command  string
	ExitCode int
}

func (e SubprocessError) Error() string {
	return fmt.Sprintf("command %s exited with status %d", e.Command, e.ExitCode)
}

// ImportIncompleteError is returned by import when at least one key failed
// to migrate. Keys that succeeded stay migrated.
type ImportIncompleteError struct {
	From     string
	To       string
	Imported int
	Failed   []string
}

func (e ImportIncompleteError) Error() string {
	return fmt.Sprintf("import from %s to %s incomplete: %d imported, %d failed (%s)",
		e.From, e.To, e.Imported, len(e.Failed), strings.Join(e.Failed, ", "))
}

// ExitCode maps an error to the process exit status. Configuration problems,
// missing secrets, unreachable backends and refused writes each get their
// own class so that calling scripts can tell them apart.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var sub SubprocessError
	if errors.As(err, &sub) {
		if sub.ExitCode == 0 {
			return ExitFailure
		}
		return sub.ExitCode
	}

	var (
		parse      ParseError
		cycle      CyclicInheritanceError
		parent     MissingParentError
		dup        DuplicateProviderError
		missing    MissingRequiredError
		incomplete ImportIncompleteError
	)
	switch {
	case errors.As(err, &missing):
		return ExitMissingSecrets
	case provider.IsUnavailable(err):
		return ExitProviderUnavailable
	case provider.IsReadOnly(err), provider.IsWriteRejected(err):
		return ExitWriteRefused
	case errors.As(err, &incomplete):
		return ExitPartialImport
	case errors.As(err, &parse), errors.As(err, &cycle), errors.As(err, &parent),
		errors.As(err, &dup), provider.IsInvalidURI(err):
		return ExitConfig
	}

	return ExitFailure
}

// ProviderError enhances provider-specific errors with context
func ProviderError(providerName string, operation string, err error) error {
	suggestion := getProviderSuggestion(providerName, err)

	return UserError{
		Message:    fmt.Sprintf("%s provider error during %s", providerName, operation),
		Details:    err.Error(),
		Suggestion: suggestion,
		Err:        err,
	}
}

// getProviderSuggestion returns helpful suggestions based on provider and error
func getProviderSuggestion(providerName string, err error) string {
	errStr := err.Error()

	switch providerName {
	case "bitwarden":
		if strings.Contains(errStr, "not logged in") {
			return "Run 'bw login' to authenticate with Bitwarden"
		}
		if strings.Contains(strings.ToLower(errStr), "vault is locked") {
			return "Run 'bw unlock' and export the BW_SESSION environment variable"
		}
		if strings.Contains(errStr, "command not found") || strings.Contains(errStr, "executable file not found") {
			return "Install Bitwarden CLI: https://bitwarden.com/help/cli/"
		}

	case "bws":
		if strings.Contains(errStr, "Access token") || strings.Contains(errStr, "Unauthorized") {
			return "Export BWS_ACCESS_TOKEN or pass it as bws://?token=<token>"
		}

	case "onepassword", "onepassword+token":
		if strings.Contains(errStr, "not signed in") || strings.Contains(errStr, "not currently signed in") {
			return "Run 'op signin' to authenticate with 1Password"
		}
		if strings.Contains(errStr, "session expired") {
			return "Your 1Password session has expired. Run 'op signin' again"
		}
		if strings.Contains(errStr, "executable file not found") {
			return "Install 1Password CLI: https://developer.1password.com/docs/cli/get-started/"
		}

	case "lastpass":
		if strings.Contains(errStr, "Could not find decryption key") || strings.Contains(errStr, "Not logged in") {
			return "Run 'lpass login <email>' to authenticate with LastPass"
		}

	case "pass":
		if strings.Contains(errStr, "gpg") {
			return "Check that your GPG agent is running and the store key is available"
		}

	case "doppler":
		if strings.Contains(errStr, "authenticate") || strings.Contains(errStr, "token") {
			return "Run 'doppler login' or export DOPPLER_TOKEN with a service token"
		}

	case "infisical":
		if strings.Contains(errStr, "HTTP 401") || strings.Contains(errStr, "no credentials") {
			return "Export INFISICAL_TOKEN or INFISICAL_UNIVERSAL_AUTH_CLIENT_ID and INFISICAL_UNIVERSAL_AUTH_CLIENT_SECRET"
		}
		if strings.Contains(errStr, "HTTP 403") {
			return "Give the machine identity access to this project and environment"
		}

	case "keyring":
		if strings.Contains(errStr, "dbus") || strings.Contains(errStr, "Secret Service") {
			return "Start a Secret Service implementation (gnome-keyring, KWallet) or choose another provider"
		}

	case "aws-secretsmanager", "aws-ssm":
		if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for the secretspec/ prefix"
		}
		if strings.Contains(errStr, "ThrottlingException") {
			return "AWS rate limit exceeded. Wait a moment and try again"
		}

	case "gcp-secretmanager":
		if strings.Contains(errStr, "PermissionDenied") || strings.Contains(errStr, "Unauthenticated") {
			return "Run 'gcloud auth application-default login' or check IAM roles for Secret Manager"
		}

	case "azure-keyvault":
		if strings.Contains(errStr, "401") || strings.Contains(errStr, "403") {
			return "Run 'az login' and check the Key Vault access policy for get/set on secrets"
		}

	case "vault":
		if strings.Contains(errStr, "permission denied") {
			return "Check VAULT_TOKEN and that its policy grants read/create on the secretspec/ path"
		}

	case "akeyless":
		if strings.Contains(errStr, "auth") {
			return "Export AKEYLESS_ACCESS_ID and AKEYLESS_ACCESS_KEY, or pass ?access_type= for cloud auth"
		}

	case "age":
		if strings.Contains(errStr, "identity") {
			return "Pass ?identity=<key file> or export SECRETSPEC_AGE_IDENTITY"
		}
	}

	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and provider configuration"
	}

	return ""
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"npm":    "Install Node.js from https://nodejs.org/",
		"yarn":   "Install Yarn from https://yarnpkg.com/",
		"python": "Install Python from https://python.org/",
		"go":     "Install Go from https://golang.org/",
		"cargo":  "Install Rust from https://rustup.rs/",
		"docker": "Install Docker from https://docker.com/",
		"op":     "Install 1Password CLI: https://developer.1password.com/docs/cli/get-started/",
		"bw":     "Install Bitwarden CLI: https://bitwarden.com/help/cli/",
		"bws":    "Install Bitwarden Secrets Manager CLI: https://bitwarden.com/help/secrets-manager-cli/",
		"lpass":  "Install LastPass CLI: https://github.com/lastpass/lastpass-cli",
		"pass":   "Install pass: https://www.passwordstore.org/",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	return CommandError{
		Command:    command,
		Message:    "command not found",
		Suggestion: suggestion,
	}
}

// SimplifyError simplifies complex error messages for users. Errors that
// already belong to the taxonomy are returned unchanged.
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	switch err.(type) {
	case UserError, ConfigError, CommandError, ParseError, CyclicInheritanceError,
		MissingParentError, MissingRequiredError, SubprocessError, ImportIncompleteError:
		return err
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

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
