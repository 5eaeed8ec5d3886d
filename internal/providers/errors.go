package providers

import (
	"fmt"
	"strings"

	dserrors "github.com/systmms/secretspec/internal/errors"
	pkgexec "github.com/systmms/secretspec/pkg/exec"
	"github.com/systmms/secretspec/pkg/provider"
)

// KeychainError wraps OS keychain errors with context
type KeychainError struct {
	Op      string // Operation: "query", "set", "validate"
	Service string
	Account string
	Err     error
}

func (e *KeychainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("keychain %s error for %s/%s: %v", e.Op, e.Service, e.Account, e.Err)
	}
	return fmt.Sprintf("keychain %s error for %s/%s", e.Op, e.Service, e.Account)
}

func (e *KeychainError) Unwrap() error {
	return e.Err
}

// Keychain sentinel errors
var (
	ErrKeychainItemNotFound        = fmt.Errorf("keychain item not found")
	ErrKeychainAccessDenied        = fmt.Errorf("keychain access denied")
	ErrKeychainUnsupportedPlatform = fmt.Errorf("keychain not supported on this platform")
	ErrKeychainHeadless            = fmt.Errorf("keychain requires GUI environment for authentication")
	ErrKeychainLocked              = fmt.Errorf("keychain is locked")
)

// AkeylessError wraps Akeyless SDK errors with context
type AkeylessError struct {
	Op      string // Operation: "auth", "fetch"
	Path    string
	Message string
	Err     error
}

func (e *AkeylessError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("akeyless %s error for %s: %s", e.Op, e.Path, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("akeyless %s error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("akeyless %s error: %s", e.Op, e.Message)
}

func (e *AkeylessError) Unwrap() error {
	return e.Err
}

// Akeyless sentinel errors
var (
	ErrAkeylessUnauthorized = fmt.Errorf("akeyless unauthorized")
	ErrAkeylessPermission   = fmt.Errorf("akeyless permission denied")
	ErrAkeylessRateLimited  = fmt.Errorf("akeyless rate limited")
)

// CLIError reports a CLI tool that ran and exited unsuccessfully for a
// reason that is neither "not found" nor an authentication problem.
type CLIError struct {
	Tool   string
	Op     string
	Stderr string
	Err    error
}

func (e *CLIError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Tool, e.Op)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// cliFailure classifies a failed CLI invocation. A missing binary or a
// stderr containing one of authMarkers makes the provider unavailable;
// anything else is returned as a CLIError.
func cliFailure(providerName, tool, op string, stderr []byte, err error, authMarkers ...string) error {
	if pkgexec.IsNotInstalled(err) {
		return provider.UnavailableError{
			Provider: providerName,
			Message:  tool + " is not installed",
			Err:      dserrors.WrapCommandNotFound(tool, err),
		}
	}
	text := string(stderr)
	for _, marker := range authMarkers {
		if containsFold(text, marker) {
			return provider.UnavailableError{
				Provider: providerName,
				Message:  strings.TrimSpace(text),
			}
		}
	}
	return &CLIError{Tool: tool, Op: op, Stderr: text, Err: err}
}

// mentions reports whether the CLI output contains any of the markers,
// ignoring case.
func mentions(output []byte, markers ...string) bool {
	text := string(output)
	for _, m := range markers {
		if containsFold(text, m) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// InfisicalError wraps a failed Infisical API call
type InfisicalError struct {
	Op         string // Operation: "auth", "fetch", "create", "update"
	StatusCode int
	Message    string
	Err        error
}

func (e *InfisicalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("infisical %s error (HTTP %d): %s", e.Op, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("infisical %s error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("infisical %s error: %s", e.Op, e.Message)
}

func (e *InfisicalError) Unwrap() error {
	return e.Err
}
