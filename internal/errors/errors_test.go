package errors_test

import (
	stderrors "errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/pkg/provider"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
	assert.Contains(t, errMsg, "💡")
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "defaults.provider",
		Value:      "://nope",
		Message:    "invalid provider URI",
		Suggestion: "Use a URI such as keyring:// or onepassword://Vault",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "defaults.provider")
	assert.Contains(t, errMsg, "://nope")
	assert.Contains(t, errMsg, "invalid provider URI")
	assert.Contains(t, errMsg, "keyring://")
}

// TestCommandErrorFormatting verifies CommandError includes exit code
func TestCommandErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.CommandError{
		Command:    "bw list items",
		ExitCode:   1,
		Message:    "Vault is locked",
		Suggestion: "Run 'bw unlock'",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "bw list items")
	assert.Contains(t, errMsg, "exit code: 1")
	assert.Contains(t, errMsg, "Vault is locked")
	assert.Contains(t, errMsg, "bw unlock")
}

func TestParseErrorFormatting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  errors.ParseError
		want string
	}{
		{errors.ParseError{Path: "secretspec.toml", Message: "bad"}, "failed to parse secretspec.toml: bad"},
		{errors.ParseError{Path: "secretspec.toml", Line: 4, Message: "bad"}, "failed to parse secretspec.toml:4: bad"},
		{errors.ParseError{Path: "secretspec.toml", Line: 4, Column: 7, Message: "bad"}, "failed to parse secretspec.toml:4:7: bad"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}

	base := stderrors.New("toml: expected '='")
	err := errors.ParseError{Path: "a.toml", Err: base}
	assert.ErrorIs(t, err, base)
}

func TestTaxonomyMessages(t *testing.T) {
	t.Parallel()

	cycle := errors.CyclicInheritanceError{Chain: []string{"/a.toml", "/b.toml", "/a.toml"}}
	assert.Equal(t, "cyclic inheritance: /a.toml -> /b.toml -> /a.toml", cycle.Error())

	parent := errors.MissingParentError{From: "/app/secretspec.toml", Path: "/shared/base.toml", Err: os.ErrNotExist}
	assert.Contains(t, parent.Error(), "/app/secretspec.toml extends /shared/base.toml")
	assert.ErrorIs(t, parent, os.ErrNotExist)

	missing := errors.MissingRequiredError{Profile: "production", Provider: "keyring", Keys: []string{"REDIS_URL", "API_KEY"}}
	assert.Equal(t, "2 required secret(s) missing in profile production (provider keyring): API_KEY, REDIS_URL", missing.Error())
	assert.Equal(t, []string{"REDIS_URL", "API_KEY"}, missing.Keys, "Error does not reorder the caller's slice")

	assert.Equal(t, `provider scheme "keyring" registered more than once`, errors.DuplicateProviderError{Scheme: "keyring"}.Error())
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, errors.ExitOK},
		{"plain", stderrors.New("boom"), errors.ExitFailure},
		{"parse", errors.ParseError{Path: "x"}, errors.ExitConfig},
		{"cycle", errors.CyclicInheritanceError{Chain: []string{"a", "a"}}, errors.ExitConfig},
		{"missing parent", errors.MissingParentError{From: "a", Path: "b"}, errors.ExitConfig},
		{"duplicate provider", errors.DuplicateProviderError{Scheme: "x"}, errors.ExitConfig},
		{"invalid uri", provider.InvalidURIError{URI: "x"}, errors.ExitConfig},
		{"missing required", errors.MissingRequiredError{Keys: []string{"A"}}, errors.ExitMissingSecrets},
		{"unavailable", provider.UnavailableError{Provider: "keyring"}, errors.ExitProviderUnavailable},
		{"read only", provider.ReadOnlyError{Provider: "env"}, errors.ExitWriteRefused},
		{"write rejected", provider.WriteRejectedError{Provider: "vault", Key: "K"}, errors.ExitWriteRefused},
		{"partial import", errors.ImportIncompleteError{Failed: []string{"A"}}, errors.ExitPartialImport},
		{"subprocess", errors.SubprocessError{Command: "false", ExitCode: 42}, 42},
		{"subprocess without status", errors.SubprocessError{Command: "x"}, errors.ExitFailure},
		{"wrapped", fmt.Errorf("resolving DATABASE_URL: %w", provider.UnavailableError{Provider: "pass"}), errors.ExitProviderUnavailable},
		{"user error around unavailable", errors.UserError{Message: "x", Err: provider.UnavailableError{}}, errors.ExitProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errors.ExitCode(tt.err))
		})
	}
}

// TestProviderSuggestions verifies backend-specific hints
func TestProviderSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider           string
		errorMsg           string
		expectedSuggestion string
	}{
		{"bitwarden", "You are not logged in.", "bw login"},
		{"bitwarden", "Vault is locked.", "bw unlock"},
		{"bitwarden", "exec: \"bw\": executable file not found in $PATH", "Install Bitwarden CLI"},
		{"bws", "Access token is not valid", "BWS_ACCESS_TOKEN"},
		{"onepassword", "You are not currently signed in", "op signin"},
		{"onepassword+token", "session expired", "op signin"},
		{"lastpass", "Error: Could not find decryption key.", "lpass login"},
		{"pass", "gpg: decryption failed: No secret key", "GPG agent"},
		{"doppler", "Doppler Error: Unable to authenticate", "DOPPLER_TOKEN"},
		{"infisical", "infisical auth error (HTTP 401): Invalid credentials", "INFISICAL_TOKEN"},
		{"infisical", "infisical fetch error (HTTP 403): forbidden", "machine identity"},
		{"keyring", "The name org.freedesktop.secrets was not provided by any .service files (dbus)", "Secret Service"},
		{"aws-secretsmanager", "failed to retrieve credentials", "aws configure"},
		{"aws-ssm", "AccessDeniedException", "IAM permissions"},
		{"aws-secretsmanager", "ThrottlingException", "rate limit"},
		{"gcp-secretmanager", "rpc error: code = PermissionDenied", "gcloud auth"},
		{"azure-keyvault", "RESPONSE 403: Forbidden", "az login"},
		{"vault", "vault returned status 403: permission denied", "VAULT_TOKEN"},
		{"akeyless", "auth failed", "AKEYLESS_ACCESS_ID"},
		{"age", "no identity; pass ?identity=", "SECRETSPEC_AGE_IDENTITY"},
		{"postgres", "dial tcp: connection refused", "Unable to connect"},
		{"mysql", "i/o timeout", "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.expectedSuggestion, func(t *testing.T) {
			t.Parallel()

			providerErr := errors.ProviderError(tt.provider, "get", stderrors.New(tt.errorMsg))

			errMsg := providerErr.Error()
			assert.Contains(t, errMsg, tt.provider+" provider error during get")
			assert.Contains(t, errMsg, tt.expectedSuggestion)
		})
	}

	plain := errors.ProviderError("env", "get", stderrors.New("something odd"))
	assert.NotContains(t, plain.Error(), "💡")
	assert.Contains(t, plain.Error(), "Details: something odd")
}

// TestWrapCommandNotFound verifies command not found errors have helpful suggestions
func TestWrapCommandNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command            string
		expectedSuggestion string
	}{
		{"npm", "Node.js"},
		{"docker", "Docker"},
		{"op", "1Password CLI"},
		{"bws", "Secrets Manager CLI"},
		{"lpass", "lastpass-cli"},
		{"unknown-cmd", "in your PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			t.Parallel()

			err := errors.WrapCommandNotFound(tt.command, stderrors.New("command not found"))

			errMsg := err.Error()
			assert.Contains(t, errMsg, tt.command)
			assert.Contains(t, errMsg, tt.expectedSuggestion)

			var cmdErr errors.CommandError
			require.ErrorAs(t, err, &cmdErr)
			assert.Equal(t, errors.ExitFailure, errors.ExitCode(err))
		})
	}
}

// TestSimplifyError verifies error simplification for common cases
func TestSimplifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		inputError    error
		expectedInMsg string
	}{
		{"permission_denied", fmt.Errorf("open /etc/x: %w", stderrors.New("permission denied")), "Permission denied"},
		{"file_not_found", stderrors.New("open x: no such file or directory"), "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			simplified := errors.SimplifyError(tt.inputError)
			assert.Contains(t, simplified.Error(), tt.expectedInMsg)

			var userErr errors.UserError
			require.ErrorAs(t, simplified, &userErr)
			assert.ErrorIs(t, simplified, tt.inputError)
		})
	}

	t.Run("taxonomy errors pass through", func(t *testing.T) {
		t.Parallel()

		in := errors.MissingRequiredError{Profile: "default", Keys: []string{"permission denied"}}
		assert.Equal(t, error(in), errors.SimplifyError(in))
	})
}

// TestUserErrorUnwrap verifies error unwrapping works correctly
func TestUserErrorUnwrap(t *testing.T) {
	t.Parallel()

	baseErr := stderrors.New("base error")
	userErr := errors.UserError{
		Message: "wrapped error",
		Err:     baseErr,
	}

	assert.Equal(t, baseErr, userErr.Unwrap())
	assert.Equal(t, "base error", errors.UserError{Err: baseErr}.Error())
}

// TestNilErrorHandling verifies nil errors are handled gracefully
func TestNilErrorHandling(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.SimplifyError(nil))
	assert.Equal(t, errors.ExitOK, errors.ExitCode(nil))
}
