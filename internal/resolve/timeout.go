package resolve

import (
	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/pkg/provider"
)

// timeoutError turns a deadline hit inside a backend into an unavailable
// provider with a hint on what usually causes it.
func timeoutError(providerName string, err error) error {
	return provider.UnavailableError{
		Provider: providerName,
		Message:  "operation timed out",
		Err: dserrors.UserError{
			Message:    "Provider operation timed out",
			Suggestion: getTimeoutSuggestion(providerName),
			Err:        err,
		},
	}
}

// getTimeoutSuggestion provides helpful suggestions for timeout errors
func getTimeoutSuggestion(providerName string) string {
	switch providerName {
	case "bitwarden", "bws":
		return "Bitwarden CLI can be slow. Check 'bw status' and use 'bw unlock' if the vault is locked"

	case "onepassword", "onepassword+token":
		return "Check 1Password connectivity. Use 'op signin' if the session expired"

	case "aws-secretsmanager", "aws-ssm":
		return "Check AWS connectivity and credentials. Verify the region is correct"

	case "gcp-secretmanager":
		return "Check Google Cloud connectivity and authentication"

	case "azure-keyvault":
		return "Check Azure connectivity and authentication"

	case "doppler":
		return "Check Doppler connectivity. 'doppler me' shows whether the token is accepted"

	case "infisical":
		return "Check Infisical connectivity. Verify the host and the machine identity credentials"

	case "vault":
		return "Check Vault connectivity and authentication. Verify VAULT_ADDR"

	case "postgres", "mysql":
		return "Check that the database accepts connections from this host"
	}

	return "Check network connectivity and provider authentication"
}
