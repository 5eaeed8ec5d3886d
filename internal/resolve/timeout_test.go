package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/secretspec/pkg/provider"
)

func TestGetTimeoutSuggestion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		contains string
	}{
		{"bitwarden", "bw unlock"},
		{"bws", "bw status"},
		{"onepassword", "op signin"},
		{"aws-ssm", "region"},
		{"gcp-secretmanager", "Google Cloud"},
		{"azure-keyvault", "Azure"},
		{"vault", "VAULT_ADDR"},
		{"mysql", "database"},
		{"keyring", "network connectivity"},
	}
	for _, tt := range tests {
		assert.Contains(t, getTimeoutSuggestion(tt.provider), tt.contains, tt.provider)
	}
}

func TestTimeoutError(t *testing.T) {
	t.Parallel()

	err := timeoutError("vault", context.DeadlineExceeded)
	assert.True(t, provider.IsUnavailable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "provider vault is unavailable: operation timed out")
}
