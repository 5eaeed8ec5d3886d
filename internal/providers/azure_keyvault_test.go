package providers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/pkg/provider"
	"github.com/systmms/secretspec/tests/fakes"
)

func newTestAzureProvider(client *fakes.FakeAzureKeyVaultClient) *providers.AzureKeyVaultProvider {
	return providers.NewAzureKeyVaultProvider(
		providers.AzureKeyVaultConfig{VaultURL: "https://test-vault.vault.azure.net/"},
		providers.WithAzureKeyVaultClient(client),
	)
}

func TestAzureKeyVaultProvider_Contract(t *testing.T) {
	t.Parallel()

	provider.RunContractTests(t, provider.ContractTest{
		CreateProvider: func(t *testing.T) provider.Provider {
			return newTestAzureProvider(fakes.NewFakeAzureKeyVaultClient())
		},
	})
}

func TestAzureKeyVaultProvider_SecretName(t *testing.T) {
	t.Parallel()

	p := newTestAzureProvider(fakes.NewFakeAzureKeyVaultClient())
	assert.Equal(t, "secretspec-api-prod-DATABASE-URL",
		p.SecretName(provider.Address{Project: "api", Profile: "prod", Key: "DATABASE_URL"}))
	assert.Equal(t, "secretspec-my-app-qa-eu-K",
		p.SecretName(provider.Address{Project: "my.app", Profile: "qa/eu", Key: "K"}))
}

func TestAzureKeyVaultProvider_SetTagsSecret(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeAzureKeyVaultClient()
	p := newTestAzureProvider(client)
	addr := provider.Address{Project: "api", Profile: "prod", Key: "TOKEN"}

	require.NoError(t, p.Set(context.Background(), addr, "one"))
	require.NoError(t, p.Set(context.Background(), addr, "two"))

	s := client.Secret("secretspec-api-prod-TOKEN")
	require.NotNil(t, s)
	assert.Equal(t, "two", s.Value)
	assert.Equal(t, 2, s.Versions)
	require.Contains(t, s.Tags, "secretspec-path")
	assert.Equal(t, "api/prod/TOKEN", *s.Tags["secretspec-path"])
}

func TestAzureKeyVaultProvider_Errors(t *testing.T) {
	t.Parallel()

	addr := provider.Address{Project: "p", Profile: "default", Key: "K"}

	tests := []struct {
		name      string
		err       error
		readCheck func(error) bool
		putCheck  func(error) bool
	}{
		{"forbidden", fakes.AzureForbiddenError("denied"), provider.IsUnavailable, provider.IsWriteRejected},
		{"unauthorized", fakes.AzureUnauthorizedError("expired"), provider.IsUnavailable, provider.IsUnavailable},
		{"credential", errors.New("DefaultAzureCredential: failed to acquire a token"), provider.IsUnavailable, provider.IsUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := fakes.NewFakeAzureKeyVaultClient()
			client.GetErr = tt.err
			client.SetErr = tt.err
			p := newTestAzureProvider(client)

			_, _, err := p.Get(context.Background(), addr)
			assert.True(t, tt.readCheck(err), "read: %T", err)
			err = p.Set(context.Background(), addr, "v")
			assert.True(t, tt.putCheck(err), "write: %T", err)
		})
	}

	t.Run("throttled is a plain error", func(t *testing.T) {
		t.Parallel()
		client := fakes.NewFakeAzureKeyVaultClient()
		client.GetErr = fakes.AzureThrottledError()
		p := newTestAzureProvider(client)

		_, _, err := p.Get(context.Background(), addr)
		require.Error(t, err)
		assert.False(t, provider.IsUnavailable(err))
	})
}

func TestAzureKeyVaultProviderFactory(t *testing.T) {
	t.Parallel()

	p, err := providers.NewAzureKeyVaultProviderFactory(provider.MustParseURI("azure-keyvault://my-vault"))
	require.NoError(t, err)
	assert.Equal(t, "azure-keyvault", p.Name())
	assert.Equal(t, "Azure Key Vault (https://my-vault.vault.azure.net/)", p.Description())

	p, err = providers.NewAzureKeyVaultProviderFactory(provider.MustParseURI("azure-keyvault://corp.vault.azure.cn?managed_identity=true"))
	require.NoError(t, err)
	assert.Equal(t, "Azure Key Vault (https://corp.vault.azure.cn/)", p.Description())

	_, err = providers.NewAzureKeyVaultProviderFactory(provider.MustParseURI("azure-keyvault://"))
	assert.True(t, provider.IsInvalidURI(err))
}
