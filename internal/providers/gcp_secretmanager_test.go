package providers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/pkg/provider"
	"github.com/systmms/secretspec/tests/fakes"
)

func newTestGCPProvider(client *fakes.FakeGCPSecretManagerClient) *providers.GCPSecretManagerProvider {
	return providers.NewGCPSecretManagerProvider(
		providers.GCPSecretManagerConfig{ProjectID: "acme-prod"},
		providers.WithGCPClient(client),
	)
}

func TestGCPSecretManagerProvider_Contract(t *testing.T) {
	t.Parallel()

	provider.RunContractTests(t, provider.ContractTest{
		CreateProvider: func(t *testing.T) provider.Provider {
			return newTestGCPProvider(fakes.NewFakeGCPSecretManagerClient())
		},
	})
}

func TestGCPSecretManagerProvider_SecretID(t *testing.T) {
	t.Parallel()

	p := newTestGCPProvider(fakes.NewFakeGCPSecretManagerClient())
	tests := []struct {
		addr provider.Address
		want string
	}{
		{provider.Address{Project: "api", Profile: "prod", Key: "DATABASE_URL"}, "secretspec-api-prod-DATABASE_URL"},
		{provider.Address{Project: "my.app", Profile: "dev", Key: "K"}, "secretspec-my_app-dev-K"},
		{provider.Address{Project: "web", Profile: "qa/eu", Key: "A B"}, "secretspec-web-qa_eu-A_B"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.SecretID(tt.addr))
	}
}

func TestGCPSecretManagerProvider_CreatesOnFirstSet(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeGCPSecretManagerClient()
	p := newTestGCPProvider(client)
	addr := provider.Address{Project: "api", Profile: "prod", Key: "TOKEN"}

	require.NoError(t, p.Set(context.Background(), addr, "v1"))
	require.NoError(t, p.Set(context.Background(), addr, "v2"))

	s := client.Secret("acme-prod", "secretspec-api-prod-TOKEN")
	require.NotNil(t, s)
	assert.Equal(t, [][]byte{[]byte("v1"), []byte("v2")}, s.Versions)
	assert.NotNil(t, s.Replication.GetAutomatic())
	assert.NotNil(t, s.CreateTime)
	assert.Equal(t, "secretspec", s.Labels["managed-by"])
	assert.Equal(t, "api/prod/TOKEN", s.Annotations["secretspec/path"])

	assert.Equal(t, []string{"AddSecretVersion", "CreateSecret", "AddSecretVersion", "AddSecretVersion"}, client.Calls)
}

func TestGCPSecretManagerProvider_DisabledVersionIsAbsent(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeGCPSecretManagerClient()
	client.AddSecretString("acme-prod", "secretspec-api-prod-OLD", "stale")
	client.Secret("acme-prod", "secretspec-api-prod-OLD").Disabled = true
	p := newTestGCPProvider(client)

	_, found, err := p.Get(context.Background(), provider.Address{Project: "api", Profile: "prod", Key: "OLD"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGCPSecretManagerProvider_Errors(t *testing.T) {
	t.Parallel()

	addr := provider.Address{Project: "p", Profile: "default", Key: "K"}

	t.Run("permission denied", func(t *testing.T) {
		t.Parallel()
		client := fakes.NewFakeGCPSecretManagerClient()
		client.AccessErr = fakes.GCPPermissionDeniedError("secretmanager.versions.access denied")
		client.WriteErr = fakes.GCPPermissionDeniedError("secretmanager.versions.add denied")
		p := newTestGCPProvider(client)

		_, _, err := p.Get(context.Background(), addr)
		assert.True(t, provider.IsUnavailable(err), "got %v", err)
		err = p.Set(context.Background(), addr, "v")
		assert.True(t, provider.IsWriteRejected(err), "got %v", err)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		t.Parallel()
		client := fakes.NewFakeGCPSecretManagerClient()
		client.AccessErr = fakes.GCPUnauthenticatedError("Request had invalid authentication credentials")
		client.WriteErr = client.AccessErr
		p := newTestGCPProvider(client)

		_, _, err := p.Get(context.Background(), addr)
		assert.True(t, provider.IsUnavailable(err), "got %v", err)
		err = p.Set(context.Background(), addr, "v")
		assert.True(t, provider.IsUnavailable(err), "got %v", err)
	})

	t.Run("quota is a plain error", func(t *testing.T) {
		t.Parallel()
		client := fakes.NewFakeGCPSecretManagerClient()
		client.AccessErr = fakes.GCPResourceExhaustedError()
		p := newTestGCPProvider(client)

		_, _, err := p.Get(context.Background(), addr)
		require.Error(t, err)
		assert.False(t, provider.IsUnavailable(err))
		assert.Contains(t, err.Error(), "gcp-secretmanager")
	})
}

func TestGCPSecretManagerProviderFactory(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("GCLOUD_PROJECT", "")
	t.Setenv("GCP_PROJECT", "")

	p, err := providers.NewGCPSecretManagerProviderFactory(provider.MustParseURI("gcp-secretmanager://my-gcp-project"))
	require.NoError(t, err)
	assert.Equal(t, "gcp-secretmanager", p.Name())
	assert.Equal(t, "Google Cloud Secret Manager (my-gcp-project)", p.Description())

	_, err = providers.NewGCPSecretManagerProviderFactory(provider.MustParseURI("gcp-secretmanager://"))
	assert.True(t, provider.IsInvalidURI(err), "got %v", err)

	t.Setenv("GCLOUD_PROJECT", "from-env")
	p, err = providers.NewGCPSecretManagerProviderFactory(provider.MustParseURI("gcp-secretmanager://"))
	require.NoError(t, err)
	assert.Contains(t, p.Description(), "from-env")
}
