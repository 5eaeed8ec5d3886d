package providers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/pkg/provider"
	"github.com/systmms/secretspec/tests/fakes"
)

func TestAWSSecretsManagerProvider_Contract(t *testing.T) {
	t.Parallel()

	provider.RunContractTests(t, provider.ContractTest{
		CreateProvider: func(t *testing.T) provider.Provider {
			return providers.NewAWSSecretsManagerProvider(
				providers.AWSConfig{Region: "us-east-1"},
				providers.WithSecretsManagerClient(fakes.NewFakeSecretsManagerClient()),
			)
		},
	})
}

func TestAWSSecretsManagerProvider_CreatesOnFirstSet(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	p := providers.NewAWSSecretsManagerProvider(providers.AWSConfig{}, providers.WithSecretsManagerClient(client))
	addr := provider.Address{Project: "billing", Profile: "prod", Key: "STRIPE_KEY"}

	require.NoError(t, p.Set(context.Background(), addr, "sk_live_1"))
	require.NoError(t, p.Set(context.Background(), addr, "sk_live_2"))

	name := "secretspec/billing/prod/STRIPE_KEY"
	assert.Equal(t, name, p.SecretName(addr))
	assert.Equal(t, "sk_live_2", client.Secrets[name])
	assert.Equal(t, "SecretSpec managed secret: billing/prod/STRIPE_KEY", client.Descriptions[name])

	tags := map[string]string{}
	for _, tag := range client.Tags[name] {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, map[string]string{"secretspec:project": "billing", "secretspec:profile": "prod"}, tags)

	assert.Equal(t, []string{
		"PutSecretValue " + name,
		"CreateSecret " + name,
		"PutSecretValue " + name,
	}, client.Calls)
}

func TestAWSSecretsManagerProvider_Prefix(t *testing.T) {
	t.Parallel()

	p := providers.NewAWSSecretsManagerProvider(providers.AWSConfig{Prefix: "teams/payments/"})
	assert.Equal(t, "teams/payments/api/dev/TOKEN",
		p.SecretName(provider.Address{Project: "api", Profile: "dev", Key: "TOKEN"}))
}

func TestAWSSecretsManagerProvider_Errors(t *testing.T) {
	t.Parallel()

	addr := provider.Address{Project: "p", Profile: "default", Key: "K"}

	tests := []struct {
		name      string
		getErr    error
		putErr    error
		readCheck func(error) bool
		putCheck  func(error) bool
	}{
		{
			name:      "access denied",
			getErr:    fakes.AWSAccessDenied("secretsmanager:GetSecretValue"),
			putErr:    fakes.AWSAccessDenied("secretsmanager:PutSecretValue"),
			readCheck: provider.IsUnavailable,
			putCheck:  provider.IsWriteRejected,
		},
		{
			name:      "expired credentials",
			getErr:    fakes.AWSExpiredToken(),
			putErr:    fakes.AWSExpiredToken(),
			readCheck: provider.IsUnavailable,
			putCheck:  provider.IsUnavailable,
		},
		{
			name:      "network",
			getErr:    errors.New("dial tcp: lookup secretsmanager.us-east-1.amazonaws.com: no such host"),
			putErr:    errors.New("dial tcp: connection refused"),
			readCheck: provider.IsUnavailable,
			putCheck:  provider.IsUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := fakes.NewFakeSecretsManagerClient()
			client.GetErr = tt.getErr
			client.PutErr = tt.putErr
			p := providers.NewAWSSecretsManagerProvider(providers.AWSConfig{}, providers.WithSecretsManagerClient(client))

			_, found, err := p.Get(context.Background(), addr)
			assert.False(t, found)
			assert.True(t, tt.readCheck(err), "read: got %v", err)

			err = p.Set(context.Background(), addr, "v")
			assert.True(t, tt.putCheck(err), "write: got %v", err)
		})
	}
}

func TestAWSSecretsManagerProvider_CanceledContext(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.GetErr = context.Canceled
	p := providers.NewAWSSecretsManagerProvider(providers.AWSConfig{}, providers.WithSecretsManagerClient(client))

	_, _, err := p.Get(context.Background(), provider.Address{Project: "p", Profile: "default", Key: "K"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, provider.IsUnavailable(err))
}

func TestAWSSecretsManagerProviderFactory(t *testing.T) {
	t.Parallel()

	p, err := providers.NewAWSSecretsManagerProviderFactory(
		provider.MustParseURI("aws-secretsmanager://eu-central-1?profile=prod&prefix=org/"))
	require.NoError(t, err)
	assert.Equal(t, "aws-secretsmanager", p.Name())
	assert.Equal(t, "AWS Secrets Manager (eu-central-1)", p.Description())
	assert.True(t, p.AllowsSet())

	sm := p.(*providers.AWSSecretsManagerProvider)
	assert.Equal(t, "org/a/b/C", sm.SecretName(provider.Address{Project: "a", Profile: "b", Key: "C"}))
}

func TestAWSConfigFromURI(t *testing.T) {
	t.Parallel()

	cfg := providers.AWSConfigFromURI(provider.MustParseURI(
		"aws-ssm://us-west-2?profile=dev&role=arn:aws:iam::123456789012:role/reader&endpoint=http://localhost:4566"))
	assert.Equal(t, providers.AWSConfig{
		Region:   "us-west-2",
		Profile:  "dev",
		Role:     "arn:aws:iam::123456789012:role/reader",
		Endpoint: "http://localhost:4566",
	}, cfg)

	cfg = providers.AWSConfigFromURI(provider.MustParseURI("aws-ssm://?region=ap-south-1"))
	assert.Equal(t, "ap-south-1", cfg.Region)
}
