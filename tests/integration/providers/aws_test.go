package providers_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/pkg/provider"
	"github.com/systmms/secretspec/tests/testutil"
)

func TestAWSProvidersIntegration(t *testing.T) {
	env := testutil.StartDockerEnv(t, []string{"localstack"})

	for _, scheme := range []string{"aws-secretsmanager", "aws-ssm"} {
		t.Run(scheme, func(t *testing.T) {
			provider.RunContractTests(t, provider.ContractTest{
				CreateProvider: func(t *testing.T) provider.Provider {
					p, err := providers.Default().Open(env.LocalStackURI(scheme))
					require.NoError(t, err)
					return p
				},
				Project: "aws-contract",
			})
		})
	}
}

func TestAWSSecretsManagerIntegration_Naming(t *testing.T) {
	env := testutil.StartDockerEnv(t, []string{"localstack"})
	ctx := context.Background()

	p, err := providers.Default().Open(env.LocalStackURI("aws-secretsmanager"))
	require.NoError(t, err)

	addr := provider.Address{Project: "billing", Profile: "production", Key: "STRIPE_KEY"}
	require.NoError(t, p.Set(ctx, addr, "sk_live_abc"))

	out, err := env.SecretsManagerClient().GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(providers.DefaultAWSPrefix + "billing/production/STRIPE_KEY"),
	})
	require.NoError(t, err)
	assert.Equal(t, "sk_live_abc", aws.ToString(out.SecretString))
}
