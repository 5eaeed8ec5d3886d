package providers

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/pkg/provider"
)

// SecretsManagerClientAPI defines the interface for AWS Secrets Manager operations
// This allows for mocking in tests
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// AWSSecretsManagerProvider stores each secret as its own Secrets Manager
// secret named {prefix}{project}/{profile}/{key}.
type AWSSecretsManagerProvider struct {
	config AWSConfig
	logger *logging.Logger

	mu     sync.Mutex
	client SecretsManagerClientAPI
}

// ProviderOption is a functional option for configuring providers
type ProviderOption func(*AWSSecretsManagerProvider)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(client SecretsManagerClientAPI) ProviderOption {
	return func(p *AWSSecretsManagerProvider) {
		p.client = client
	}
}

// NewAWSSecretsManagerProvider creates a new AWS Secrets Manager provider.
// The SDK client is built on first use unless one is injected.
func NewAWSSecretsManagerProvider(config AWSConfig, opts ...ProviderOption) *AWSSecretsManagerProvider {
	p := &AWSSecretsManagerProvider{
		config: config,
		logger: logging.New(false, false),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewAWSSecretsManagerProviderFactory handles aws-secretsmanager://region?profile=&role=&endpoint=&prefix=
func NewAWSSecretsManagerProviderFactory(u provider.URI) (provider.Provider, error) {
	return NewAWSSecretsManagerProvider(AWSConfigFromURI(u)), nil
}

func (p *AWSSecretsManagerProvider) Name() string { return "aws-secretsmanager" }

func (p *AWSSecretsManagerProvider) Description() string {
	if p.config.Region != "" {
		return "AWS Secrets Manager (" + p.config.Region + ")"
	}
	return "AWS Secrets Manager"
}

func (p *AWSSecretsManagerProvider) AllowsSet() bool { return true }

// SecretName returns the Secrets Manager name used for addr.
func (p *AWSSecretsManagerProvider) SecretName(addr provider.Address) string {
	return p.config.prefix() + addr.Path()
}

func (p *AWSSecretsManagerProvider) getClient(ctx context.Context) (SecretsManagerClientAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	cfg, err := p.config.load(ctx)
	if err != nil {
		return nil, provider.UnavailableError{Provider: p.Name(), Err: err}
	}
	var clientOpts []func(*secretsmanager.Options)
	if p.config.Endpoint != "" {
		endpoint := p.config.Endpoint
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	p.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	return p.client, nil
}

// Get reads the current version of the secret.
func (p *AWSSecretsManagerProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", false, err
	}

	name := p.SecretName(addr)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if isNotFoundError(err) {
			return "", false, nil
		}
		return "", false, classifyAWSError(p.Name(), addr, false, err)
	}

	switch {
	case result.SecretString != nil:
		return *result.SecretString, true, nil
	case result.SecretBinary != nil:
		return string(result.SecretBinary), true, nil
	}
	return "", false, nil
}

// Set puts a new version of the secret, creating the secret the first time.
func (p *AWSSecretsManagerProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	client, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	name := p.SecretName(addr)
	p.logger.Debug("Putting secret %s = %s", name, logging.Secret(value))

	_, err = client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}
	if !isNotFoundError(err) {
		return classifyAWSError(p.Name(), addr, true, err)
	}

	_, err = client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
		Description:  aws.String(managedSecretNote + addr.Path()),
		Tags: []types.Tag{
			{Key: aws.String("secretspec:project"), Value: aws.String(addr.Project)},
			{Key: aws.String("secretspec:profile"), Value: aws.String(addr.Profile)},
		},
	})
	if err != nil {
		return classifyAWSError(p.Name(), addr, true, err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var resourceNotFound *types.ResourceNotFoundException
	return errors.As(err, &resourceNotFound)
}
