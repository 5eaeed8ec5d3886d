package providers

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/pkg/provider"
)

// SSMClientAPI defines the interface for AWS SSM Parameter Store operations
// This allows for mocking in tests
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// AWSSSMProvider implements the Provider interface for AWS Systems Manager Parameter Store.
// Values are SecureString parameters named /{prefix}{project}/{profile}/{key}.
type AWSSSMProvider struct {
	config AWSConfig
	logger *logging.Logger

	mu     sync.Mutex
	client SSMClientAPI
}

// SSMProviderOption is a functional option for configuring SSM providers
type SSMProviderOption func(*AWSSSMProvider)

// WithSSMClient sets a custom SSM client (for testing)
func WithSSMClient(client SSMClientAPI) SSMProviderOption {
	return func(p *AWSSSMProvider) {
		p.client = client
	}
}

// NewAWSSSMProvider creates a new AWS SSM Parameter Store provider
func NewAWSSSMProvider(config AWSConfig, opts ...SSMProviderOption) *AWSSSMProvider {
	p := &AWSSSMProvider{
		config: config,
		logger: logging.New(false, false),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewAWSSSMProviderFactory handles aws-ssm://region?profile=&role=&endpoint=&prefix=
func NewAWSSSMProviderFactory(u provider.URI) (provider.Provider, error) {
	return NewAWSSSMProvider(AWSConfigFromURI(u)), nil
}

func (p *AWSSSMProvider) Name() string { return "aws-ssm" }

func (p *AWSSSMProvider) Description() string {
	if p.config.Region != "" {
		return "AWS Systems Manager Parameter Store (" + p.config.Region + ")"
	}
	return "AWS Systems Manager Parameter Store"
}

func (p *AWSSSMProvider) AllowsSet() bool { return true }

// ParameterName returns the fully qualified parameter name for addr.
func (p *AWSSSMProvider) ParameterName(addr provider.Address) string {
	return "/" + strings.TrimPrefix(p.config.prefix(), "/") + addr.Path()
}

func (p *AWSSSMProvider) getClient(ctx context.Context) (SSMClientAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	cfg, err := p.config.load(ctx)
	if err != nil {
		return nil, provider.UnavailableError{Provider: p.Name(), Err: err}
	}
	var clientOpts []func(*ssm.Options)
	if p.config.Endpoint != "" {
		endpoint := p.config.Endpoint
		clientOpts = append(clientOpts, func(o *ssm.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	p.client = ssm.NewFromConfig(cfg, clientOpts...)
	return p.client, nil
}

// Get fetches and decrypts the parameter.
func (p *AWSSSMProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", false, err
	}

	name := p.ParameterName(addr)
	p.logger.Debug("Fetching parameter from SSM: %s", name)

	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if isParameterNotFoundError(err) {
			return "", false, nil
		}
		return "", false, classifyAWSError(p.Name(), addr, false, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", false, nil
	}
	return *result.Parameter.Value, true, nil
}

// Set writes the parameter as a SecureString, overwriting any previous value.
func (p *AWSSSMProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	client, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	name := p.ParameterName(addr)
	p.logger.Debug("Putting parameter %s = %s", name, logging.Secret(value))

	_, err = client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:        aws.String(name),
		Value:       aws.String(value),
		Type:        types.ParameterTypeSecureString,
		Overwrite:   aws.Bool(true),
		Description: aws.String(managedSecretNote + addr.Path()),
	})
	if err != nil {
		return classifyAWSError(p.Name(), addr, true, err)
	}
	return nil
}

func isParameterNotFoundError(err error) bool {
	var notFound *types.ParameterNotFound
	return errors.As(err, &notFound)
}
