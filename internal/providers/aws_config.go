package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/systmms/secretspec/pkg/provider"
)

// DefaultAWSPrefix is prepended to every secret and parameter name.
const DefaultAWSPrefix = "secretspec/"

// AWSConfig holds the connection settings shared by the AWS backends. It is
// parsed from aws-secretsmanager://region?profile=&role=&endpoint=&prefix=
// and the equivalent aws-ssm:// form.
type AWSConfig struct {
	Region   string
	Profile  string
	Role     string
	Endpoint string
	Prefix   string

	// Static credentials, for LocalStack and tests.
	AccessKeyID     string
	SecretAccessKey string
}

// AWSConfigFromURI extracts AWSConfig from a provider URI.
func AWSConfigFromURI(u provider.URI) AWSConfig {
	cfg := AWSConfig{
		Region:          u.Host,
		Profile:         u.Param("profile"),
		Role:            u.Param("role"),
		Endpoint:        u.Param("endpoint"),
		Prefix:          u.Param("prefix"),
		AccessKeyID:     u.Param("access_key_id"),
		SecretAccessKey: u.Param("secret_access_key"),
	}
	if v := u.Param("region"); v != "" {
		cfg.Region = v
	}
	return cfg
}

func (c AWSConfig) prefix() string {
	if c.Prefix == "" {
		return DefaultAWSPrefix
	}
	return c.Prefix
}

// load resolves the SDK configuration. It runs on first use so that opening
// a provider never touches the network or the shared config files.
func (c AWSConfig) load(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if c.Role != "" {
		assume := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), c.Role, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "secretspec"
		})
		cfg.Credentials = aws.NewCredentialsCache(assume)
	}
	return cfg, nil
}

var awsAuthCodes = map[string]bool{
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"ExpiredTokenException":       true,
	"ExpiredToken":                true,
	"InvalidSignatureException":   true,
	"SignatureDoesNotMatch":       true,
}

var awsDeniedCodes = map[string]bool{
	"AccessDeniedException":    true,
	"AccessDenied":             true,
	"KMSAccessDeniedException": true,
}

// classifyAWSError maps an SDK error onto the provider error taxonomy.
// Authentication failures and transport errors make the backend
// unavailable. Permission errors are unavailable on read and rejected
// writes on write.
func classifyAWSError(providerName string, addr provider.Address, write bool, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return provider.UnavailableError{Provider: providerName, Message: "could not reach AWS", Err: err}
	}
	code := apiErr.ErrorCode()
	switch {
	case awsDeniedCodes[code] && write:
		return provider.WriteRejectedError{Provider: providerName, Key: addr.Key, Err: err}
	case awsDeniedCodes[code], awsAuthCodes[code]:
		return provider.UnavailableError{Provider: providerName, Message: apiErr.ErrorMessage(), Err: err}
	}
	return fmt.Errorf("%s: %w", providerName, err)
}
