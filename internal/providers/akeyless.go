package providers

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/internal/providers/contracts"
	"github.com/systmms/secretspec/pkg/provider"
)

// Defaults for the Akeyless backend.
const (
	DefaultAkeylessGateway = "https://api.akeyless.io"
	DefaultAkeylessPrefix  = "/secretspec"
)

// AkeylessConfig holds configuration for the Akeyless provider
type AkeylessConfig struct {
	AccessID   string
	AccessKey  string
	AccessType string // access_key (default), aws_iam, azure_ad or gcp
	GatewayURL string
	Prefix     string

	CloudID     string
	GCPAudience string
}

// ApplyEnv fills unset credentials from AKEYLESS_ACCESS_ID,
// AKEYLESS_ACCESS_KEY and AKEYLESS_GATEWAY_URL.
func (c *AkeylessConfig) ApplyEnv(lookup func(string) (string, bool)) {
	fill := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	fill(&c.AccessID, "AKEYLESS_ACCESS_ID")
	fill(&c.AccessKey, "AKEYLESS_ACCESS_KEY")
	fill(&c.GatewayURL, "AKEYLESS_GATEWAY_URL")
}

// AkeylessProvider reads static secrets stored at
// {prefix}/{project}/{profile}/{key}. It is read-only.
type AkeylessProvider struct {
	config     AkeylessConfig
	client     contracts.AkeylessClient
	tokenCache *TokenCache
	logger     *logging.Logger
}

// NewAkeylessProvider creates a new Akeyless provider
func NewAkeylessProvider(config AkeylessConfig) *AkeylessProvider {
	if config.GatewayURL == "" {
		config.GatewayURL = DefaultAkeylessGateway
	}
	return NewAkeylessProviderWithClient(config, newAkeylessSDKClient(config))
}

// NewAkeylessProviderWithClient creates an Akeyless provider with a custom client.
// This is primarily for testing, allowing the SDK client to be mocked.
func NewAkeylessProviderWithClient(config AkeylessConfig, client contracts.AkeylessClient) *AkeylessProvider {
	if config.Prefix == "" {
		config.Prefix = DefaultAkeylessPrefix
	}
	return &AkeylessProvider{
		config:     config,
		client:     client,
		tokenCache: NewTokenCache(),
		logger:     logging.New(false, false),
	}
}

// NewAkeylessProviderFactory handles
// akeyless://[gateway-host]?access_id=&access_type=&prefix=
func NewAkeylessProviderFactory(u provider.URI) (provider.Provider, error) {
	config := AkeylessConfig{
		AccessID:    u.Param("access_id"),
		AccessType:  u.Param("access_type"),
		Prefix:      u.Param("prefix"),
		CloudID:     u.Param("cloud_id"),
		GCPAudience: u.Param("gcp_audience"),
	}
	if host := u.Location(); host != "" && host != "localhost" {
		config.GatewayURL = "https://" + host
	}
	switch config.AccessType {
	case "", "access_key", "aws_iam", "azure_ad", "gcp":
	default:
		return nil, provider.InvalidURIError{URI: u.String(), Reason: "unsupported access_type " + config.AccessType}
	}
	config.ApplyEnv(os.LookupEnv)
	return NewAkeylessProvider(config), nil
}

func (p *AkeylessProvider) Name() string { return "akeyless" }

func (p *AkeylessProvider) Description() string {
	return "Akeyless static secrets (read-only)"
}

func (p *AkeylessProvider) AllowsSet() bool { return false }

// SecretPath returns the Akeyless item path for addr.
func (p *AkeylessProvider) SecretPath(addr provider.Address) string {
	return "/" + strings.Trim(p.config.Prefix, "/") + "/" + addr.Path()
}

// Get fetches the static secret for addr.
func (p *AkeylessProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	token, err := p.getToken(ctx)
	if err != nil {
		return "", false, err
	}

	path := p.SecretPath(addr)
	p.logger.Debug("Fetching Akeyless secret %s", path)

	value, found, err := p.client.GetSecret(ctx, token, path)
	if err != nil {
		if errors.Is(err, ErrAkeylessUnauthorized) {
			p.tokenCache.Clear()
		}
		return "", false, p.classify("fetch", path, err)
	}
	return value, found, nil
}

// Set always fails; secretspec does not write to Akeyless.
func (p *AkeylessProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	return provider.ReadOnlyError{Provider: p.Name()}
}

// getToken returns a cached token or authenticates to get a new one
func (p *AkeylessProvider) getToken(ctx context.Context) (string, error) {
	if token, ok := p.tokenCache.Get(); ok {
		return token, nil
	}
	if p.config.AccessID == "" {
		return "", provider.UnavailableError{
			Provider: p.Name(),
			Message:  "no access id; set access_id in the URI or AKEYLESS_ACCESS_ID",
		}
	}

	token, ttl, err := p.client.Authenticate(ctx)
	if err != nil {
		return "", p.classify("auth", "", err)
	}
	p.tokenCache.Set(token, ttl)
	return token, nil
}

func (p *AkeylessProvider) classify(op, path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	wrapped := &AkeylessError{Op: op, Path: path, Message: err.Error(), Err: err}
	switch {
	case op == "auth",
		errors.Is(err, ErrAkeylessUnauthorized),
		errors.Is(err, ErrAkeylessPermission),
		errors.Is(err, ErrAkeylessRateLimited):
		return provider.UnavailableError{Provider: p.Name(), Err: wrapped}
	}
	return wrapped
}
