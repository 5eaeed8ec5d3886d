package providers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/internal/providers/contracts"
	"github.com/systmms/secretspec/pkg/provider"
)

// Defaults for the Infisical backend.
const (
	DefaultInfisicalHost        = "https://app.infisical.com"
	DefaultInfisicalEnvironment = "dev"
)

// InfisicalConfig holds configuration for the Infisical provider
type InfisicalConfig struct {
	Host      string // API base URL
	ProjectID string

	// Machine identity (universal auth). Token, when set, is used instead.
	ClientID     string
	ClientSecret string
	Token        string

	// DefaultEnvironment backs the default profile.
	DefaultEnvironment string
	// Path is the folder that holds one sub-folder per project.
	Path   string
	CACert string
}

// ApplyEnv fills unset credentials from INFISICAL_TOKEN,
// INFISICAL_UNIVERSAL_AUTH_CLIENT_ID and
// INFISICAL_UNIVERSAL_AUTH_CLIENT_SECRET.
func (c *InfisicalConfig) ApplyEnv(lookup func(string) (string, bool)) {
	fill := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	fill(&c.Token, "INFISICAL_TOKEN")
	fill(&c.ClientID, "INFISICAL_UNIVERSAL_AUTH_CLIENT_ID")
	fill(&c.ClientSecret, "INFISICAL_UNIVERSAL_AUTH_CLIENT_SECRET")
}

// InfisicalProvider stores secrets in an Infisical project. Profiles map to
// environments and projects to folders under the configured path.
type InfisicalProvider struct {
	config     InfisicalConfig
	client     contracts.InfisicalClient
	tokenCache *TokenCache
	logger     *logging.Logger
}

// NewInfisicalProvider creates a new Infisical provider
func NewInfisicalProvider(config InfisicalConfig) (*InfisicalProvider, error) {
	if config.Host == "" {
		config.Host = DefaultInfisicalHost
	}
	client, err := newInfisicalHTTPClient(config)
	if err != nil {
		return nil, err
	}
	return NewInfisicalProviderWithClient(config, client), nil
}

// NewInfisicalProviderWithClient creates an Infisical provider with a custom client
func NewInfisicalProviderWithClient(config InfisicalConfig, client contracts.InfisicalClient) *InfisicalProvider {
	if config.DefaultEnvironment == "" {
		config.DefaultEnvironment = DefaultInfisicalEnvironment
	}
	return &InfisicalProvider{
		config:     config,
		client:     client,
		tokenCache: NewTokenCache(),
		logger:     logging.New(false, false),
	}
}

// NewInfisicalProviderFactory handles
// infisical://[client-id:client-secret@]project-id?host=&default_env=&path=&ca_cert=
func NewInfisicalProviderFactory(u provider.URI) (provider.Provider, error) {
	if u.Host == "" {
		return nil, provider.InvalidURIError{URI: u.String(), Reason: "infisical requires a project id as the host"}
	}
	config := InfisicalConfig{
		Host:               u.Param("host"),
		ProjectID:          u.Host,
		ClientID:           u.User,
		ClientSecret:       u.Password,
		DefaultEnvironment: u.Param("default_env"),
		Path:               u.Param("path"),
		CACert:             u.Param("ca_cert"),
	}
	config.ApplyEnv(os.LookupEnv)
	p, err := NewInfisicalProvider(config)
	if err != nil {
		return nil, provider.InvalidURIError{URI: u.String(), Reason: "cannot configure infisical client", Err: err}
	}
	return p, nil
}

func (p *InfisicalProvider) Name() string { return "infisical" }

func (p *InfisicalProvider) Description() string {
	return "Infisical project " + p.config.ProjectID
}

func (p *InfisicalProvider) AllowsSet() bool { return true }

// Location returns the environment and folder that hold addr.
func (p *InfisicalProvider) Location(addr provider.Address) contracts.InfisicalLocation {
	env := addr.Profile
	if env == provider.DefaultProfile {
		env = p.config.DefaultEnvironment
	}
	folder := strings.Trim(p.config.Path, "/")
	if folder != "" {
		folder += "/"
	}
	return contracts.InfisicalLocation{
		ProjectID:   p.config.ProjectID,
		Environment: env,
		SecretPath:  "/" + folder + addr.Project,
	}
}

// Get fetches the shared secret for addr.
func (p *InfisicalProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	token, err := p.getToken(ctx)
	if err != nil {
		return "", false, err
	}

	loc := p.Location(addr)
	p.logger.Debug("Fetching Infisical secret %s from %s%s", addr.Key, loc.Environment, loc.SecretPath)

	value, found, err := p.client.GetSecret(ctx, token, loc, addr.Key)
	if err != nil {
		return "", false, p.classify(addr, err)
	}
	return value, found, nil
}

// Set creates or updates the shared secret for addr.
func (p *InfisicalProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	token, err := p.getToken(ctx)
	if err != nil {
		return err
	}

	loc := p.Location(addr)
	p.logger.Debug("Storing Infisical secret %s in %s%s = %s", addr.Key, loc.Environment, loc.SecretPath, logging.Secret(value))

	if err := p.client.SetSecret(ctx, token, loc, addr.Key, value); err != nil {
		var apiErr *InfisicalError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return provider.WriteRejectedError{
				Provider: p.Name(),
				Key:      addr.Key,
				Err:      errors.New("folder " + loc.SecretPath + " does not exist in environment " + loc.Environment + "; create it in Infisical first"),
			}
		}
		return p.classify(addr, err)
	}
	return nil
}

// getToken returns a cached token or authenticates to get a new one
func (p *InfisicalProvider) getToken(ctx context.Context) (string, error) {
	if token, ok := p.tokenCache.Get(); ok {
		return token, nil
	}
	if p.config.Token == "" && (p.config.ClientID == "" || p.config.ClientSecret == "") {
		return "", provider.UnavailableError{
			Provider: p.Name(),
			Message:  "no credentials; set INFISICAL_TOKEN or a universal auth client id and secret",
		}
	}

	token, ttl, err := p.client.Authenticate(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", provider.UnavailableError{Provider: p.Name(), Err: err}
	}
	p.tokenCache.Set(token, ttl)
	return token, nil
}

func (p *InfisicalProvider) classify(addr provider.Address, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *InfisicalError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		p.tokenCache.Clear()
		return provider.UnavailableError{Provider: p.Name(), Err: err}
	case http.StatusForbidden, http.StatusTooManyRequests:
		return provider.UnavailableError{Provider: p.Name(), Err: err}
	case 0:
		// transport failure
		return provider.UnavailableError{Provider: p.Name(), Err: err}
	}
	return err
}
