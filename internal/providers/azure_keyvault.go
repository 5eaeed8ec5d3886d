package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/pkg/provider"
)

// AzureKeyVaultClientAPI defines the interface for Azure Key Vault operations
// This allows for mocking in tests
type AzureKeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
}

// AzureKeyVaultConfig holds Azure Key Vault-specific configuration
type AzureKeyVaultConfig struct {
	VaultURL           string
	TenantID           string
	ClientID           string
	ClientSecret       string
	UseManagedIdentity bool
	UserAssignedID     string // For user-assigned managed identity
}

// AzureKeyVaultProvider stores each secret as a Key Vault secret named
// secretspec-{project}-{profile}-{key}.
type AzureKeyVaultProvider struct {
	config AzureKeyVaultConfig
	logger *logging.Logger

	mu     sync.Mutex
	client AzureKeyVaultClientAPI
}

// AzureProviderOption is a functional option for configuring Azure providers
type AzureProviderOption func(*AzureKeyVaultProvider)

// WithAzureKeyVaultClient sets a custom Azure Key Vault client (for testing)
func WithAzureKeyVaultClient(client AzureKeyVaultClientAPI) AzureProviderOption {
	return func(p *AzureKeyVaultProvider) {
		p.client = client
	}
}

// NewAzureKeyVaultProvider creates a new Azure Key Vault provider
func NewAzureKeyVaultProvider(config AzureKeyVaultConfig, opts ...AzureProviderOption) *AzureKeyVaultProvider {
	p := &AzureKeyVaultProvider{
		config: config,
		logger: logging.New(false, false),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewAzureKeyVaultProviderFactory handles azure-keyvault://vault-name or
// azure-keyvault://vault.host.example with the optional parameters
// tenant_id, client_id, client_secret, managed_identity and
// user_assigned_id.
func NewAzureKeyVaultProviderFactory(u provider.URI) (provider.Provider, error) {
	if u.Host == "" {
		return nil, provider.InvalidURIError{URI: u.String(), Reason: "a vault name is required (azure-keyvault://VAULT)"}
	}
	vaultURL := "https://" + u.Host + ".vault.azure.net/"
	if strings.Contains(u.Host, ".") {
		vaultURL = "https://" + u.Host + "/"
	}

	config := AzureKeyVaultConfig{
		VaultURL:       vaultURL,
		TenantID:       u.Param("tenant_id"),
		ClientID:       u.Param("client_id"),
		ClientSecret:   u.Param("client_secret"),
		UserAssignedID: u.Param("user_assigned_id"),
	}
	switch strings.ToLower(u.Param("managed_identity")) {
	case "", "false", "0", "no":
	default:
		config.UseManagedIdentity = true
	}
	if config.UserAssignedID != "" {
		config.UseManagedIdentity = true
	}
	return NewAzureKeyVaultProvider(config), nil
}

func (p *AzureKeyVaultProvider) Name() string { return "azure-keyvault" }

func (p *AzureKeyVaultProvider) Description() string {
	return "Azure Key Vault (" + p.config.VaultURL + ")"
}

func (p *AzureKeyVaultProvider) AllowsSet() bool { return true }

// SecretName returns the Key Vault secret name for addr. Key Vault names
// only allow letters, digits and '-', so every other character becomes '-'.
// DB_URL and DB-URL therefore share one secret.
func (p *AzureKeyVaultProvider) SecretName(addr provider.Address) string {
	name := "secretspec-" + addr.Project + "-" + addr.Profile + "-" + addr.Key
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, name)
}

func (p *AzureKeyVaultProvider) credential() (azcore.TokenCredential, error) {
	switch {
	case p.config.UseManagedIdentity && p.config.UserAssignedID != "":
		return azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(p.config.UserAssignedID),
		})
	case p.config.UseManagedIdentity:
		return azidentity.NewManagedIdentityCredential(nil)
	case p.config.ClientSecret != "":
		return azidentity.NewClientSecretCredential(p.config.TenantID, p.config.ClientID, p.config.ClientSecret, nil)
	}
	return azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		TenantID: p.config.TenantID,
	})
}

func (p *AzureKeyVaultProvider) getClient() (AzureKeyVaultClientAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	cred, err := p.credential()
	if err != nil {
		return nil, provider.UnavailableError{Provider: p.Name(), Message: "failed to create Azure credential", Err: err}
	}
	client, err := azsecrets.NewClient(p.config.VaultURL, cred, nil)
	if err != nil {
		return nil, provider.UnavailableError{Provider: p.Name(), Message: "failed to create Key Vault client", Err: err}
	}
	p.client = client
	return p.client, nil
}

// Get reads the current version of the secret.
func (p *AzureKeyVaultProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	client, err := p.getClient()
	if err != nil {
		return "", false, err
	}

	name := p.SecretName(addr)
	p.logger.Debug("Accessing Azure Key Vault secret: %s", name)

	resp, err := client.GetSecret(ctx, name, "", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, classifyAzureError(p.Name(), addr, false, err)
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

// Set writes a new version of the secret; Key Vault creates the secret on
// the first write.
func (p *AzureKeyVaultProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	client, err := p.getClient()
	if err != nil {
		return err
	}

	name := p.SecretName(addr)
	p.logger.Debug("Setting Azure Key Vault secret %s = %s", name, logging.Secret(value))

	_, err = client.SetSecret(ctx, name, azsecrets.SetSecretParameters{
		Value: to.Ptr(value),
		Tags: map[string]*string{
			"managed-by":      to.Ptr("secretspec"),
			"secretspec-path": to.Ptr(addr.Path()),
		},
	}, nil)
	if err != nil {
		return classifyAzureError(p.Name(), addr, true, err)
	}
	return nil
}

func classifyAzureError(providerName string, addr provider.Address, write bool, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		// Credential and transport failures.
		return provider.UnavailableError{Provider: providerName, Message: "could not reach Azure Key Vault", Err: err}
	}
	switch respErr.StatusCode {
	case http.StatusForbidden:
		if write {
			return provider.WriteRejectedError{Provider: providerName, Key: addr.Key, Err: err}
		}
		return provider.UnavailableError{Provider: providerName, Message: respErr.ErrorCode, Err: err}
	case http.StatusUnauthorized:
		return provider.UnavailableError{Provider: providerName, Message: respErr.ErrorCode, Err: err}
	}
	return fmt.Errorf("%s: %w", providerName, err)
}
