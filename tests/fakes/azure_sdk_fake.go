package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// AzureSecretData holds the data for a mock Azure Key Vault secret
type AzureSecretData struct {
	Value   string
	Tags    map[string]*string
	Enabled bool
	// Versions counts SetSecret calls.
	Versions int
}

// FakeAzureKeyVaultClient is an in-memory Key Vault. Secret names are
// case-insensitive, as in the real service.
type FakeAzureKeyVaultClient struct {
	mu sync.Mutex

	Secrets map[string]*AzureSecretData

	GetErr error
	SetErr error
}

// NewFakeAzureKeyVaultClient creates a new mock Azure Key Vault client
func NewFakeAzureKeyVaultClient() *FakeAzureKeyVaultClient {
	return &FakeAzureKeyVaultClient{Secrets: make(map[string]*AzureSecretData)}
}

// AddSecretString adds a string secret to the mock client
func (f *FakeAzureKeyVaultClient) AddSecretString(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[strings.ToLower(name)] = &AzureSecretData{Value: value, Enabled: true, Versions: 1}
}

// Secret returns the stored secret or nil.
func (f *FakeAzureKeyVaultClient) Secret(name string) *AzureSecretData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Secrets[strings.ToLower(name)]
}

func (f *FakeAzureKeyVaultClient) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GetErr != nil {
		return azsecrets.GetSecretResponse{}, f.GetErr
	}
	s, ok := f.Secrets[strings.ToLower(name)]
	if !ok {
		return azsecrets.GetSecretResponse{}, AzureNotFoundError(name)
	}
	if !s.Enabled {
		return azsecrets.GetSecretResponse{}, AzureForbiddenError("Operation get is not allowed on a disabled secret.")
	}
	now := time.Now()
	return azsecrets.GetSecretResponse{
		Secret: azsecrets.Secret{
			ID:    to.Ptr(azsecrets.ID(fmt.Sprintf("https://test-vault.vault.azure.net/secrets/%s/%d", name, s.Versions))),
			Value: to.Ptr(s.Value),
			Tags:  s.Tags,
			Attributes: &azsecrets.SecretAttributes{
				Enabled: to.Ptr(true),
				Updated: &now,
			},
		},
	}, nil
}

func (f *FakeAzureKeyVaultClient) SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetErr != nil {
		return azsecrets.SetSecretResponse{}, f.SetErr
	}
	key := strings.ToLower(name)
	s, ok := f.Secrets[key]
	if !ok {
		s = &AzureSecretData{Enabled: true}
		f.Secrets[key] = s
	}
	s.Value = *parameters.Value
	s.Tags = parameters.Tags
	s.Versions++
	return azsecrets.SetSecretResponse{
		Secret: azsecrets.Secret{Value: parameters.Value},
	}, nil
}

// AzureNotFoundError creates a mock Azure not found error
func AzureNotFoundError(secretName string) error {
	return &azcore.ResponseError{
		StatusCode: 404,
		ErrorCode:  "SecretNotFound",
	}
}

// AzureForbiddenError creates a mock Azure forbidden error
func AzureForbiddenError(message string) error {
	return &azcore.ResponseError{
		StatusCode: 403,
		ErrorCode:  "Forbidden",
	}
}

// AzureUnauthorizedError creates a mock Azure unauthorized error
func AzureUnauthorizedError(message string) error {
	return &azcore.ResponseError{
		StatusCode: 401,
		ErrorCode:  "Unauthorized",
	}
}

// AzureThrottledError creates a mock Azure throttled error
func AzureThrottledError() error {
	return &azcore.ResponseError{
		StatusCode: 429,
		ErrorCode:  "TooManyRequests",
	}
}
