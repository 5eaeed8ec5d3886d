package providers

import (
	"context"
	"errors"
	"runtime"
	"strings"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/internal/providers/contracts"
	"github.com/systmms/secretspec/pkg/provider"
)

// KeychainProvider stores secrets in the OS keychain (macOS Keychain and
// Linux Secret Service). Each project gets its own service entry so the
// items are easy to find in a keychain browser.
type KeychainProvider struct {
	client contracts.KeychainClient
	logger *logging.Logger
}

// NewKeychainProvider creates a new keychain provider
func NewKeychainProvider() *KeychainProvider {
	return NewKeychainProviderWithClient(newPlatformKeychainClient())
}

// NewKeychainProviderWithClient creates a keychain provider with a custom client.
// This is primarily for testing, allowing the keychain client to be mocked.
func NewKeychainProviderWithClient(client contracts.KeychainClient) *KeychainProvider {
	return &KeychainProvider{
		client: client,
		logger: logging.New(false, false),
	}
}

// Name returns the provider name
func (kc *KeychainProvider) Name() string {
	return "keyring"
}

// Description returns a one-line summary for provider listings
func (kc *KeychainProvider) Description() string {
	return "OS keychain (macOS Keychain, Secret Service on Linux)"
}

// Platform returns the current platform (darwin, linux, or unsupported)
func (kc *KeychainProvider) Platform() string {
	return runtime.GOOS
}

// AllowsSet reports that keychain items can be written
func (kc *KeychainProvider) AllowsSet() bool {
	return true
}

// Get retrieves a secret from the OS keychain
func (kc *KeychainProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	if err := kc.available(); err != nil {
		return "", false, err
	}

	service, account := KeychainLocation(addr)
	kc.logger.Debug("keychain query %s/%s", service, account)

	value, err := kc.client.Query(service, account)
	if err != nil {
		if errors.Is(err, ErrKeychainItemNotFound) {
			return "", false, nil
		}
		return "", false, provider.UnavailableError{
			Provider: kc.Name(),
			Message:  kc.hint(err),
			Err:      &KeychainError{Op: "query", Service: service, Account: account, Err: err},
		}
	}
	return string(value), true, nil
}

// Set creates or replaces a keychain item
func (kc *KeychainProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	if err := kc.available(); err != nil {
		return err
	}

	service, account := KeychainLocation(addr)
	kc.logger.Debug("keychain set %s/%s = %s", service, account, logging.Secret(value))

	if err := kc.client.Set(service, account, []byte(value)); err != nil {
		kerr := &KeychainError{Op: "set", Service: service, Account: account, Err: err}
		if isKeychainAccessDeniedError(err) {
			return provider.WriteRejectedError{Provider: kc.Name(), Key: addr.Key, Err: kerr}
		}
		return provider.UnavailableError{Provider: kc.Name(), Message: kc.hint(err), Err: kerr}
	}
	return nil
}

func (kc *KeychainProvider) available() error {
	if !kc.client.IsAvailable() {
		return provider.UnavailableError{Provider: kc.Name(), Err: ErrKeychainUnsupportedPlatform}
	}
	if err := kc.client.Validate(); err != nil {
		return provider.UnavailableError{Provider: kc.Name(), Message: kc.hint(err), Err: err}
	}
	return nil
}

func (kc *KeychainProvider) hint(err error) string {
	switch {
	case errors.Is(err, ErrKeychainLocked):
		return "unlock the keychain and try again"
	case kc.client.IsHeadless():
		return "no desktop session detected; the keychain may need a GUI to unlock. Consider env:// or dotenv:// in CI"
	}
	return ""
}

// KeychainLocation maps an address to the keychain service and account
// names: service "secretspec/{project}", account "{profile}/{key}".
func KeychainLocation(addr provider.Address) (service, account string) {
	return "secretspec/" + addr.Project, addr.Profile + "/" + addr.Key
}

// isKeychainAccessDeniedError checks if an error indicates access was denied
func isKeychainAccessDeniedError(err error) bool {
	if errors.Is(err, ErrKeychainAccessDenied) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "accessDenied")
}

// NewKeychainProviderFactory creates a keychain provider. The keyring URI
// takes no parameters.
func NewKeychainProviderFactory(u provider.URI) (provider.Provider, error) {
	if loc := u.Location(); loc != "" && loc != "localhost" {
		return nil, provider.InvalidURIError{URI: u.String(), Reason: "keyring takes no location; use keyring://"}
	}
	return NewKeychainProvider(), nil
}
