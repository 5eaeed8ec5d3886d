//go:build darwin

package providers

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/systmms/secretspec/internal/providers/contracts"
)

// darwinKeychainClient implements KeychainClient for macOS
type darwinKeychainClient struct{}

// newPlatformKeychainClient creates the platform-specific keychain client
func newPlatformKeychainClient() contracts.KeychainClient {
	return &darwinKeychainClient{}
}

// Query retrieves a secret from the macOS keychain
func (c *darwinKeychainClient) Query(service, account string) ([]byte, error) {
	secret, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrKeychainItemNotFound
		}
		if isAccessDenied(err) {
			return nil, ErrKeychainAccessDenied
		}
		return nil, err
	}
	return []byte(secret), nil
}

// Set stores a secret in the macOS keychain, replacing any existing item
func (c *darwinKeychainClient) Set(service, account string, value []byte) error {
	err := keyring.Set(service, account, string(value))
	if isAccessDenied(err) {
		return ErrKeychainAccessDenied
	}
	return err
}

// Validate checks if the keychain is accessible
func (c *darwinKeychainClient) Validate() error {
	// On macOS, keychain is always available if we're running on the platform
	return nil
}

// IsAvailable returns true since we're on macOS
func (c *darwinKeychainClient) IsAvailable() bool {
	return true
}

// IsHeadless returns true if running in headless environment
func (c *darwinKeychainClient) IsHeadless() bool {
	// Check for SSH session
	if os.Getenv("SSH_TTY") != "" {
		return true
	}
	// Check for CI environments
	return os.Getenv("CI") != ""
}

// isAccessDenied checks if an error indicates access was denied
func isAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "user denied") ||
		strings.Contains(errStr, "canceled")
}

// Ensure darwinKeychainClient implements contracts.KeychainClient
var _ contracts.KeychainClient = (*darwinKeychainClient)(nil)
