//go:build linux

package providers

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/systmms/secretspec/internal/providers/contracts"
)

// linuxKeychainClient implements KeychainClient for Linux (Secret Service)
type linuxKeychainClient struct{}

// newPlatformKeychainClient creates the platform-specific keychain client
func newPlatformKeychainClient() contracts.KeychainClient {
	return &linuxKeychainClient{}
}

// Query retrieves a secret from Linux Secret Service
func (c *linuxKeychainClient) Query(service, account string) ([]byte, error) {
	secret, err := keyring.Get(service, account)
	if err != nil {
		return nil, translateSecretServiceError(err)
	}
	return []byte(secret), nil
}

// Set stores a secret in Linux Secret Service
func (c *linuxKeychainClient) Set(service, account string, value []byte) error {
	return translateSecretServiceError(keyring.Set(service, account, string(value)))
}

// Validate checks if Secret Service is reachable over the session bus
func (c *linuxKeychainClient) Validate() error {
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" && os.Getenv("XDG_RUNTIME_DIR") == "" {
		return errors.New("no D-Bus session bus found; start gnome-keyring or KWallet")
	}
	return nil
}

// IsAvailable returns true; whether a Secret Service daemon answers is
// only known once it is called
func (c *linuxKeychainClient) IsAvailable() bool {
	return true
}

// IsHeadless returns true if running in headless environment
func (c *linuxKeychainClient) IsHeadless() bool {
	// Check for SSH session
	if os.Getenv("SSH_TTY") != "" {
		return true
	}
	// Check if no display is available
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return true
	}
	// Check for CI environments
	return os.Getenv("CI") != ""
}

func translateSecretServiceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrKeychainItemNotFound
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "locked"):
		return ErrKeychainLocked
	case strings.Contains(msg, "dismissed"), strings.Contains(msg, "denied"):
		return ErrKeychainAccessDenied
	}
	return err
}

// Ensure linuxKeychainClient implements contracts.KeychainClient
var _ contracts.KeychainClient = (*linuxKeychainClient)(nil)
