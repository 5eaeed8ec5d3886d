package fakes

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/internal/providers/contracts"
)

// FakeInfisicalClient is a test double for contracts.InfisicalClient. Like
// the real API it refuses writes into folders that do not exist.
type FakeInfisicalClient struct {
	mu sync.Mutex

	Token    string
	TokenTTL time.Duration

	// Secrets maps "{env}:{secretPath}" to a name/value map.
	Secrets map[string]map[string]string

	// Folders lists the "{env}:{secretPath}" locations that accept writes.
	// Nil means every location exists.
	Folders map[string]bool

	// AuthErr is returned by Authenticate if set
	AuthErr error

	// GetErr is returned by GetSecret if set
	GetErr error

	AuthCallCount int
}

// NewFakeInfisicalClient creates an empty fake with a 10 minute token.
func NewFakeInfisicalClient() *FakeInfisicalClient {
	return &FakeInfisicalClient{
		Token:    "fake-infisical-token",
		TokenTTL: 10 * time.Minute,
		Secrets:  make(map[string]map[string]string),
	}
}

func infisicalKey(loc contracts.InfisicalLocation) string {
	return loc.Environment + ":" + loc.SecretPath
}

// Put stores a secret directly, bypassing the folder check.
func (f *FakeInfisicalClient) Put(env, secretPath, name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := env + ":" + secretPath
	if f.Secrets[key] == nil {
		f.Secrets[key] = make(map[string]string)
	}
	f.Secrets[key][name] = value
}

// Authenticate implements contracts.InfisicalClient
func (f *FakeInfisicalClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AuthCallCount++
	if f.AuthErr != nil {
		return "", 0, f.AuthErr
	}
	return f.Token, f.TokenTTL, nil
}

// GetSecret implements contracts.InfisicalClient
func (f *FakeInfisicalClient) GetSecret(ctx context.Context, token string, loc contracts.InfisicalLocation, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return "", false, f.GetErr
	}
	if token != f.Token {
		return "", false, &providers.InfisicalError{Op: "fetch", StatusCode: http.StatusUnauthorized, Message: "Token invalid"}
	}
	value, ok := f.Secrets[infisicalKey(loc)][name]
	return value, ok, nil
}

// SetSecret implements contracts.InfisicalClient
func (f *FakeInfisicalClient) SetSecret(ctx context.Context, token string, loc contracts.InfisicalLocation, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != f.Token {
		return &providers.InfisicalError{Op: "update", StatusCode: http.StatusUnauthorized, Message: "Token invalid"}
	}
	key := infisicalKey(loc)
	if f.Folders != nil && !f.Folders[key] {
		return &providers.InfisicalError{Op: "create", StatusCode: http.StatusNotFound, Message: "Folder with path '" + loc.SecretPath + "' not found"}
	}
	if f.Secrets[key] == nil {
		f.Secrets[key] = make(map[string]string)
	}
	f.Secrets[key][name] = value
	return nil
}

var _ contracts.InfisicalClient = (*FakeInfisicalClient)(nil)
