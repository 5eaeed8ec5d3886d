package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/secretspec/internal/providers/contracts"
)

// FakeAkeylessClient is a test double for contracts.AkeylessClient
type FakeAkeylessClient struct {
	mu sync.Mutex

	// Token is the token returned by Authenticate
	Token string

	// TokenTTL is the TTL returned by Authenticate
	TokenTTL time.Duration

	// Secrets maps item paths to values.
	Secrets map[string]string

	// AuthErr is returned by Authenticate if set
	AuthErr error

	// GetErr is returned by GetSecret if set (overrides Secrets lookup)
	GetErr error

	// AuthCallCount tracks how many times Authenticate was called
	AuthCallCount int

	// GetCallCount tracks how many times GetSecret was called
	GetCallCount int

	// Tokens records the token passed to each GetSecret call.
	Tokens []string
}

// NewFakeAkeylessClient creates a new fake Akeyless client with defaults
func NewFakeAkeylessClient() *FakeAkeylessClient {
	return &FakeAkeylessClient{
		Token:    "fake-akeyless-token",
		TokenTTL: 30 * time.Minute,
		Secrets:  make(map[string]string),
	}
}

// SetSecret adds a secret to the fake Akeyless
func (f *FakeAkeylessClient) SetSecret(path, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[path] = value
}

// Authenticate implements contracts.AkeylessClient
func (f *FakeAkeylessClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AuthCallCount++
	if f.AuthErr != nil {
		return "", 0, f.AuthErr
	}
	return f.Token, f.TokenTTL, nil
}

// GetSecret implements contracts.AkeylessClient
func (f *FakeAkeylessClient) GetSecret(ctx context.Context, token, path string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCallCount++
	f.Tokens = append(f.Tokens, token)
	if f.GetErr != nil {
		return "", false, f.GetErr
	}
	value, ok := f.Secrets[path]
	return value, ok, nil
}

var _ contracts.AkeylessClient = (*FakeAkeylessClient)(nil)
