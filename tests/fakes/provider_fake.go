// Package fakes provides manual fake implementations for testing.
//
// Fakes are test doubles that have working implementations but take shortcuts
// compared to production code. They are more realistic than mocks but simpler
// than real implementations, making them ideal for testing.
package fakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/secretspec/pkg/provider"
)

// FakeProvider is a manual fake implementation of provider.Provider.
//
// It stores secrets in memory keyed by the address path and can be
// configured to fail for specific keys or to refuse writes.
//
// Example usage:
//
//	fake := fakes.NewFakeProvider("test").
//	    WithSecret(provider.Address{Project: "app", Profile: "default", Key: "DB"}, "secret123").
//	    WithError("API_KEY", errors.New("connection failed"))
type FakeProvider struct {
	name     string
	readOnly bool

	// Test data storage
	secrets map[string]string // address path -> value

	// Behavior control
	failOn   map[string]error // key -> error returned by Get
	setErr   error
	setOn    map[string]error // key -> error returned by Set
	getDelay time.Duration

	// Call tracking
	callCount map[string]int
	gets      []provider.Address

	// Thread safety
	mu sync.RWMutex
}

// NewFakeProvider creates a new, writable FakeProvider with the given name.
func NewFakeProvider(name string) *FakeProvider {
	return &FakeProvider{
		name:      name,
		secrets:   make(map[string]string),
		failOn:    make(map[string]error),
		setOn:     make(map[string]error),
		callCount: make(map[string]int),
	}
}

// WithSecret stores a value at addr.
func (f *FakeProvider) WithSecret(addr provider.Address, value string) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.secrets[addr.Path()] = value
	return f
}

// WithError makes Get return err for every address whose key is key.
func (f *FakeProvider) WithError(key string, err error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failOn[key] = err
	return f
}

// WithSetError makes every Set return err.
func (f *FakeProvider) WithSetError(err error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.setErr = err
	return f
}

// WithSetErrorFor makes Set fail with err for one key only.
func (f *FakeProvider) WithSetErrorFor(key string, err error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setOn[key] = err
	return f
}

// WithDelay adds artificial latency to Get calls.
func (f *FakeProvider) WithDelay(d time.Duration) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getDelay = d
	return f
}

// ReadOnly makes AllowsSet report false and Set return ReadOnlyError.
func (f *FakeProvider) ReadOnly() *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.readOnly = true
	return f
}

// Name returns the provider's scheme.
func (f *FakeProvider) Name() string {
	return f.name
}

// Description returns a fixed summary.
func (f *FakeProvider) Description() string {
	return "in-memory fake provider"
}

// AllowsSet reports whether the fake accepts writes.
func (f *FakeProvider) AllowsSet() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return !f.readOnly
}

// Get returns the stored value, or found=false when nothing is stored.
func (f *FakeProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	f.trackCall("Get")

	if f.getDelay > 0 {
		select {
		case <-time.After(f.getDelay):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets = append(f.gets, addr)
	if err, ok := f.failOn[addr.Key]; ok {
		return "", false, err
	}
	value, ok := f.secrets[addr.Path()]
	return value, ok, nil
}

// Set stores value at addr.
func (f *FakeProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	f.trackCall("Set")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readOnly {
		return provider.ReadOnlyError{Provider: f.name}
	}
	if f.setErr != nil {
		return f.setErr
	}
	if err, ok := f.setOn[addr.Key]; ok {
		return err
	}
	f.secrets[addr.Path()] = value
	return nil
}

// Stored returns what is stored at addr without counting as a call.
func (f *FakeProvider) Stored(addr provider.Address) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	value, ok := f.secrets[addr.Path()]
	return value, ok
}

// Gets returns every address passed to Get, in call order.
func (f *FakeProvider) Gets() []provider.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]provider.Address(nil), f.gets...)
}

// GetCallCount returns the number of times a method was called.
// Method names: "Get", "Set".
func (f *FakeProvider) GetCallCount(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.callCount[method]
}

// ResetCallCount resets all method call counters to zero.
func (f *FakeProvider) ResetCallCount() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callCount = make(map[string]int)
	f.gets = nil
}

// trackCall increments the call counter for a method.
func (f *FakeProvider) trackCall(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callCount[method]++
}

// String returns a string representation of the fake provider.
func (f *FakeProvider) String() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return fmt.Sprintf("FakeProvider{name=%s, secrets=%d}", f.name, len(f.secrets))
}

var _ provider.Provider = (*FakeProvider)(nil)
