// Package fakes provides test doubles for secretspec provider interfaces.
//
// This package contains fake implementations of external client interfaces
// that allow unit testing of providers without real service dependencies.
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior.
//
// Usage:
//
//	fake := fakes.NewFakeKeychainClient()
//	fake.SetSecret("secretspec/myapp", "default/API_KEY", []byte("secret123"))
//	p := providers.NewKeychainProviderWithClient(fake)
//	// Test provider methods...
package fakes
