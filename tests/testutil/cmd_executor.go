// Package testutil provides testing utilities for secretspec.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	pkgexec "github.com/systmms/secretspec/pkg/exec"
)

// MockCommandExecutor provides a configurable mock for testing CLI-based providers.
type MockCommandExecutor struct {
	mu sync.Mutex

	// Responses maps command patterns to their mock responses.
	// Key format: "command arg1 arg2" (space-separated command and args)
	Responses map[string]MockResponse

	// DefaultResponse is used when no matching pattern is found.
	DefaultResponse *MockResponse

	// RecordedCalls stores all calls made to Execute or Run for verification.
	RecordedCalls []RecordedCall

	// StrictMode causes Execute to fail if no matching response is found.
	StrictMode bool
}

// MockResponse defines the expected output for a mocked command.
type MockResponse struct {
	Stdout   []byte
	Stderr   []byte
	Err      error
	ExitCode int // Used to simulate exit codes when Err is nil
}

// RecordedCall stores information about a command execution.
type RecordedCall struct {
	Command string
	Args    []string
	Stdin   []byte
	Env     []string
	Context context.Context
}

// Line returns the call as a single space-separated string.
func (c RecordedCall) Line() string {
	return buildKey(c.Command, c.Args)
}

// NewMockCommandExecutor creates a new mock executor with empty responses.
func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{
		Responses:     make(map[string]MockResponse),
		RecordedCalls: make([]RecordedCall, 0),
	}
}

// Execute returns the mocked response for the given command.
func (m *MockCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return m.Run(ctx, pkgexec.Command{Name: name, Args: args})
}

// Run records the command, including stdin and environment, and returns
// the response whose pattern is the longest prefix of the command line.
func (m *MockCommandExecutor) Run(ctx context.Context, cmd pkgexec.Command) ([]byte, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RecordedCalls = append(m.RecordedCalls, RecordedCall{
		Command: cmd.Name,
		Args:    append([]string(nil), cmd.Args...),
		Stdin:   append([]byte(nil), cmd.Stdin...),
		Env:     append([]string(nil), cmd.Env...),
		Context: ctx,
	})

	key := buildKey(cmd.Name, cmd.Args)

	if resp, ok := m.Responses[key]; ok {
		return resp.result()
	}

	best, found := "", false
	for pattern := range m.Responses {
		if matchesPattern(key, pattern) && len(pattern) > len(best) {
			best, found = pattern, true
		}
	}
	if found {
		return m.Responses[best].result()
	}

	// Use default response if available
	if m.DefaultResponse != nil {
		return m.DefaultResponse.result()
	}

	// Strict mode fails on unknown commands
	if m.StrictMode {
		return nil, nil, fmt.Errorf("mock: no response configured for command: %s", key)
	}

	// Non-strict mode returns empty success
	return []byte{}, []byte{}, nil
}

func (r MockResponse) result() ([]byte, []byte, error) {
	err := r.Err
	if err == nil && r.ExitCode != 0 {
		err = fmt.Errorf("exit status %d", r.ExitCode)
	}
	return r.Stdout, r.Stderr, err
}

// buildKey creates a lookup key from command and arguments.
func buildKey(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// matchesPattern checks if the command key matches a pattern.
// A trailing "*" is accepted and ignored; every pattern is a prefix.
func matchesPattern(key, pattern string) bool {
	return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
}

// AddResponse registers a mock response for a specific command pattern.
func (m *MockCommandExecutor) AddResponse(commandPattern string, response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[commandPattern] = response
}

// AddJSONResponse is a convenience method to add a JSON response.
func (m *MockCommandExecutor) AddJSONResponse(commandPattern string, jsonData string) {
	m.AddResponse(commandPattern, MockResponse{
		Stdout: []byte(jsonData),
		Stderr: []byte{},
		Err:    nil,
	})
}

// AddErrorResponse adds an error response for a command pattern.
func (m *MockCommandExecutor) AddErrorResponse(commandPattern string, errMsg string, exitCode int) {
	m.AddResponse(commandPattern, MockResponse{
		Stdout:   []byte{},
		Stderr:   []byte(errMsg),
		Err:      fmt.Errorf("exit status %d: %s", exitCode, errMsg),
		ExitCode: exitCode,
	})
}

// GetCalls returns all recorded calls matching the given command name.
func (m *MockCommandExecutor) GetCalls(commandName string) []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []RecordedCall
	for _, call := range m.RecordedCalls {
		if call.Command == commandName {
			matches = append(matches, call)
		}
	}
	return matches
}

// LastCall returns the most recent call, or a zero RecordedCall.
func (m *MockCommandExecutor) LastCall() RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.RecordedCalls) == 0 {
		return RecordedCall{}
	}
	return m.RecordedCalls[len(m.RecordedCalls)-1]
}

// CallCount returns the number of times Execute was called.
func (m *MockCommandExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RecordedCalls)
}

// Reset clears all recorded calls and responses.
func (m *MockCommandExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = make(map[string]MockResponse)
	m.RecordedCalls = make([]RecordedCall, 0)
	m.DefaultResponse = nil
}

// AssertCalled verifies that a specific command was called at least once.
func (m *MockCommandExecutor) AssertCalled(t interface{ Error(args ...interface{}) }, commandName string) bool {
	calls := m.GetCalls(commandName)
	if len(calls) == 0 {
		t.Error("expected command", commandName, "to be called, but it was not")
		return false
	}
	return true
}

// AssertNotCalled verifies that a specific command was never called.
func (m *MockCommandExecutor) AssertNotCalled(t interface{ Error(args ...interface{}) }, commandName string) bool {
	calls := m.GetCalls(commandName)
	if len(calls) > 0 {
		t.Error("expected command", commandName, "to not be called, but it was called", len(calls), "times")
		return false
	}
	return true
}

// AssertCallCount verifies the exact number of times a command was called.
func (m *MockCommandExecutor) AssertCallCount(t interface{ Error(args ...interface{}) }, commandName string, expected int) bool {
	calls := m.GetCalls(commandName)
	if len(calls) != expected {
		t.Error("expected command", commandName, "to be called", expected, "times, but was called", len(calls), "times")
		return false
	}
	return true
}

var _ pkgexec.CommandExecutor = (*MockCommandExecutor)(nil)

// BitwardenMockResponses provides pre-configured responses for Bitwarden CLI.
type BitwardenMockResponses struct{}

// StatusUnlocked returns a mock response for an unlocked Bitwarden vault.
func (BitwardenMockResponses) StatusUnlocked() MockResponse {
	return MockResponse{
		Stdout: []byte(`{
			"serverUrl": "https://vault.bitwarden.com",
			"lastSync": "2024-01-15T10:30:00.000Z",
			"userEmail": "user@example.com",
			"userId": "user-123",
			"status": "unlocked"
		}`),
	}
}

// StatusLocked returns a mock response for a locked Bitwarden vault.
func (BitwardenMockResponses) StatusLocked() MockResponse {
	return MockResponse{
		Stdout: []byte(`{
			"serverUrl": "https://vault.bitwarden.com",
			"lastSync": "2024-01-15T10:30:00.000Z",
			"userEmail": "user@example.com",
			"userId": "user-123",
			"status": "locked"
		}`),
	}
}

// StatusUnauthenticated returns a mock response for unauthenticated state.
func (BitwardenMockResponses) StatusUnauthenticated() MockResponse {
	return MockResponse{
		Stdout: []byte(`{
			"serverUrl": "https://vault.bitwarden.com",
			"lastSync": null,
			"userEmail": null,
			"userId": null,
			"status": "unauthenticated"
		}`),
	}
}

// LoginItems returns a `bw list items` response holding one login item.
func (BitwardenMockResponses) LoginItems(id, name, username, password string) MockResponse {
	return MockResponse{
		Stdout: []byte(fmt.Sprintf(`[{
			"id": %q,
			"name": %q,
			"type": 1,
			"login": {
				"username": %q,
				"password": %q,
				"totp": "JBSWY3DPEHPK3PXP",
				"uris": [
					{"uri": "https://example.com", "match": null}
				]
			},
			"fields": [
				{"name": "api_key", "value": "secret-key-123", "type": 1}
			],
			"notes": "Test notes for the item"
		}]`, id, name, username, password)),
	}
}

// OnePasswordMockResponses provides pre-configured responses for 1Password CLI.
type OnePasswordMockResponses struct{}

// ItemGet returns a mock `op item get --format json` response.
func (OnePasswordMockResponses) ItemGet(vault, title, password string) MockResponse {
	return MockResponse{
		Stdout: []byte(fmt.Sprintf(`{
			"id": "abc123",
			"title": %q,
			"vault": {
				"id": "v1",
				"name": %q
			},
			"category": "PASSWORD",
			"fields": [
				{"id": "password", "type": "CONCEALED", "purpose": "PASSWORD", "label": "password", "value": %q},
				{"id": "notesPlain", "type": "STRING", "purpose": "NOTES", "label": "notesPlain"}
			]
		}`, title, vault, password)),
	}
}

// PassMockResponses provides pre-configured responses for pass CLI.
type PassMockResponses struct{}

// Show returns a stored entry as `pass show` prints it.
func (PassMockResponses) Show(password string) MockResponse {
	return MockResponse{
		Stdout: []byte(password + "\n"),
	}
}
