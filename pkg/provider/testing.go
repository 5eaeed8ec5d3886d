package provider

import (
	"context"
	"testing"
)

// ContractTest defines the standard suite every backend must pass.
type ContractTest struct {
	// CreateProvider returns a fresh, empty provider instance.
	CreateProvider func(t *testing.T) Provider

	// Project is the project name used for addresses. Defaults to
	// "contract-test".
	Project string

	// SkipSpecialCharacters skips values the backend cannot represent
	// (for example a backend that trims or re-encodes its input).
	SkipSpecialCharacters bool
}

// SpecialValues are the awkward values every writable backend must store
// and return unchanged.
var SpecialValues = map[string]string{
	"SPACES":             "value with spaces",
	"NEWLINES":           "line1\nline2\nline3",
	"SPECIAL":            "!@#%^&*()_+-=[]{}|;',./<>?",
	"UNICODE":            "🔐 Secret with émojis and ñ",
	"URL":                "postgres://user:p@ss@localhost:5432/db?sslmode=disable",
	"DOLLARS":            "$HOME and ${PATH}",
	"BACKSLASH":          `C:\Users\secret`,
	"TRAILING_BACKSLASH": `abc\`,
	"BACKSLASH_ONLY":     `\`,
	"MIXED_QUOTES":       `it's "q"`,
	"ESCAPED_QUOTE":      `x\"`,
}

// RunContractTests runs the standard provider contract test suite
func RunContractTests(t *testing.T, contract ContractTest) {
	t.Helper()

	project := contract.Project
	if project == "" {
		project = "contract-test"
	}

	t.Run("Contract", func(t *testing.T) {
		t.Run("Identity", func(t *testing.T) {
			p := contract.CreateProvider(t)
			if p.Name() == "" {
				t.Error("Provider.Name() returned empty string")
			}
			if p.Description() == "" {
				t.Error("Provider.Description() returned empty string")
			}
			name, writable := p.Name(), p.AllowsSet()
			if name != p.Name() || writable != p.AllowsSet() {
				t.Error("provider identity is not stable between calls")
			}
		})

		t.Run("MissingKeyIsAbsent", func(t *testing.T) {
			p := contract.CreateProvider(t)
			value, found, err := p.Get(context.Background(), Address{Project: project, Profile: "default", Key: "DOES_NOT_EXIST"})
			if err != nil {
				t.Fatalf("Get on missing key returned error: %v", err)
			}
			if found {
				t.Errorf("Get on missing key reported found with value %q", value)
			}
		})

		t.Run("ReadOnly", func(t *testing.T) {
			p := contract.CreateProvider(t)
			if p.AllowsSet() {
				t.Skip("provider is writable")
			}
			err := p.Set(context.Background(), Address{Project: project, Profile: "default", Key: "KEY"}, "value")
			if !IsReadOnly(err) {
				t.Errorf("Set on read-only provider returned %v, want ReadOnlyError", err)
			}
		})

		t.Run("RoundTrip", func(t *testing.T) {
			p := contract.CreateProvider(t)
			if !p.AllowsSet() {
				t.Skip("provider is read-only")
			}
			ctx := context.Background()
			for key, want := range SpecialValues {
				if contract.SkipSpecialCharacters && key != "SPACES" && key != "UNICODE" {
					continue
				}
				addr := Address{Project: project, Profile: "default", Key: key}
				if err := p.Set(ctx, addr, want); err != nil {
					t.Fatalf("Set(%s) failed: %v", key, err)
				}
				got, found, err := p.Get(ctx, addr)
				if err != nil {
					t.Fatalf("Get(%s) failed: %v", key, err)
				}
				if !found {
					t.Fatalf("Get(%s) did not find the value just written", key)
				}
				if got != want {
					t.Errorf("Get(%s) = %q, want %q", key, got, want)
				}
			}
		})

		t.Run("Overwrite", func(t *testing.T) {
			p := contract.CreateProvider(t)
			if !p.AllowsSet() {
				t.Skip("provider is read-only")
			}
			ctx := context.Background()
			addr := Address{Project: project, Profile: "default", Key: "OVERWRITE"}
			for _, v := range []string{"first", "second"} {
				if err := p.Set(ctx, addr, v); err != nil {
					t.Fatalf("Set(%q) failed: %v", v, err)
				}
			}
			got, found, err := p.Get(ctx, addr)
			if err != nil || !found || got != "second" {
				t.Errorf("Get after overwrite = %q, %v, %v; want \"second\"", got, found, err)
			}
		})

		t.Run("ProfileIsolation", func(t *testing.T) {
			p := contract.CreateProvider(t)
			if !p.AllowsSet() {
				t.Skip("provider is read-only")
			}
			if profileBlind(p) {
				t.Skip("provider stores one namespace per file")
			}
			ctx := context.Background()
			profiles := []string{"dev", "staging", "prod"}
			for _, profile := range profiles {
				addr := Address{Project: project, Profile: profile, Key: "ISOLATED"}
				if err := p.Set(ctx, addr, profile+"-value"); err != nil {
					t.Fatalf("Set in %s failed: %v", profile, err)
				}
			}
			for _, profile := range profiles {
				got, found, err := p.Get(ctx, Address{Project: project, Profile: profile, Key: "ISOLATED"})
				if err != nil || !found {
					t.Fatalf("Get in %s = found %v, err %v", profile, found, err)
				}
				if got != profile+"-value" {
					t.Errorf("profile %s leaked value %q", profile, got)
				}
			}
		})

		t.Run("ProjectIsolation", func(t *testing.T) {
			p := contract.CreateProvider(t)
			if !p.AllowsSet() {
				t.Skip("provider is read-only")
			}
			if profileBlind(p) {
				t.Skip("provider stores one namespace per file")
			}
			ctx := context.Background()
			if err := p.Set(ctx, Address{Project: project, Profile: "default", Key: "SHARED"}, "mine"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			_, found, err := p.Get(ctx, Address{Project: project + "-other", Profile: "default", Key: "SHARED"})
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if found {
				t.Error("value written for one project is visible from another")
			}
		})
	})
}

// FlatNamespace is implemented by providers that keep a single namespace
// per store, such as a dotenv file, where project and profile are implied
// by which store was opened.
type FlatNamespace interface {
	FlatNamespace() bool
}

func profileBlind(p Provider) bool {
	f, ok := p.(FlatNamespace)
	return ok && f.FlatNamespace()
}
