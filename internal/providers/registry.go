package providers

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/pkg/provider"
)

// managedSecretNote prefixes the description or note that backends attach
// to entries they create.
const managedSecretNote = "SecretSpec managed secret: "

// ProviderFactory creates a provider instance from a parsed URI. Factories
// only interpret the URI; they must not contact the backend.
type ProviderFactory func(u provider.URI) (provider.Provider, error)

// Registration binds a URI scheme to a backend.
type Registration struct {
	Scheme      string
	Description string
	Example     string
	Factory     ProviderFactory
}

// Registry maps URI schemes to provider factories. It is read-only once
// built.
type Registry struct {
	regs map[string]Registration
}

// NewRegistry builds a registry from the given registrations. Two
// registrations for the same scheme are rejected.
func NewRegistry(regs ...Registration) (*Registry, error) {
	r := &Registry{regs: make(map[string]Registration, len(regs))}
	for _, reg := range regs {
		if _, exists := r.regs[reg.Scheme]; exists {
			return nil, dserrors.DuplicateProviderError{Scheme: reg.Scheme}
		}
		if reg.Factory == nil {
			return nil, fmt.Errorf("provider %q has no factory", reg.Scheme)
		}
		r.regs[reg.Scheme] = reg
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry of built-in providers.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := NewRegistry(Builtin()...)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Builtin lists every backend shipped with secretspec.
func Builtin() []Registration {
	return []Registration{
		{"keyring", "OS keychain (macOS Keychain, Secret Service on Linux)", "keyring://", NewKeychainProviderFactory},
		{"env", "Process environment variables (read-only)", "env://", NewEnvProviderFactory},
		{"dotenv", "A .env file", "dotenv:.env.production", NewDotenvProviderFactory},
		{"onepassword", "1Password via the op CLI", "onepassword://work@Production", NewOnePasswordProviderFactory},
		{"onepassword+token", "1Password with a service account token", "onepassword+token://:ops_token@Production", NewOnePasswordProviderFactory},
		{"bitwarden", "Bitwarden Password Manager via the bw CLI", "bitwarden://my-org@Engineering", NewBitwardenProviderFactory},
		{"bws", "Bitwarden Secrets Manager via the bws CLI", "bws://f47ac10b-58cc-4372-a567-0e02b2c3d479", NewBWSProviderFactory},
		{"lastpass", "LastPass via the lpass CLI", "lastpass://Shared-Team", NewLastPassProviderFactory},
		{"pass", "pass, the standard unix password manager", "pass://secretspec", NewPassProviderFactory},
		{"doppler", "Doppler via the doppler CLI", "doppler://my-project?default_config=dev", NewDopplerProviderFactory},
		{"aws-secretsmanager", "AWS Secrets Manager", "aws-secretsmanager://us-east-1?profile=prod", NewAWSSecretsManagerProviderFactory},
		{"aws-ssm", "AWS Systems Manager Parameter Store", "aws-ssm://eu-west-1", NewAWSSSMProviderFactory},
		{"gcp-secretmanager", "Google Cloud Secret Manager", "gcp-secretmanager://my-gcp-project", NewGCPSecretManagerProviderFactory},
		{"azure-keyvault", "Azure Key Vault", "azure-keyvault://my-vault", NewAzureKeyVaultProviderFactory},
		{"akeyless", "Akeyless static secrets (read-only)", "akeyless://?access_id=p-abc123", NewAkeylessProviderFactory},
		{"postgres", "A shared PostgreSQL table", "postgres://app@db.internal:5432/secrets?sslmode=require", NewPostgresProviderFactory},
		{"mysql", "A shared MySQL table", "mysql://app@db.internal:3306/secrets", NewMySQLProviderFactory},
		{"age", "An age-encrypted JSON file", "age:secrets.age?identity=~/.config/age/key.txt", NewAgeProviderFactory},
		{"infisical", "Infisical via its REST API", "infisical://project-id?default_env=dev", NewInfisicalProviderFactory},
		{"vault", "HashiCorp Vault KV v2", "vault://vault.internal:8200/secret?namespace=team", NewVaultProviderFactory},
	}
}

// Open parses raw and instantiates the backend registered for its scheme.
// Every failure is an InvalidURIError.
func (r *Registry) Open(raw string) (provider.Provider, error) {
	u, err := provider.ParseURI(raw)
	if err != nil {
		return nil, err
	}

	reg, exists := r.regs[u.Scheme]
	if !exists {
		return nil, provider.InvalidURIError{
			URI:    u.String(),
			Reason: fmt.Sprintf("unknown provider %q (available: %v)", u.Scheme, r.Schemes()),
		}
	}

	p, err := reg.Factory(u)
	if err != nil {
		if provider.IsInvalidURI(err) {
			return nil, err
		}
		return nil, provider.InvalidURIError{URI: u.String(), Err: err}
	}
	return p, nil
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	schemes := make([]string, 0, len(r.regs))
	for scheme := range r.regs {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// IsSupported checks if a scheme is registered
func (r *Registry) IsSupported(scheme string) bool {
	_, exists := r.regs[scheme]
	return exists
}

// Registrations returns all registrations sorted by scheme.
func (r *Registry) Registrations() []Registration {
	out := make([]Registration, 0, len(r.regs))
	for _, scheme := range r.Schemes() {
		out = append(out, r.regs[scheme])
	}
	return out
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
