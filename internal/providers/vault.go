package providers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/pkg/provider"
)

const (
	DefaultVaultMount  = "secret"
	DefaultVaultPrefix = "secretspec"
	vaultTimeout       = 30 * time.Second
	vaultK8sTokenPath  = "/var/run/secrets/kubernetes.io/serviceaccount/token"
)

// VaultConfig holds HashiCorp Vault connection settings.
type VaultConfig struct {
	Address    string
	Token      string
	Namespace  string
	Mount      string
	Prefix     string
	AuthMethod string // token, userpass, ldap or kubernetes
	Username   string
	Password   string
	Role       string
	TLSSkip    bool
}

// ApplyEnv fills unset fields from the standard VAULT_* variables.
func (c *VaultConfig) ApplyEnv(lookup func(string) (string, bool)) {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	fill(&c.Address, "VAULT_ADDR")
	fill(&c.Token, "VAULT_TOKEN")
	fill(&c.Namespace, "VAULT_NAMESPACE")
	fill(&c.Password, "VAULT_PASSWORD")
	if v, ok := lookup("VAULT_SKIP_VERIFY"); ok && (v == "1" || strings.EqualFold(v, "true")) {
		c.TLSSkip = true
	}
}

// VaultProvider stores each secret in the KV v2 engine at
// {mount}/data/{prefix}/{project}/{profile}/{key} under the field "value".
type VaultProvider struct {
	config VaultConfig
	logger *logging.Logger
	client *http.Client

	mu    sync.Mutex
	token string
}

// NewVaultProvider creates a Vault provider. Authentication happens on
// first use.
func NewVaultProvider(config VaultConfig) *VaultProvider {
	if config.Mount == "" {
		config.Mount = DefaultVaultMount
	}
	if config.Prefix == "" {
		config.Prefix = DefaultVaultPrefix
	}
	if config.AuthMethod == "" {
		config.AuthMethod = "token"
	}

	client := &http.Client{Timeout: vaultTimeout}
	if config.TLSSkip {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in via tls_skip
		}
	}
	return &VaultProvider{config: config, logger: logging.New(false, false), client: client}
}

// NewVaultProviderFactory handles
// vault://[user[:password]@]host[:port]/mount?namespace=&auth=&role=&prefix=&tls=&tls_skip=
// TLS is used unless tls=false.
func NewVaultProviderFactory(u provider.URI) (provider.Provider, error) {
	config := VaultConfig{
		Namespace:  u.Param("namespace"),
		Mount:      strings.Trim(u.Path, "/"),
		Prefix:     strings.Trim(u.Param("prefix"), "/"),
		AuthMethod: u.Param("auth"),
		Username:   u.User,
		Password:   u.Password,
		Role:       u.Param("role"),
		TLSSkip:    u.Param("tls_skip") == "true",
	}
	if u.Host != "" {
		scheme := "https"
		if u.Param("tls") == "false" {
			scheme = "http"
		}
		config.Address = scheme + "://" + u.Host
	}
	if config.AuthMethod == "" && config.Username != "" {
		config.AuthMethod = "userpass"
	}
	config.ApplyEnv(os.LookupEnv)

	switch config.AuthMethod {
	case "", "token":
	case "userpass", "ldap":
		if config.Username == "" {
			return nil, provider.InvalidURIError{URI: u.String(), Reason: config.AuthMethod + " auth needs a username (vault://user@host)"}
		}
	case "kubernetes", "k8s":
		config.AuthMethod = "kubernetes"
		if config.Role == "" {
			return nil, provider.InvalidURIError{URI: u.String(), Reason: "kubernetes auth needs ?role="}
		}
	default:
		return nil, provider.InvalidURIError{
			URI:    u.String(),
			Reason: fmt.Sprintf("unsupported auth method %q (token, userpass, ldap, kubernetes)", config.AuthMethod),
		}
	}
	if config.Address == "" {
		return nil, provider.InvalidURIError{URI: u.String(), Reason: "a server address is required (vault://host:8200 or VAULT_ADDR)"}
	}
	return NewVaultProvider(config), nil
}

func (v *VaultProvider) Name() string { return "vault" }

func (v *VaultProvider) Description() string {
	return "HashiCorp Vault KV v2 (" + v.config.Address + "/" + v.config.Mount + ")"
}

func (v *VaultProvider) AllowsSet() bool { return true }

// SecretPath returns the KV v2 data path for addr.
func (v *VaultProvider) SecretPath(addr provider.Address) string {
	return v.config.Mount + "/data/" + v.config.Prefix + "/" + addr.Path()
}

func (v *VaultProvider) authenticate(ctx context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.token != "" {
		return v.token, nil
	}

	switch v.config.AuthMethod {
	case "token":
		if v.config.Token == "" {
			return "", provider.UnavailableError{Provider: v.Name(), Message: "no token; set VAULT_TOKEN"}
		}
		v.token = v.config.Token
	case "userpass", "ldap":
		if v.config.Password == "" {
			return "", provider.UnavailableError{Provider: v.Name(), Message: "no password for " + v.config.AuthMethod + " auth; set VAULT_PASSWORD"}
		}
		token, err := v.login(ctx, "auth/"+v.config.AuthMethod+"/login/"+v.config.Username, map[string]any{
			"password": v.config.Password,
		})
		if err != nil {
			return "", err
		}
		v.token = token
	case "kubernetes":
		path := vaultK8sTokenPath
		if custom := os.Getenv("VAULT_K8S_TOKEN_PATH"); custom != "" {
			path = custom
		}
		jwt, err := os.ReadFile(path)
		if err != nil {
			return "", provider.UnavailableError{Provider: v.Name(), Message: "failed to read service account token", Err: err}
		}
		token, err := v.login(ctx, "auth/kubernetes/login", map[string]any{
			"role": v.config.Role,
			"jwt":  strings.TrimSpace(string(jwt)),
		})
		if err != nil {
			return "", err
		}
		v.token = token
	}
	return v.token, nil
}

func (v *VaultProvider) login(ctx context.Context, path string, body map[string]any) (string, error) {
	resp, err := v.do(ctx, http.MethodPost, path, "", body)
	if err != nil {
		return "", provider.UnavailableError{Provider: v.Name(), Message: "login failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", provider.UnavailableError{Provider: v.Name(), Message: "login failed", Err: vaultStatusError(resp)}
	}
	var auth struct {
		Auth struct {
			ClientToken string `json:"client_token"`
		} `json:"auth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if auth.Auth.ClientToken == "" {
		return "", provider.UnavailableError{Provider: v.Name(), Message: "no token received from vault"}
	}
	return auth.Auth.ClientToken, nil
}

func (v *VaultProvider) do(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}

	url := strings.TrimSuffix(v.config.Address, "/") + "/v1/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Vault-Token", token)
	}
	if v.config.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.config.Namespace)
	}
	return v.client.Do(req)
}

// Get reads the "value" field of the latest version.
func (v *VaultProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	token, err := v.authenticate(ctx)
	if err != nil {
		return "", false, err
	}

	v.logger.Debug("vault read %s", v.SecretPath(addr))
	resp, err := v.do(ctx, http.MethodGet, v.SecretPath(addr), token, nil)
	if err != nil {
		return "", false, v.classify(addr, false, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, v.classify(addr, false, vaultStatusError(resp))
	}

	var secret struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&secret); err != nil {
		return "", false, fmt.Errorf("vault: failed to decode %s: %w", v.SecretPath(addr), err)
	}
	value, ok := secret.Data.Data["value"].(string)
	if !ok {
		// A deleted version comes back with null data.
		return "", false, nil
	}
	return value, true, nil
}

// Set writes a new version holding value.
func (v *VaultProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	token, err := v.authenticate(ctx)
	if err != nil {
		return err
	}

	v.logger.Debug("vault write %s = %s", v.SecretPath(addr), logging.Secret(value))
	resp, err := v.do(ctx, http.MethodPost, v.SecretPath(addr), token, map[string]any{
		"data": map[string]string{"value": value},
	})
	if err != nil {
		return v.classify(addr, true, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return v.classify(addr, true, vaultStatusError(resp))
	}
	return nil
}

type vaultHTTPError struct {
	Status int
	Errors []string
}

func (e *vaultHTTPError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("vault returned status %d", e.Status)
	}
	return fmt.Sprintf("vault returned status %d: %s", e.Status, strings.Join(e.Errors, "; "))
}

func vaultStatusError(resp *http.Response) error {
	var body struct {
		Errors []string `json:"errors"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &vaultHTTPError{Status: resp.StatusCode, Errors: body.Errors}
}

// classify maps transport and HTTP failures onto the provider taxonomy.
// Vault answers 403 both for a bad token and for a missing policy.
func (v *VaultProvider) classify(addr provider.Address, write bool, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var httpErr *vaultHTTPError
	var netErr net.Error
	switch {
	case errors.As(err, &httpErr) && httpErr.Status == http.StatusForbidden:
		if write {
			return provider.WriteRejectedError{Provider: v.Name(), Key: addr.Key, Err: err}
		}
		v.mu.Lock()
		v.token = ""
		v.mu.Unlock()
		return provider.UnavailableError{Provider: v.Name(), Message: "permission denied", Err: err}
	case errors.As(err, &httpErr) && (httpErr.Status == http.StatusServiceUnavailable || httpErr.Status == http.StatusTooManyRequests):
		return provider.UnavailableError{Provider: v.Name(), Err: err}
	case errors.As(err, &netErr):
		return provider.UnavailableError{Provider: v.Name(), Message: "cannot reach " + v.config.Address, Err: err}
	}
	return fmt.Errorf("vault: %w", err)
}
