package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/systmms/secretspec/internal/logging"
	pkgexec "github.com/systmms/secretspec/pkg/exec"
	"github.com/systmms/secretspec/pkg/provider"
)

// EnvBWSAccessToken is the machine account token read when the URI carries
// none.
const EnvBWSAccessToken = "BWS_ACCESS_TOKEN"

// BWSConfig configures the Bitwarden Secrets Manager provider.
type BWSConfig struct {
	// ProjectID scopes listing and is required for writes.
	ProjectID string
	// Token overrides BWS_ACCESS_TOKEN.
	Token string
}

// BWSProvider stores secrets in Bitwarden Secrets Manager through the bws
// CLI. Secrets Manager has no notion of profiles, so a secret is named
// {project}_{key} and every profile sees the same value.
type BWSProvider struct {
	config   BWSConfig
	executor pkgexec.CommandExecutor
	lookup   func(string) (string, bool)
	logger   *logging.Logger
}

// NewBWSProvider creates a Secrets Manager provider.
func NewBWSProvider(config BWSConfig) *BWSProvider {
	return NewBWSProviderWithExecutor(config, pkgexec.DefaultExecutor())
}

// NewBWSProviderWithExecutor creates a Secrets Manager provider that runs bws
// through executor.
func NewBWSProviderWithExecutor(config BWSConfig, executor pkgexec.CommandExecutor) *BWSProvider {
	return &BWSProvider{
		config:   config,
		executor: executor,
		lookup:   os.LookupEnv,
		logger:   logging.New(false, false),
	}
}

// NewBWSProviderFactory handles bws://[project-id]?project=&token=
// A missing token is only reported when the provider is used.
func NewBWSProviderFactory(u provider.URI) (provider.Provider, error) {
	cfg := BWSConfig{Token: u.Param("token")}
	if u.Host != "localhost" {
		cfg.ProjectID = u.Host
	}
	if v := u.Param("project"); v != "" {
		cfg.ProjectID = v
	}
	return NewBWSProvider(cfg), nil
}

func (p *BWSProvider) Name() string { return "bws" }

func (p *BWSProvider) Description() string {
	if p.config.ProjectID != "" {
		return "Bitwarden Secrets Manager via the bws CLI (project " + p.config.ProjectID + ")"
	}
	return "Bitwarden Secrets Manager via the bws CLI"
}

func (p *BWSProvider) AllowsSet() bool { return true }

// FlatNamespace reports that profiles share one value per key.
func (p *BWSProvider) FlatNamespace() bool { return true }

// SecretName returns the Secrets Manager key used for addr.
func (p *BWSProvider) SecretName(addr provider.Address) string {
	return addr.Project + "_" + addr.Key
}

// BWSSecret is one entry of `bws secret list`.
type BWSSecret struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Note      string `json:"note"`
	ProjectID string `json:"projectId"`
}

func (p *BWSProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	secrets, err := p.list(ctx)
	if err != nil {
		return "", false, err
	}
	if s := p.find(secrets, addr); s != nil {
		return s.Value, true, nil
	}
	return "", false, nil
}

// Set edits the existing secret or creates one in the configured project.
func (p *BWSProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	if p.config.ProjectID == "" {
		return provider.WriteRejectedError{
			Provider: p.Name(),
			Key:      addr.Key,
			Err:      errors.New("a project id is required for writes; use bws://<project-id> or bws://?project=<project-id>"),
		}
	}
	secrets, err := p.list(ctx)
	if err != nil {
		return err
	}

	name := p.SecretName(addr)
	p.logger.Debug("bws set %s = %s", name, logging.Secret(value))

	var args []string
	op := "create"
	if s := p.find(secrets, addr); s != nil {
		op = "edit"
		args = []string{"secret", "edit", s.ID, "--key", name, "--value", value}
	} else {
		args = []string{"secret", "create", name, value, p.config.ProjectID, "--note", managedSecretNote + addr.Project + "/" + addr.Key}
	}
	if _, err := p.run(ctx, op, args...); err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) && mentions([]byte(cliErr.Stderr), "permission", "forbidden", "Resource not found") {
			return provider.WriteRejectedError{Provider: p.Name(), Key: addr.Key, Err: err}
		}
		return err
	}
	return nil
}

func (p *BWSProvider) find(secrets []BWSSecret, addr provider.Address) *BWSSecret {
	name := p.SecretName(addr)
	for i := range secrets {
		if secrets[i].Key == name {
			return &secrets[i]
		}
	}
	for i := range secrets {
		if secrets[i].Key == addr.Key {
			return &secrets[i]
		}
	}
	return nil
}

func (p *BWSProvider) list(ctx context.Context) ([]BWSSecret, error) {
	args := []string{"secret", "list"}
	if p.config.ProjectID != "" {
		args = append(args, p.config.ProjectID)
	}
	stdout, err := p.run(ctx, "list", args...)
	if err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) && mentions([]byte(cliErr.Stderr), "Resource not found", "Not found") {
			return nil, nil
		}
		return nil, err
	}
	var secrets []BWSSecret
	if err := json.Unmarshal(stdout, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse bws secrets: %w", err)
	}
	return secrets, nil
}

func (p *BWSProvider) token() string {
	if p.config.Token != "" {
		return p.config.Token
	}
	v, _ := p.lookup(EnvBWSAccessToken)
	return v
}

func (p *BWSProvider) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	token := p.token()
	if token == "" {
		return nil, provider.UnavailableError{
			Provider: p.Name(),
			Message:  "no access token; set " + EnvBWSAccessToken + " or add ?token= to the provider URI",
		}
	}
	stdout, stderr, err := p.executor.Run(ctx, pkgexec.Command{
		Name: "bws",
		Args: args,
		Env:  []string{EnvBWSAccessToken + "=" + token},
	})
	if err != nil {
		if mentions(stderr, "Failed to parse IdentityTokenResponse") {
			return nil, provider.UnavailableError{
				Provider: p.Name(),
				Message:  "rate limit exceeded, wait about 20 seconds and try again",
			}
		}
		return nil, cliFailure(p.Name(), "bws", op, stderr, err, "Access token is required", "Unauthorized", "invalid access token")
	}
	return stdout, nil
}
