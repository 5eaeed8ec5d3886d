package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/pkg/provider"
)

// GCPSecretManagerAPI is the subset of the Secret Manager client used by
// GCPSecretManagerProvider.
type GCPSecretManagerAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error)
}

// GCPSecretManagerConfig holds GCP Secret Manager-specific configuration
type GCPSecretManagerConfig struct {
	ProjectID          string
	CredentialsFile    string
	ImpersonateAccount string
	Endpoint           string
}

// GCPSecretManagerProvider stores each secret as a Secret Manager secret
// named secretspec-{project}-{profile}-{key}. Writes add a new version.
type GCPSecretManagerProvider struct {
	config GCPSecretManagerConfig
	logger *logging.Logger

	mu     sync.Mutex
	client GCPSecretManagerAPI
}

// GCPProviderOption configures a GCPSecretManagerProvider.
type GCPProviderOption func(*GCPSecretManagerProvider)

// WithGCPClient injects a Secret Manager client (for testing).
func WithGCPClient(client GCPSecretManagerAPI) GCPProviderOption {
	return func(p *GCPSecretManagerProvider) {
		p.client = client
	}
}

// NewGCPSecretManagerProvider creates a new GCP Secret Manager provider.
func NewGCPSecretManagerProvider(config GCPSecretManagerConfig, opts ...GCPProviderOption) *GCPSecretManagerProvider {
	p := &GCPSecretManagerProvider{
		config: config,
		logger: logging.New(false, false),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewGCPSecretManagerProviderFactory handles
// gcp-secretmanager://project-id?credentials=&impersonate=&endpoint=
// The project falls back to GOOGLE_CLOUD_PROJECT, GCLOUD_PROJECT and
// GCP_PROJECT.
func NewGCPSecretManagerProviderFactory(u provider.URI) (provider.Provider, error) {
	config := GCPSecretManagerConfig{
		ProjectID:          u.Host,
		CredentialsFile:    expandHome(u.Param("credentials")),
		ImpersonateAccount: u.Param("impersonate"),
		Endpoint:           u.Param("endpoint"),
	}
	if v := u.Param("project"); v != "" {
		config.ProjectID = v
	}
	if config.ProjectID == "" {
		config.ProjectID = gcpProjectFromEnv(os.LookupEnv)
	}
	if config.ProjectID == "" {
		return nil, provider.InvalidURIError{
			URI:    u.String(),
			Reason: "a Google Cloud project is required (gcp-secretmanager://PROJECT or GOOGLE_CLOUD_PROJECT)",
		}
	}
	return NewGCPSecretManagerProvider(config), nil
}

func gcpProjectFromEnv(lookup func(string) (string, bool)) string {
	for _, name := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"} {
		if v, ok := lookup(name); ok && v != "" {
			return v
		}
	}
	return ""
}

func (p *GCPSecretManagerProvider) Name() string { return "gcp-secretmanager" }

func (p *GCPSecretManagerProvider) Description() string {
	return "Google Cloud Secret Manager (" + p.config.ProjectID + ")"
}

func (p *GCPSecretManagerProvider) AllowsSet() bool { return true }

// SecretID returns the secret id used for addr. Secret ids may only contain
// letters, digits, '-' and '_'; anything else becomes '_', so keys that
// differ only there collide.
func (p *GCPSecretManagerProvider) SecretID(addr provider.Address) string {
	id := "secretspec-" + addr.Project + "-" + addr.Profile + "-" + addr.Key
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

func (p *GCPSecretManagerProvider) secretName(addr provider.Address) string {
	return fmt.Sprintf("projects/%s/secrets/%s", p.config.ProjectID, p.SecretID(addr))
}

func (p *GCPSecretManagerProvider) getClient(ctx context.Context) (GCPSecretManagerAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	var clientOptions []option.ClientOption
	if p.config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(p.config.CredentialsFile))
	}
	if p.config.ImpersonateAccount != "" {
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: p.config.ImpersonateAccount,
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
		}, clientOptions...)
		if err != nil {
			return nil, provider.UnavailableError{Provider: p.Name(), Message: "failed to impersonate " + p.config.ImpersonateAccount, Err: err}
		}
		clientOptions = []option.ClientOption{option.WithTokenSource(ts)}
	}
	if p.config.Endpoint != "" {
		clientOptions = append(clientOptions, option.WithEndpoint(p.config.Endpoint))
	}

	client, err := secretmanager.NewClient(ctx, clientOptions...)
	if err != nil {
		return nil, provider.UnavailableError{Provider: p.Name(), Message: "failed to create Secret Manager client", Err: err}
	}
	p.client = gcpClient{client}
	return p.client, nil
}

// Get reads the latest version of the secret.
func (p *GCPSecretManagerProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", false, err
	}

	name := p.secretName(addr) + "/versions/latest"
	p.logger.Debug("Accessing GCP secret: %s", name)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound, codes.FailedPrecondition:
			// FailedPrecondition: the latest version is disabled or destroyed.
			return "", false, nil
		}
		return "", false, classifyGCPError(p.Name(), addr, false, err)
	}
	if result.GetPayload() == nil {
		return "", false, nil
	}
	return string(result.GetPayload().GetData()), true, nil
}

// Set adds a version, creating the secret with automatic replication the
// first time.
func (p *GCPSecretManagerProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	client, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	name := p.secretName(addr)
	p.logger.Debug("Adding version to %s = %s", name, logging.Secret(value))

	err = p.addVersion(ctx, client, name, value)
	if status.Code(err) != codes.NotFound {
		return classifyGCPError(p.Name(), addr, true, err)
	}

	_, err = client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + p.config.ProjectID,
		SecretId: p.SecretID(addr),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
			Labels: map[string]string{"managed-by": "secretspec"},
			Annotations: map[string]string{
				"secretspec/path": addr.Path(),
			},
		},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return classifyGCPError(p.Name(), addr, true, err)
	}
	return classifyGCPError(p.Name(), addr, true, p.addVersion(ctx, client, name, value))
}

func (p *GCPSecretManagerProvider) addVersion(ctx context.Context, client GCPSecretManagerAPI, name, value string) error {
	_, err := client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  name,
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	return err
}

// classifyGCPError maps a gRPC status onto the provider error taxonomy. A
// nil error stays nil.
func classifyGCPError(providerName string, addr provider.Address, write bool, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.PermissionDenied:
		if write {
			return provider.WriteRejectedError{Provider: providerName, Key: addr.Key, Err: err}
		}
		return provider.UnavailableError{Provider: providerName, Message: st.Message(), Err: err}
	case codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return provider.UnavailableError{Provider: providerName, Message: st.Message(), Err: err}
	}
	return fmt.Errorf("%s: %w", providerName, err)
}

// gcpClient adapts *secretmanager.Client to GCPSecretManagerAPI.
type gcpClient struct {
	c *secretmanager.Client
}

func (g gcpClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return g.c.AccessSecretVersion(ctx, req)
}

func (g gcpClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	return g.c.CreateSecret(ctx, req)
}

func (g gcpClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	return g.c.AddSecretVersion(ctx, req)
}
