package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// GCPSecretData holds one fake Secret Manager secret and its versions.
type GCPSecretData struct {
	Name        string
	CreateTime  *timestamppb.Timestamp
	Labels      map[string]string
	Annotations map[string]string
	Replication *secretmanagerpb.Replication
	// Versions holds payloads in creation order; the last is "latest".
	Versions [][]byte
	// Disabled marks the latest version as disabled.
	Disabled bool
}

// FakeGCPSecretManagerClient is an in-memory Secret Manager keyed by full
// resource name (projects/P/secrets/S).
type FakeGCPSecretManagerClient struct {
	mu sync.Mutex

	Secrets map[string]*GCPSecretData

	// AccessErr and WriteErr, when set, fail every read or write.
	AccessErr error
	WriteErr  error

	Calls []string
}

// NewFakeGCPSecretManagerClient creates a new mock GCP Secret Manager client
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{Secrets: make(map[string]*GCPSecretData)}
}

// AddSecretString stores value as the latest version of secretID.
func (f *FakeGCPSecretManagerClient) AddSecretString(projectID, secretID, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := fmt.Sprintf("projects/%s/secrets/%s", projectID, secretID)
	s, ok := f.Secrets[name]
	if !ok {
		s = &GCPSecretData{Name: name, CreateTime: timestamppb.Now()}
		f.Secrets[name] = s
	}
	s.Versions = append(s.Versions, []byte(value))
}

// Secret returns the stored secret or nil.
func (f *FakeGCPSecretManagerClient) Secret(projectID, secretID string) *GCPSecretData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Secrets[fmt.Sprintf("projects/%s/secrets/%s", projectID, secretID)]
}

func (f *FakeGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "AccessSecretVersion")

	if f.AccessErr != nil {
		return nil, f.AccessErr
	}
	secretName, version, _ := strings.Cut(req.Name, "/versions/")
	s, ok := f.Secrets[secretName]
	if !ok || len(s.Versions) == 0 {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found or has no versions.", secretName)
	}
	if version != "latest" {
		return nil, status.Errorf(codes.InvalidArgument, "fake only serves latest, got %q", version)
	}
	if s.Disabled {
		return nil, status.Errorf(codes.FailedPrecondition, "Secret Version [%s] is in DISABLED state.", req.Name)
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    fmt.Sprintf("%s/versions/%d", secretName, len(s.Versions)),
		Payload: &secretmanagerpb.SecretPayload{Data: s.Versions[len(s.Versions)-1]},
	}, nil
}

func (f *FakeGCPSecretManagerClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "CreateSecret")

	if f.WriteErr != nil {
		return nil, f.WriteErr
	}
	name := req.Parent + "/secrets/" + req.SecretId
	if _, ok := f.Secrets[name]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "Secret [%s] already exists.", name)
	}
	if req.GetSecret().GetReplication() == nil {
		return nil, status.Error(codes.InvalidArgument, "replication is required")
	}
	f.Secrets[name] = &GCPSecretData{
		Name:        name,
		CreateTime:  timestamppb.Now(),
		Labels:      req.GetSecret().GetLabels(),
		Annotations: req.GetSecret().GetAnnotations(),
		Replication: req.GetSecret().GetReplication(),
	}
	return &secretmanagerpb.Secret{Name: name, CreateTime: f.Secrets[name].CreateTime}, nil
}

func (f *FakeGCPSecretManagerClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "AddSecretVersion")

	if f.WriteErr != nil {
		return nil, f.WriteErr
	}
	s, ok := f.Secrets[req.Parent]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found.", req.Parent)
	}
	s.Versions = append(s.Versions, req.GetPayload().GetData())
	s.Disabled = false
	return &secretmanagerpb.SecretVersion{
		Name:       fmt.Sprintf("%s/versions/%d", req.Parent, len(s.Versions)),
		CreateTime: timestamppb.Now(),
		State:      secretmanagerpb.SecretVersion_ENABLED,
	}, nil
}

// GCPPermissionDeniedError creates a permission denied error
func GCPPermissionDeniedError(message string) error {
	return status.Error(codes.PermissionDenied, message)
}

// GCPUnauthenticatedError creates an unauthenticated error
func GCPUnauthenticatedError(message string) error {
	return status.Error(codes.Unauthenticated, message)
}

// GCPResourceExhaustedError creates a quota exceeded error
func GCPResourceExhaustedError() error {
	return status.Errorf(codes.ResourceExhausted, "Quota exceeded")
}
