package contracts

import (
	"context"
	"time"
)

// InfisicalClient abstracts Infisical API operations for testing
type InfisicalClient interface {
	// Authenticate obtains an access token
	Authenticate(ctx context.Context) (token string, expiresIn time.Duration, err error)

	// GetSecret reads a shared secret. A secret, folder or environment that
	// does not exist returns found=false with a nil error.
	GetSecret(ctx context.Context, token string, loc InfisicalLocation, name string) (value string, found bool, err error)

	// SetSecret creates the secret or updates its value.
	SetSecret(ctx context.Context, token string, loc InfisicalLocation, name, value string) error
}

// InfisicalLocation is where a secret lives inside an Infisical project.
type InfisicalLocation struct {
	ProjectID   string
	Environment string // environment slug, e.g. "dev"
	SecretPath  string // folder, e.g. "/billing"
}
