package contracts

import (
	"context"
	"time"
)

// AkeylessClient abstracts Akeyless SDK operations for testing
type AkeylessClient interface {
	// Authenticate obtains an access token
	Authenticate(ctx context.Context) (token string, expiresIn time.Duration, err error)

	// GetSecret retrieves a static secret by its full path. A path that
	// does not exist returns found=false with a nil error.
	GetSecret(ctx context.Context, token, path string) (value string, found bool, err error)
}
