package commands

import (
	"errors"

	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/internal/resolve"
)

// Explain attaches provider-specific hints to err for display. The result
// wraps err, so its exit code is unchanged.
func Explain(err error) error {
	if err == nil {
		return nil
	}

	var keyErr *resolve.KeyError
	if errors.As(err, &keyErr) {
		return dserrors.ProviderError(keyErr.Provider, "resolution of "+keyErr.Key, err)
	}
	if dserrors.ExitCode(err) == dserrors.ExitFailure {
		return dserrors.SimplifyError(err)
	}
	return err
}
