package providers_test

import (
	osexec "os/exec"
)

// pkgexecNotFound is what the real executor returns when a CLI binary is
// missing from PATH.
func pkgexecNotFound() error {
	return &osexec.Error{Name: "cli", Err: osexec.ErrNotFound}
}
