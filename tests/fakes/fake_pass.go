package fakes

import (
	"fmt"
)

// FakePassCLI simulates `pass show` and `pass insert --multiline --force`
// over an in-memory store.
type FakePassCLI struct {
	fakeCLI

	// Entries maps entry path -> stored content, including pass's
	// trailing newline.
	Entries map[string]string

	// GPGBroken makes show fail the way pass does without a usable key.
	GPGBroken bool

	// ReadOnly makes insert fail with a permission error.
	ReadOnly bool
}

// NewFakePassCLI creates an empty pass fake.
func NewFakePassCLI() *FakePassCLI {
	f := &FakePassCLI{Entries: map[string]string{}}
	f.tool = "pass"
	f.handler = f.handle
	return f
}

func (f *FakePassCLI) handle(args []string, stdin []byte, env []string) ([]byte, []byte, error) {
	pos, _ := splitArgs(args)
	if len(pos) < 2 {
		return failure("Usage: pass show [pass-name]")
	}

	switch pos[0] {
	case "show":
		if f.GPGBroken {
			return failure("gpg: decryption failed: No secret key")
		}
		content, ok := f.Entries[pos[1]]
		if !ok {
			return failure(fmt.Sprintf("Error: %s is not in the password store.", pos[1]))
		}
		return []byte(content), nil, nil

	case "insert":
		if f.ReadOnly {
			return failure("mkdir: cannot create directory: Permission denied")
		}
		f.Entries[pos[1]] = string(stdin)
		return []byte(fmt.Sprintf("[master 1a2b3c] Add given password for %s to store.\n", pos[1])), nil, nil
	}
	return failure("Error: unknown command " + pos[0])
}
