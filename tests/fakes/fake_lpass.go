package fakes

// FakeLastPassCLI simulates `lpass show --password`, `lpass add` and
// `lpass edit` in non-interactive mode.
type FakeLastPassCLI struct {
	fakeCLI

	// Entries maps full entry name -> password.
	Entries map[string]string

	// LoggedOut makes every command fail with lpass's login error.
	LoggedOut bool
}

// NewFakeLastPassCLI creates an empty lpass fake.
func NewFakeLastPassCLI() *FakeLastPassCLI {
	f := &FakeLastPassCLI{Entries: map[string]string{}}
	f.tool = "lpass"
	f.handler = f.handle
	return f
}

func (f *FakeLastPassCLI) handle(args []string, stdin []byte, env []string) ([]byte, []byte, error) {
	if f.LoggedOut {
		return failure("Error: Could not find decryption key. Perhaps you need to login with `lpass login`.")
	}

	pos, _ := splitArgs(args)
	if len(pos) < 2 {
		return failure("Usage: lpass show {UNIQUENAME|UNIQUEID}")
	}

	name := pos[1]
	switch pos[0] {
	case "show":
		value, ok := f.Entries[name]
		if !ok {
			return failure("Error: Could not find specified account(s).")
		}
		return []byte(value + "\n"), nil, nil
	case "add":
		if _, ok := f.Entries[name]; ok {
			return failure("Error: an entry with that name already exists")
		}
		f.Entries[name] = string(stdin)
		return nil, nil, nil
	case "edit":
		f.Entries[name] = string(stdin)
		return nil, nil, nil
	}
	return failure("Error: unknown command " + pos[0])
}
