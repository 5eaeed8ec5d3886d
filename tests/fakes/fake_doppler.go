package fakes

import (
	"fmt"
)

// FakeDopplerCLI simulates `doppler secrets get --plain` and
// `doppler secrets set` over an in-memory workplace.
type FakeDopplerCLI struct {
	fakeCLI

	// Secrets maps "project/config" -> name -> value.
	Secrets map[string]map[string]string

	// Configs, when non-nil, lists the configs that exist; writes to any
	// other config fail the way Doppler does.
	Configs map[string]bool

	// Unauthenticated makes every command fail with Doppler's auth error.
	Unauthenticated bool
}

// NewFakeDopplerCLI creates an empty Doppler fake in which every config
// exists.
func NewFakeDopplerCLI() *FakeDopplerCLI {
	f := &FakeDopplerCLI{Secrets: map[string]map[string]string{}}
	f.tool = "doppler"
	f.handler = f.handle
	return f
}

func (f *FakeDopplerCLI) handle(args []string, stdin []byte, env []string) ([]byte, []byte, error) {
	if f.Unauthenticated {
		return failure("Doppler Error: Unable to authenticate. Run 'doppler login'")
	}
	pos, flags := splitArgs(args, "--project", "--config")
	if len(pos) < 3 || pos[0] != "secrets" {
		return failure("Doppler Error: unknown command")
	}
	location := flags["--project"] + "/" + flags["--config"]
	name := pos[2]

	switch pos[1] {
	case "get":
		if _, ok := flags["--plain"]; !ok {
			return failure("fake doppler only serves --plain")
		}
		value, ok := f.Secrets[location][name]
		if !ok {
			return failure("Doppler Error: Could not find requested secret: " + name)
		}
		return []byte(value + "\n"), nil, nil

	case "set":
		if f.Configs != nil && !f.Configs[location] {
			return failure(fmt.Sprintf("Doppler Error: Could not find requested config '%s'", flags["--config"]))
		}
		if f.Secrets[location] == nil {
			f.Secrets[location] = map[string]string{}
		}
		f.Secrets[location][name] = string(stdin)
		return nil, nil, nil
	}
	return failure("Doppler Error: unknown command secrets " + pos[1])
}
