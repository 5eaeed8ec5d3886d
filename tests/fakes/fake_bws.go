package fakes

import (
	"fmt"
)

// FakeBWSSecret is one secret held by FakeBWSCLI.
type FakeBWSSecret struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Note      string `json:"note"`
	ProjectID string `json:"projectId"`
}

// FakeBWSCLI simulates `bws secret list|create|edit`. Every call must carry
// BWS_ACCESS_TOKEN equal to Token.
type FakeBWSCLI struct {
	fakeCLI

	Token   string
	Secrets []*FakeBWSSecret

	// RateLimited makes every call fail the way bws does when the identity
	// endpoint throttles.
	RateLimited bool

	nextID int
}

// NewFakeBWSCLI creates an empty Secrets Manager fake that accepts token.
func NewFakeBWSCLI(token string) *FakeBWSCLI {
	f := &FakeBWSCLI{Token: token}
	f.tool = "bws"
	f.handler = f.handle
	return f
}

// Secret returns the secret with the given key, or nil.
func (f *FakeBWSCLI) Secret(key string) *FakeBWSSecret {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Secrets {
		if s.Key == key {
			return s
		}
	}
	return nil
}

func (f *FakeBWSCLI) handle(args []string, stdin []byte, env []string) ([]byte, []byte, error) {
	if f.RateLimited {
		return failure("Error: Internal error: Failed to parse IdentityTokenResponse")
	}
	if token, _ := envValue(env, "BWS_ACCESS_TOKEN"); token != f.Token {
		return failure("Error: Unauthorized")
	}

	pos, flags := splitArgs(args, "--key", "--value", "--note")
	if len(pos) < 2 || pos[0] != "secret" {
		return failure("error: unrecognized subcommand")
	}

	switch pos[1] {
	case "list":
		out := []*FakeBWSSecret{}
		for _, s := range f.Secrets {
			if len(pos) > 2 && s.ProjectID != pos[2] {
				continue
			}
			out = append(out, s)
		}
		return jsonOutput(out)

	case "create":
		if len(pos) < 5 {
			return failure("error: the following required arguments were not provided: <KEY> <VALUE> <PROJECT_ID>")
		}
		for _, s := range f.Secrets {
			if s.Key == pos[2] && s.ProjectID == pos[4] {
				return failure("Error: secret already exists")
			}
		}
		f.nextID++
		s := &FakeBWSSecret{
			ID:        fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID),
			Key:       pos[2],
			Value:     pos[3],
			Note:      flags["--note"],
			ProjectID: pos[4],
		}
		f.Secrets = append(f.Secrets, s)
		return jsonOutput(s)

	case "edit":
		if len(pos) < 3 {
			return failure("error: the following required arguments were not provided: <SECRET_ID>")
		}
		for _, s := range f.Secrets {
			if s.ID != pos[2] {
				continue
			}
			if k, ok := flags["--key"]; ok {
				s.Key = k
			}
			if v, ok := flags["--value"]; ok {
				s.Value = v
			}
			return jsonOutput(s)
		}
		return failure("Error: Resource not found")
	}
	return failure("error: unrecognized subcommand '" + pos[1] + "'")
}
