package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	pkgexec "github.com/systmms/secretspec/pkg/exec"
)

// cliHandler simulates one invocation of a CLI tool.
type cliHandler func(args []string, stdin []byte, env []string) (stdout, stderr []byte, err error)

// fakeCLI is the shared plumbing for the stateful CLI fakes. It records
// every call and dispatches to the tool's handler.
type fakeCLI struct {
	mu      sync.Mutex
	tool    string
	handler cliHandler
	calls   []pkgexec.Command
}

func (f *fakeCLI) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return f.Run(ctx, pkgexec.Command{Name: name, Args: args})
}

func (f *fakeCLI) Run(ctx context.Context, cmd pkgexec.Command) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, pkgexec.Command{
		Name:  cmd.Name,
		Args:  append([]string(nil), cmd.Args...),
		Stdin: append([]byte(nil), cmd.Stdin...),
		Env:   append([]string(nil), cmd.Env...),
	})
	if cmd.Name != f.tool {
		return nil, nil, fmt.Errorf("fake %s: unexpected command %q", f.tool, cmd.Name)
	}
	return f.handler(cmd.Args, cmd.Stdin, cmd.Env)
}

// Calls returns every recorded invocation.
func (f *fakeCLI) Calls() []pkgexec.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pkgexec.Command(nil), f.calls...)
}

// failure builds the (stdout, stderr, err) triple of a command that printed
// msg and exited with status 1.
func failure(msg string) ([]byte, []byte, error) {
	return nil, []byte(msg), fmt.Errorf("exit status 1")
}

// splitArgs separates positional arguments from flags. Flags named in
// valueFlags consume the next argument unless given as --flag=value.
func splitArgs(args []string, valueFlags ...string) (positional []string, flags map[string]string) {
	takes := make(map[string]bool, len(valueFlags))
	for _, f := range valueFlags {
		takes[f] = true
	}
	flags = map[string]string{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") || a == "-" {
			positional = append(positional, a)
			continue
		}
		if name, value, ok := strings.Cut(a, "="); ok {
			flags[name] = value
			continue
		}
		if takes[a] && i+1 < len(args) {
			flags[a] = args[i+1]
			i++
			continue
		}
		flags[a] = ""
	}
	return positional, flags
}

func envValue(env []string, name string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v, true
		}
	}
	return "", false
}
