package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/systmms/secretspec/cmd/secretspec/commands"
	"github.com/systmms/secretspec/internal/config"
	dserrors "github.com/systmms/secretspec/internal/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Wipe every enclave and the session key on the way out.
	defer memguard.Purge()

	cfg := &config.Config{}
	rootCmd := commands.NewRootCommand(cfg, fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))

	err := rootCmd.Execute()
	if closeErr := cfg.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err == nil {
		return dserrors.ExitOK
	}

	// The child already reported its own failure.
	var sub dserrors.SubprocessError
	if !errors.As(err, &sub) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", commands.Explain(err))
	}
	return dserrors.ExitCode(err)
}
