package e2e_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretspec/internal/engine"
	"github.com/systmms/secretspec/internal/execenv"
	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/pkg/provider"
	"github.com/systmms/secretspec/tests/testutil"
)

const declaration = `
[project]
name = "e2e"
revision = "1.0"

[profiles.default]
DATABASE_URL = { description = "Primary database" }
API_KEY = { description = "Upstream API key" }
LOG_LEVEL = { description = "Log verbosity", required = false, default = "info" }
`

// TestImportThenRun migrates secrets from Postgres into Vault and then runs
// a command against Vault alone.
func TestImportThenRun(t *testing.T) {
	env := testutil.StartDockerEnv(t, []string{"vault", "postgres"})
	env.VaultReadyCheck()
	t.Setenv("VAULT_TOKEN", testutil.VaultRootToken)

	path := filepath.Join(t.TempDir(), "secretspec.toml")
	require.NoError(t, os.WriteFile(path, []byte(declaration), 0o600))

	load := func(t *testing.T, providerURI string) *engine.Engine {
		e, err := engine.Load(engine.Options{
			DeclarationPath: path,
			ProviderFlag:    providerURI,
			Env:             func(string) (string, bool) { return "", false },
			Logger:          logging.New(false, true),
		})
		require.NoError(t, err)
		return e
	}
	ctx := context.Background()

	pg := load(t, env.PostgresURI())
	require.NoError(t, pg.Set(ctx, "DATABASE_URL", "postgres://app@db/app"))
	require.NoError(t, pg.Set(ctx, "API_KEY", "k-123 with spaces"))

	vault := load(t, env.VaultURI())
	report, err := vault.Import(ctx, env.PostgresURI(), "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"DATABASE_URL", "API_KEY"}, report.Imported)
	assert.Equal(t, []string{"LOG_LEVEL"}, report.Skipped)

	check, err := vault.Check(ctx)
	require.NoError(t, err)
	assert.True(t, check.OK())

	if runtime.GOOS == "windows" {
		return
	}
	var stdout bytes.Buffer
	err = vault.Run(ctx, []string{"sh", "-c", `printf '%s|%s|%s' "$DATABASE_URL" "$API_KEY" "$LOG_LEVEL"`}, engine.RunOptions{
		IO: execenv.IO{Stdin: &bytes.Buffer{}, Stdout: &stdout, Stderr: &bytes.Buffer{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@db/app|k-123 with spaces|info", stdout.String())

	value, found, err := vault.Provider().Get(ctx, provider.Address{Project: "e2e", Profile: "default", Key: "API_KEY"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "k-123 with spaces", value)
}
