package engine_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretspec/internal/engine"
	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/internal/execenv"
	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/internal/metrics"
	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/internal/resolve"
	"github.com/systmms/secretspec/internal/userconfig"
	"github.com/systmms/secretspec/pkg/provider"
	"github.com/systmms/secretspec/tests/fakes"
	"github.com/systmms/secretspec/tests/testutil"
)

const declarationTOML = `
[project]
name = "myapp"
revision = "1.0"

[profiles.default]
DATABASE_URL = { description = "Primary database" }
API_KEY = { description = "Third-party API key" }
LOG_LEVEL = { description = "Log verbosity", required = false, default = "info" }
SENTRY_DSN = { description = "Error reporting", required = false }

[profiles.development]
DATABASE_URL = { required = false, default = "sqlite://./dev.db" }
`

type fixture struct {
	path    string
	active  *fakes.FakeProvider
	other   *fakes.FakeProvider
	reg     *providers.Registry
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "secretspec.toml")
	require.NoError(t, os.WriteFile(path, []byte(declarationTOML), 0o600))

	f := &fixture{
		path:    path,
		active:  fakes.NewFakeProvider("active"),
		other:   fakes.NewFakeProvider("other"),
		metrics: metrics.New(),
	}
	reg, err := providers.NewRegistry(
		providers.Registration{Scheme: "active", Factory: func(provider.URI) (provider.Provider, error) { return f.active, nil }},
		providers.Registration{Scheme: "other", Factory: func(provider.URI) (provider.Provider, error) { return f.other, nil }},
	)
	require.NoError(t, err)
	f.reg = reg
	return f
}

func (f *fixture) load(t *testing.T, profile string) *engine.Engine {
	t.Helper()
	e, err := engine.Load(engine.Options{
		DeclarationPath: f.path,
		ProfileFlag:     profile,
		ProviderFlag:    "active://",
		Env:             func(string) (string, bool) { return "", false },
		Registry:        f.reg,
		Logger:          logging.Discard(),
		Metrics:         f.metrics,
	})
	require.NoError(t, err)
	return e
}

func addr(profile, key string) provider.Address {
	return provider.Address{Project: "myapp", Profile: profile, Key: key}
}

func TestLoad_Selection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cfg := &userconfig.Config{
		Defaults: userconfig.Defaults{Profile: "development", Provider: "other://"},
		Profiles: map[string]userconfig.ProfileConfig{"production": {Provider: "active://"}},
	}
	env := map[string]string{}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	e, err := engine.Load(engine.Options{DeclarationPath: f.path, Env: lookup, UserConfig: cfg, Registry: f.reg})
	require.NoError(t, err)
	assert.Equal(t, "development", e.Profile())
	assert.Equal(t, "other", e.Provider().Name())

	env["SECRETSPEC_PROFILE"] = "production"
	e, err = engine.Load(engine.Options{DeclarationPath: f.path, Env: lookup, UserConfig: cfg, Registry: f.reg})
	require.NoError(t, err)
	assert.Equal(t, "production", e.Profile())
	assert.Equal(t, "active", e.Provider().Name())
	assert.Equal(t, "myapp", e.Declaration().Project.Name)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := engine.Load(engine.Options{DeclarationPath: f.path, ProviderFlag: "nope://", Registry: f.reg})
	assert.True(t, provider.IsInvalidURI(err), "got %v", err)
	assert.Equal(t, dserrors.ExitConfig, dserrors.ExitCode(err))

	_, err = engine.Load(engine.Options{DeclarationPath: filepath.Join(t.TempDir(), "missing.toml"), Registry: f.reg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secretspec init")
}

func TestCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.active.WithSecret(addr("default", "API_KEY"), "k")

	report, err := f.load(t, "development").Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, "development", report.Profile)
	assert.Equal(t, "active", report.Provider)

	byKey := map[string]engine.CheckEntry{}
	for _, entry := range report.Entries {
		byKey[entry.Key] = entry
	}
	assert.Equal(t, resolve.SourceDefaultProfile, byKey["API_KEY"].Source)
	assert.Equal(t, resolve.SourceDeclaredDefault, byKey["DATABASE_URL"].Source)
	assert.False(t, byKey["DATABASE_URL"].Required)
	assert.False(t, byKey["SENTRY_DSN"].Present)
	assert.Equal(t, "Error reporting", byKey["SENTRY_DSN"].Description)
}

func TestCheck_MissingRequired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	report, err := f.load(t, "production").Check(context.Background())
	var missing dserrors.MissingRequiredError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"API_KEY", "DATABASE_URL"}, missing.Keys)
	assert.Equal(t, dserrors.ExitMissingSecrets, dserrors.ExitCode(err))

	require.NotNil(t, report)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"API_KEY", "DATABASE_URL"}, report.Missing)
	assert.Len(t, report.Entries, 4)

	assert.Equal(t, 2.0, promtestutil.ToFloat64(f.metrics.MissingRequired().WithLabelValues("production")))
}

func TestCheck_ProviderUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.active.WithError("API_KEY", provider.UnavailableError{Provider: "active", Message: "locked"})

	report, err := f.load(t, "default").Check(context.Background())
	assert.Nil(t, report)
	assert.Equal(t, dserrors.ExitProviderUnavailable, dserrors.ExitCode(err))
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	values := []string{
		"postgres://user:p@ss@host/db?sslmode=require",
		"héllo wörld ✓ 秘密",
		`$(rm -rf /); echo "$HOME" 'quoted' \ back`,
		"line one\nline two",
	}
	for _, value := range values {
		f := newFixture(t)
		e := f.load(t, "staging")

		require.NoError(t, e.Set(context.Background(), "API_KEY", value))
		stored, ok := f.active.Stored(addr("staging", "API_KEY"))
		require.True(t, ok)
		assert.Equal(t, value, stored)

		got, found, err := e.Get(context.Background(), "API_KEY")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, value, got)
	}
}

func TestSet_Refusals(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.active.ReadOnly()
	err := f.load(t, "default").Set(context.Background(), "API_KEY", "v")
	assert.True(t, provider.IsReadOnly(err))
	assert.Equal(t, 0, f.active.GetCallCount("Set"), "read-only backends are never asked to write")
	assert.Equal(t, dserrors.ExitWriteRefused, dserrors.ExitCode(err))

	f = newFixture(t)
	err = f.load(t, "default").Set(context.Background(), "UNDECLARED", "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not declared")
	assert.Equal(t, 0, f.active.GetCallCount("Set"))

	f = newFixture(t)
	f.active.WithSetError(provider.WriteRejectedError{Provider: "active", Key: "API_KEY", Err: errors.New("quota")})
	err = f.load(t, "default").Set(context.Background(), "API_KEY", "v")
	assert.True(t, provider.IsWriteRejected(err))
	assert.Contains(t, err.Error(), "storing API_KEY (profile default, provider active)")
}

func TestCheckSet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e := f.load(t, "default")
	require.NoError(t, e.CheckSet("API_KEY"))
	assert.Contains(t, e.CheckSet("UNDECLARED").Error(), "not declared")

	f.active.ReadOnly()
	assert.True(t, provider.IsReadOnly(e.CheckSet("API_KEY")))
	assert.Equal(t, 0, f.active.GetCallCount("Set"))
}

func TestSet_RedactsEchoedValue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.active.WithSetError(provider.WriteRejectedError{
		Provider: "active",
		Key:      "API_KEY",
		Err:      errors.New(`invalid argument "hunter2-secret"`),
	})

	err := f.load(t, "default").Set(context.Background(), "API_KEY", "hunter2-secret")
	require.Error(t, err)
	testutil.AssertSecretRedacted(t, err.Error(), "hunter2-secret")
	assert.True(t, provider.IsWriteRejected(err))
}

func TestGet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e := f.load(t, "development")

	value, found, err := e.Get(context.Background(), "LOG_LEVEL")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "info", value)

	_, found, err = e.Get(context.Background(), "SENTRY_DSN")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = e.Get(context.Background(), "API_KEY")
	var missing dserrors.MissingRequiredError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"API_KEY"}, missing.Keys)
}

func TestImport(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.other.
		WithSecret(addr("production", "DATABASE_URL"), "postgres://prod").
		WithSecret(addr("default", "API_KEY"), "shared-key").
		WithSecret(addr("default", "DATABASE_URL"), "postgres://shadowed")

	e := f.load(t, "production")
	report, err := e.Import(context.Background(), "other://", "")
	require.NoError(t, err)

	assert.Equal(t, "active://", report.To)
	assert.Equal(t, []string{"API_KEY", "DATABASE_URL"}, report.Imported)
	assert.Equal(t, []string{"LOG_LEVEL", "SENTRY_DSN"}, report.Skipped, "declared defaults are not copied")
	assert.Empty(t, report.Failed)

	got, ok := f.active.Stored(addr("production", "DATABASE_URL"))
	require.True(t, ok)
	assert.Equal(t, "postgres://prod", got)
	got, ok = f.active.Stored(addr("default", "API_KEY"))
	require.True(t, ok, "written under the profile it was found in")
	assert.Equal(t, "shared-key", got)
	_, ok = f.active.Stored(addr("production", "API_KEY"))
	assert.False(t, ok)

	// Resolving through the destination now matches the source.
	fromSource, err := resolve.New(f.other, logging.Discard()).Resolve(context.Background(), e.Declaration(), "", "production")
	require.NoError(t, err)
	fromDest, err := e.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fromSource.Values, fromDest.Values)
}

func TestImport_PartialFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.other.
		WithSecret(addr("default", "API_KEY"), "k").
		WithSecret(addr("default", "DATABASE_URL"), "db")
	f.active.WithSetErrorFor("API_KEY", provider.WriteRejectedError{Provider: "active", Key: "API_KEY"})

	report, err := f.load(t, "default").Import(context.Background(), "other://", "active://")

	var incomplete dserrors.ImportIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"API_KEY"}, incomplete.Failed)
	assert.Equal(t, 1, incomplete.Imported)
	assert.Equal(t, dserrors.ExitPartialImport, dserrors.ExitCode(err))

	require.NotNil(t, report)
	assert.Equal(t, []string{"DATABASE_URL"}, report.Imported)
	assert.Equal(t, []string{"API_KEY"}, report.FailedKeys())
}

func TestImport_Aborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.other.WithError("DATABASE_URL", provider.UnavailableError{Provider: "other", Message: "offline"})
	_, err := f.load(t, "default").Import(context.Background(), "other://", "")
	assert.True(t, provider.IsUnavailable(err))

	f = newFixture(t)
	f.active.ReadOnly()
	_, err = f.load(t, "default").Import(context.Background(), "other://", "")
	assert.True(t, provider.IsReadOnly(err))
	assert.Equal(t, 0, f.other.GetCallCount("Get"), "source is not read when the destination refuses writes")

	f = newFixture(t)
	_, err = f.load(t, "default").Import(context.Background(), "bogus://", "")
	assert.True(t, provider.IsInvalidURI(err))
}

func TestRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	t.Parallel()

	f := newFixture(t)
	f.active.WithSecret(addr("default", "API_KEY"), "from provider")

	var stdout bytes.Buffer
	err := f.load(t, "development").Run(context.Background(),
		[]string{"sh", "-c", `printf '%s|%s|%s' "$API_KEY" "$DATABASE_URL" "$LOG_LEVEL"; exit 4`},
		engine.RunOptions{IO: execenv.IO{Stdin: &bytes.Buffer{}, Stdout: &stdout, Stderr: &bytes.Buffer{}}},
	)

	assert.Equal(t, "from provider|sqlite://./dev.db|info", stdout.String())
	var sub dserrors.SubprocessError
	require.ErrorAs(t, err, &sub)
	assert.Equal(t, 4, dserrors.ExitCode(err))
}

func TestRun_MissingRequiredDoesNotStart(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	t.Parallel()

	f := newFixture(t)
	marker := filepath.Join(t.TempDir(), "started")

	err := f.load(t, "production").Run(context.Background(),
		[]string{"sh", "-c", `: > "$0"`, marker},
		engine.RunOptions{},
	)

	assert.Equal(t, dserrors.ExitMissingSecrets, dserrors.ExitCode(err))
	assert.NoFileExists(t, marker)
}
