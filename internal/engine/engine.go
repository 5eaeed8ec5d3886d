// Package engine ties the declaration, the selected profile and provider,
// and the resolver together behind the operations the CLI exposes: check,
// get, set, run and import.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/systmms/secretspec/internal/declaration"
	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/internal/execenv"
	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/internal/metrics"
	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/internal/ranked"
	"github.com/systmms/secretspec/internal/resolve"
	"github.com/systmms/secretspec/internal/secure"
	"github.com/systmms/secretspec/internal/selection"
	"github.com/systmms/secretspec/internal/userconfig"
	"github.com/systmms/secretspec/pkg/provider"
)

// Options configures Load.
type Options struct {
	DeclarationPath string
	ProfileFlag     string
	ProviderFlag    string

	// Env reads environment variables for profile and provider selection.
	// Nil means the process environment.
	Env        selection.LookupFunc
	UserConfig *userconfig.Config
	Registry   *providers.Registry
	Logger     *logging.Logger
	// Metrics is optional; every provider the engine opens is instrumented
	// with it.
	Metrics *metrics.Metrics
}

// Engine runs operations against one declaration, one profile and one
// provider.
type Engine struct {
	decl     *declaration.Declaration
	profile  ranked.Result[string]
	choice   ranked.Result[string]
	provider provider.Provider
	registry *providers.Registry
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// Load selects the profile and provider and loads the declaration. Nothing
// is read from the provider yet.
func Load(opts Options) (*Engine, error) {
	if opts.Env == nil {
		opts.Env = selection.OSLookup
	}
	if opts.Registry == nil {
		opts.Registry = providers.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.DeclarationPath == "" {
		opts.DeclarationPath = declaration.FileName
	}

	decl, err := declaration.Load(opts.DeclarationPath)
	if err != nil {
		return nil, err
	}

	profile := selection.Profile(opts.ProfileFlag, opts.Env, opts.UserConfig)
	opts.Logger.Debug("Profile: %s", profile)
	if !decl.HasProfile(profile.Value) && profile.Value != provider.DefaultProfile {
		opts.Logger.Debug("Profile %s is not declared, using [profiles.default] only", profile.Value)
	}

	p, choice, err := selection.Provider(opts.ProviderFlag, opts.Env, opts.UserConfig, profile.Value, opts.Registry)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("Provider: %s", choice)

	return &Engine{
		decl:     decl,
		profile:  profile,
		choice:   choice,
		provider: opts.Metrics.Instrument(p),
		registry: opts.Registry,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}, nil
}

// Declaration returns the effective, merged declaration.
func (e *Engine) Declaration() *declaration.Declaration {
	return e.decl
}

// Profile returns the active profile.
func (e *Engine) Profile() string {
	return e.profile.Value
}

// Provider returns the active provider.
func (e *Engine) Provider() provider.Provider {
	return e.provider
}

// ProviderURI returns the identifier the active provider was opened from.
func (e *Engine) ProviderURI() string {
	return e.choice.Value
}

func (e *Engine) project() string {
	return e.decl.Project.Name
}

func (e *Engine) resolver() *resolve.Resolver {
	return resolve.New(e.provider, e.logger)
}

// Resolve resolves every secret of the active profile.
func (e *Engine) Resolve(ctx context.Context) (*resolve.ResolvedSet, error) {
	set, err := e.resolver().Resolve(ctx, e.decl, e.project(), e.Profile())
	var missing dserrors.MissingRequiredError
	if errors.As(err, &missing) {
		e.metrics.RecordMissingRequired(missing.Profile, len(missing.Keys))
	}
	return set, err
}

// CheckEntry is one line of a CheckReport.
type CheckEntry struct {
	Key         string         `json:"key"`
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"required"`
	Present     bool           `json:"present"`
	Source      resolve.Source `json:"source,omitempty"`
}

// CheckReport describes how every declared secret resolved.
type CheckReport struct {
	Profile  string       `json:"profile"`
	Provider string       `json:"provider"`
	Entries  []CheckEntry `json:"entries"`
	Missing  []string     `json:"missing,omitempty"`
}

// OK reports whether every required secret resolved.
func (r *CheckReport) OK() bool {
	return len(r.Missing) == 0
}

// Check resolves every secret and reports the outcome per key. When a
// required secret is missing the report is still returned, together with a
// MissingRequiredError naming all of them.
func (e *Engine) Check(ctx context.Context) (*CheckReport, error) {
	set, err := e.Resolve(ctx)
	var missing dserrors.MissingRequiredError
	if err != nil && !errors.As(err, &missing) {
		return nil, err
	}

	report := &CheckReport{
		Profile:  e.Profile(),
		Provider: e.provider.Name(),
		Missing:  missing.Keys,
	}
	effective := e.decl.EffectiveProfile(e.Profile())
	for _, key := range effective.Keys() {
		secret := effective[key]
		_, present := set.Values[key]
		report.Entries = append(report.Entries, CheckEntry{
			Key:         key,
			Description: secret.DescriptionText(),
			Required:    secret.IsRequired(),
			Present:     present,
			Source:      set.Sources[key],
		})
	}
	return report, err
}

// Get resolves a single declared key. found is false for an optional key
// without a value.
func (e *Engine) Get(ctx context.Context, key string) (string, bool, error) {
	value, source, found, err := e.resolver().ResolveKey(ctx, e.decl, e.project(), e.Profile(), key)
	if err != nil {
		var missing dserrors.MissingRequiredError
		if errors.As(err, &missing) {
			e.metrics.RecordMissingRequired(missing.Profile, len(missing.Keys))
		}
		return "", false, err
	}
	if found {
		e.logger.Debug("%s came from %s", key, source)
	}
	return value, found, nil
}

// Set stores value for a declared key under the active profile.
func (e *Engine) Set(ctx context.Context, key, value string) error {
	if err := e.CheckSet(key); err != nil {
		return err
	}

	addr := provider.Address{Project: e.project(), Profile: e.Profile(), Key: key}
	if err := e.provider.Set(ctx, addr, value); err != nil {
		return fmt.Errorf("storing %s (profile %s, provider %s): %w", key, e.Profile(), e.provider.Name(), redact(err, value))
	}
	e.logger.Debug("Stored %s in %s", addr, e.provider.Name())
	return nil
}

// CheckSet reports why key could not be stored without touching the
// provider: a read-only provider or a key the profile does not declare.
func (e *Engine) CheckSet(key string) error {
	if !e.provider.AllowsSet() {
		return provider.ReadOnlyError{Provider: e.provider.Name()}
	}
	effective := e.decl.EffectiveProfile(e.Profile())
	if _, ok := effective[key]; !ok {
		return resolve.UndeclaredKeyError(key, e.Profile(), effective)
	}
	return nil
}

// RunOptions controls how Run launches the command.
type RunOptions struct {
	AllowOverride bool
	PrintVars     bool
	Timeout       time.Duration
	execenv.IO
}

// Run resolves every secret and then runs argv with the values in its
// environment. Resolution failures stop the command from starting.
func (e *Engine) Run(ctx context.Context, argv []string, opts RunOptions) error {
	if err := execenv.ValidateCommand(argv); err != nil {
		return err
	}

	set, err := e.Resolve(ctx)
	if err != nil {
		return err
	}

	sealed, err := secure.Seal(set.Values)
	if err != nil {
		return err
	}
	defer sealed.Destroy()

	// Only the sealed copy survives until exec.
	for key := range set.Values {
		delete(set.Values, key)
	}

	return execenv.New(e.logger).Exec(ctx, execenv.ExecOptions{
		Command:       argv,
		Secrets:       sealed,
		AllowOverride: opts.AllowOverride,
		PrintVars:     opts.PrintVars,
		Timeout:       opts.Timeout,
		IO:            opts.IO,
	})
}

// ImportReport tallies what Import did with each declared key.
type ImportReport struct {
	From     string           `json:"from"`
	To       string           `json:"to"`
	Imported []string         `json:"imported"`
	Skipped  []string         `json:"skipped"`
	Failed   map[string]error `json:"-"`
}

// FailedKeys returns the keys that could not be migrated, sorted.
func (r *ImportReport) FailedKeys() []string {
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Import copies every declared secret of the active profile from one
// provider to another. to defaults to the active provider.
//
// Each key is read from the source under the active profile and then under
// the default profile, and written to the destination under the profile it
// was found in. Declared defaults are not copied. An unavailable backend
// aborts the import; any other per-key failure is recorded and the import
// moves on.
func (e *Engine) Import(ctx context.Context, from, to string) (*ImportReport, error) {
	src, err := e.open(from)
	if err != nil {
		return nil, err
	}
	dst := e.provider
	if to != "" {
		if dst, err = e.open(to); err != nil {
			return nil, err
		}
	} else {
		to = e.ProviderURI()
	}
	if !dst.AllowsSet() {
		return nil, provider.ReadOnlyError{Provider: dst.Name()}
	}

	report := &ImportReport{From: from, To: to, Failed: map[string]error{}}
	source := resolve.New(src, e.logger)

	for _, key := range e.decl.EffectiveProfile(e.Profile()).Keys() {
		value, foundIn, found, err := source.Lookup(ctx, e.project(), e.Profile(), key)
		if err != nil {
			if provider.IsUnavailable(err) {
				return report, err
			}
			report.Failed[key] = err
			e.logger.Warn("Could not read %s from %s: %v", key, src.Name(), err)
			continue
		}
		if !found {
			report.Skipped = append(report.Skipped, key)
			e.logger.Debug("%s not found in %s, skipping", key, src.Name())
			continue
		}

		addr := provider.Address{Project: e.project(), Profile: foundIn, Key: key}
		if err := dst.Set(ctx, addr, value); err != nil {
			err = fmt.Errorf("storing %s (profile %s, provider %s): %w", key, foundIn, dst.Name(), redact(err, value))
			if provider.IsUnavailable(err) {
				return report, err
			}
			report.Failed[key] = err
			e.logger.Warn("Could not write %s to %s: %v", key, dst.Name(), err)
			continue
		}
		report.Imported = append(report.Imported, key)
		e.logger.Debug("Imported %s", addr)
	}

	if len(report.Failed) > 0 {
		return report, dserrors.ImportIncompleteError{
			From:     from,
			To:       to,
			Imported: len(report.Imported),
			Failed:   report.FailedKeys(),
		}
	}
	return report, nil
}

func (e *Engine) open(raw string) (provider.Provider, error) {
	p, err := e.registry.Open(raw)
	if err != nil {
		return nil, err
	}
	return e.metrics.Instrument(p), nil
}

// redactedError hides secret values that a backend echoed back in its
// error text. The original error stays reachable for errors.As.
type redactedError struct {
	err error
	msg string
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.err }

func redact(err error, values ...string) error {
	msg := logging.Redact(err.Error(), values)
	if msg == err.Error() {
		return err
	}
	return redactedError{err: err, msg: msg}
}
