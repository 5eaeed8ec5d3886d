package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/secretspec/internal/declaration"
	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/pkg/provider"
)

// Source records where a resolved value came from.
type Source string

const (
	// SourceProvider is a value stored under the active profile.
	SourceProvider Source = "provider"
	// SourceDefaultProfile is a value stored under the default profile and
	// used because the active profile had none.
	SourceDefaultProfile Source = "default-profile"
	// SourceDeclaredDefault is the default written in the declaration.
	SourceDeclaredDefault Source = "declared-default"
)

// ResolvedSet is the outcome of resolving one profile. It lives only for
// the duration of a command.
type ResolvedSet struct {
	Profile  string
	Provider string
	Values   map[string]string
	// Absent lists optional keys that resolved to nothing, sorted.
	Absent  []string
	Sources map[string]Source
}

// Keys returns the resolved keys in sorted order.
func (s *ResolvedSet) Keys() []string {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolver looks up declared secrets in one provider.
type Resolver struct {
	provider provider.Provider
	logger   *logging.Logger
}

// New creates a resolver reading from p.
func New(p provider.Provider, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.New(false, false)
	}
	return &Resolver{provider: p, logger: logger}
}

// Resolve resolves every secret visible to profile: the keys of the
// default profile and of profile itself.
//
// Each key is looked up in the provider under profile, then under the
// default profile, and finally falls back to its declared default unless it
// is required. Required keys that resolve nowhere are collected into a
// single MissingRequiredError. A provider failure aborts resolution.
func (r *Resolver) Resolve(ctx context.Context, decl *declaration.Declaration, project, profile string) (*ResolvedSet, error) {
	if project == "" {
		project = decl.Project.Name
	}
	effective := decl.EffectiveProfile(profile)

	set := &ResolvedSet{
		Profile:  profile,
		Provider: r.provider.Name(),
		Values:   make(map[string]string, len(effective)),
		Sources:  make(map[string]Source, len(effective)),
	}
	var missing []string

	for _, key := range effective.Keys() {
		secret := effective[key]
		value, source, found, err := r.lookup(ctx, project, profile, key, secret)
		if err != nil {
			return nil, err
		}
		switch {
		case found:
			set.Values[key] = value
			set.Sources[key] = source
		case secret.IsRequired():
			missing = append(missing, key)
		default:
			set.Absent = append(set.Absent, key)
		}
	}

	if len(missing) > 0 {
		return set, dserrors.MissingRequiredError{
			Profile:  profile,
			Provider: r.provider.Name(),
			Keys:     missing,
		}
	}
	return set, nil
}

// ResolveKey runs the same chain as Resolve for a single declared key.
// found is false only for an optional key without a value.
func (r *Resolver) ResolveKey(ctx context.Context, decl *declaration.Declaration, project, profile, key string) (string, Source, bool, error) {
	if project == "" {
		project = decl.Project.Name
	}
	effective := decl.EffectiveProfile(profile)
	secret, ok := effective[key]
	if !ok {
		return "", "", false, UndeclaredKeyError(key, profile, effective)
	}

	value, source, found, err := r.lookup(ctx, project, profile, key, secret)
	if err != nil {
		return "", "", false, err
	}
	if !found && secret.IsRequired() {
		return "", "", false, dserrors.MissingRequiredError{
			Profile:  profile,
			Provider: r.provider.Name(),
			Keys:     []string{key},
		}
	}
	return value, source, found, nil
}

// Lookup reads key under profile and then under the default profile. It
// never consults the declared default.
func (r *Resolver) Lookup(ctx context.Context, project, profile, key string) (string, string, bool, error) {
	addr := provider.Address{Project: project, Profile: profile, Key: key}
	value, found, err := r.get(ctx, addr)
	if err != nil || found {
		return value, profile, found, err
	}
	if profile == provider.DefaultProfile {
		return "", "", false, nil
	}

	addr = addr.WithProfile(provider.DefaultProfile)
	value, found, err = r.get(ctx, addr)
	if err != nil || !found {
		return "", "", false, err
	}
	return value, provider.DefaultProfile, true, nil
}

func (r *Resolver) lookup(ctx context.Context, project, profile, key string, secret declaration.Secret) (string, Source, bool, error) {
	value, foundIn, found, err := r.Lookup(ctx, project, profile, key)
	if err != nil {
		return "", "", false, err
	}
	if found {
		source := SourceProvider
		if foundIn != profile {
			source = SourceDefaultProfile
		}
		r.logger.Debug("%s resolved from %s (%s)", key, r.provider.Name(), source)
		return value, source, true, nil
	}

	// The declared default only applies to optional keys. A key marked
	// required in any layer ignores a default supplied by another.
	if !secret.IsRequired() && secret.HasDefault() {
		r.logger.Debug("%s resolved from declared default", key)
		return secret.DefaultValue(), SourceDeclaredDefault, true, nil
	}
	return "", "", false, nil
}

func (r *Resolver) get(ctx context.Context, addr provider.Address) (string, bool, error) {
	value, found, err := r.provider.Get(ctx, addr)
	if err == nil {
		return value, found, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = timeoutError(r.provider.Name(), err)
	}
	return "", false, &KeyError{
		Key:      addr.Key,
		Profile:  addr.Profile,
		Provider: r.provider.Name(),
		Err:      err,
	}
}

// KeyError wraps a provider failure with the key being resolved.
type KeyError struct {
	Key      string
	Profile  string
	Provider string
	Err      error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("resolving %s (profile %s, provider %s): %v", e.Key, e.Profile, e.Provider, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// UndeclaredKeyError reports a key that the profile does not declare.
func UndeclaredKeyError(key, profile string, effective declaration.Profile) error {
	keys := effective.Keys()
	suggestion := "Declare it under [profiles." + profile + "] or [profiles.default] in secretspec.toml"
	if len(keys) > 0 {
		suggestion += " (declared: " + strings.Join(keys, ", ") + ")"
	}
	return dserrors.UserError{
		Message:    fmt.Sprintf("secret %s is not declared for profile %s", key, profile),
		Suggestion: suggestion,
	}
}
