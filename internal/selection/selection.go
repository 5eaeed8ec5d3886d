// Package selection decides which profile and which provider a command
// works against.
package selection

import (
	"os"
	"strings"

	"github.com/systmms/secretspec/internal/ranked"
	"github.com/systmms/secretspec/internal/userconfig"
	"github.com/systmms/secretspec/pkg/provider"
)

const (
	EnvProfile  = "SECRETSPEC_PROFILE"
	EnvProvider = "SECRETSPEC_PROVIDER"

	// DefaultProvider is used when nothing else names a provider.
	DefaultProvider = "keyring://"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(string) (string, bool)

// OSLookup reads the process environment.
var OSLookup LookupFunc = os.LookupEnv

// Opener turns a provider identifier into a ready backend.
type Opener interface {
	Open(raw string) (provider.Provider, error)
}

// Profile picks the active profile. It never fails; the last resort is
// the "default" profile.
func Profile(flag string, lookup LookupFunc, cfg *userconfig.Config) ranked.Result[string] {
	return ranked.Resolve(provider.DefaultProfile,
		ranked.Source[string]{Origin: ranked.Flag, Detail: "--profile", Value: clean(flag)},
		ranked.Source[string]{Origin: ranked.Env, Detail: EnvProfile, Value: env(lookup, EnvProfile)},
		ranked.Source[string]{Origin: ranked.UserConfig, Detail: "defaults.profile", Value: clean(cfg.DefaultProfile())},
	)
}

// ProviderURI picks the provider identifier for a profile. Within the user
// config a per-profile provider outranks the default provider.
func ProviderURI(flag string, lookup LookupFunc, cfg *userconfig.Config, profile string) ranked.Result[string] {
	return ranked.Resolve(DefaultProvider,
		ranked.Source[string]{Origin: ranked.Flag, Detail: "--provider", Value: clean(flag)},
		ranked.Source[string]{Origin: ranked.Env, Detail: EnvProvider, Value: env(lookup, EnvProvider)},
		ranked.Source[string]{Origin: ranked.UserConfig, Detail: "profiles." + profile + ".provider", Value: clean(cfg.ProfileProvider(profile))},
		ranked.Source[string]{Origin: ranked.UserConfig, Detail: "defaults.provider", Value: clean(cfg.DefaultProvider())},
	)
}

// Provider selects and opens the provider for a profile. A malformed or
// unknown identifier is reported as an invalid provider URI.
func Provider(flag string, lookup LookupFunc, cfg *userconfig.Config, profile string, opener Opener) (provider.Provider, ranked.Result[string], error) {
	choice := ProviderURI(flag, lookup, cfg, profile)
	p, err := opener.Open(choice.Value)
	if err != nil {
		return nil, choice, err
	}
	return p, choice, nil
}

func env(lookup LookupFunc, name string) string {
	if lookup == nil {
		return ""
	}
	v, _ := lookup(name)
	return clean(v)
}

func clean(s string) string {
	return strings.TrimSpace(s)
}
