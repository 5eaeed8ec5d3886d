package declaration

import (
	"sort"

	"github.com/systmms/secretspec/pkg/provider"
)

// FileName is the conventional name of a project's declaration file.
const FileName = "secretspec.toml"

// Declaration is the parsed content of a secretspec.toml file. After Load,
// it holds the fully merged result of the file and everything it extends.
type Declaration struct {
	Project  Project            `toml:"project" json:"project" yaml:"project"`
	Profiles map[string]Profile `toml:"profiles,omitempty" json:"profiles,omitempty" yaml:"profiles,omitempty"`

	// Path is the absolute path the declaration was read from.
	Path string `toml:"-" json:"-" yaml:"-"`
}

// Project identifies the project that owns the secrets.
type Project struct {
	Name     string   `toml:"name" json:"name" yaml:"name"`
	Revision string   `toml:"revision" json:"revision" yaml:"revision"`
	Extends  []string `toml:"extends,omitempty" json:"extends,omitempty" yaml:"extends,omitempty"`
}

// Profile maps secret keys to their declarations.
type Profile map[string]Secret

// Secret declares a single secret. A nil field means "not set at this
// layer", which lets an overriding file change one field and inherit the rest.
// An explicit required = false must survive a write, so the TOML tags carry
// no omitempty.
type Secret struct {
	Description *string `toml:"description" json:"description,omitempty" yaml:"description,omitempty"`
	Required    *bool   `toml:"required" json:"required,omitempty" yaml:"required,omitempty"`
	Default     *string `toml:"default" json:"default,omitempty" yaml:"default,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// IsRequired reports whether the secret must resolve from a provider. An
// explicit value wins; otherwise a secret is required unless it has a default.
func (s Secret) IsRequired() bool {
	if s.Required != nil {
		return *s.Required
	}
	return s.Default == nil
}

// HasDefault reports whether the secret declares a default value.
func (s Secret) HasDefault() bool {
	return s.Default != nil
}

// DefaultValue returns the declared default, or "".
func (s Secret) DefaultValue() string {
	if s.Default == nil {
		return ""
	}
	return *s.Default
}

// DescriptionText returns the description, or "".
func (s Secret) DescriptionText() string {
	if s.Description == nil {
		return ""
	}
	return *s.Description
}

// ProfileNames returns the declared profile names in sorted order.
func (d *Declaration) ProfileNames() []string {
	names := make([]string, 0, len(d.Profiles))
	for name := range d.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasProfile reports whether the declaration names the profile.
func (d *Declaration) HasProfile(name string) bool {
	_, ok := d.Profiles[name]
	return ok
}

// EffectiveProfile returns the secrets visible to a profile: the default
// profile with the named profile's entries merged over it field by field.
func (d *Declaration) EffectiveProfile(name string) Profile {
	out := Profile{}
	for key, s := range d.Profiles[provider.DefaultProfile] {
		out[key] = s
	}
	if name == provider.DefaultProfile {
		return out
	}
	for key, s := range d.Profiles[name] {
		out[key] = mergeSecret(out[key], s)
	}
	return out
}

// Keys returns the sorted keys of a profile.
func (p Profile) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge layers overlay on top of base and returns a new declaration.
// Project fields are replaced when the overlay sets them. Profiles are
// merged key by key, and secrets field by field. Neither input is modified.
func Merge(base, overlay *Declaration) *Declaration {
	out := &Declaration{Profiles: map[string]Profile{}}
	for _, layer := range []*Declaration{base, overlay} {
		if layer == nil {
			continue
		}
		if layer.Project.Name != "" {
			out.Project.Name = layer.Project.Name
		}
		if layer.Project.Revision != "" {
			out.Project.Revision = layer.Project.Revision
		}
		if len(layer.Project.Extends) > 0 {
			out.Project.Extends = append([]string(nil), layer.Project.Extends...)
		}
		if layer.Path != "" {
			out.Path = layer.Path
		}
		for name, profile := range layer.Profiles {
			merged, ok := out.Profiles[name]
			if !ok {
				merged = Profile{}
				out.Profiles[name] = merged
			}
			for key, s := range profile {
				merged[key] = mergeSecret(merged[key], s)
			}
		}
	}
	return out
}

func mergeSecret(base, overlay Secret) Secret {
	out := base
	if overlay.Description != nil {
		out.Description = overlay.Description
	}
	if overlay.Required != nil {
		out.Required = overlay.Required
	}
	if overlay.Default != nil {
		out.Default = overlay.Default
	}
	return out
}
