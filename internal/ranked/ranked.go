// Package ranked picks a setting from an ordered list of sources. Profile
// and provider selection both follow the same precedence: command-line
// flag, then environment variable, then user config, then a built-in
// fallback.
package ranked

import "fmt"

// Origin labels where a value came from.
type Origin string

const (
	Flag       Origin = "flag"
	Env        Origin = "env"
	UserConfig Origin = "user-config"
	Fallback   Origin = "fallback"
)

// Source is one candidate. The zero value of T means "not set".
type Source[T comparable] struct {
	Origin Origin
	// Detail names the concrete place, such as a variable name or a
	// config key. It is only used in log output.
	Detail string
	Value  T
}

// Result is the winning value and where it came from.
type Result[T comparable] struct {
	Value  T
	Origin Origin
	Detail string
}

// String renders the result for debug output.
func (r Result[T]) String() string {
	if r.Detail == "" {
		return fmt.Sprintf("%v (from %s)", r.Value, r.Origin)
	}
	return fmt.Sprintf("%v (from %s %s)", r.Value, r.Origin, r.Detail)
}

// Resolve returns the first source with a non-zero value, or fallback.
func Resolve[T comparable](fallback T, sources ...Source[T]) Result[T] {
	var zero T
	for _, s := range sources {
		if s.Value != zero {
			return Result[T]{Value: s.Value, Origin: s.Origin, Detail: s.Detail}
		}
	}
	return Result[T]{Value: fallback, Origin: Fallback}
}
