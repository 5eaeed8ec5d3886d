package provider

import (
	"net/url"
	"strings"
)

// URI is a parsed provider identifier such as "onepassword://work@Production"
// or "dotenv:.env.production".
//
// Only the shared syntax is interpreted here. What Host, Path, User and the
// query parameters mean is up to the backend registered for Scheme.
type URI struct {
	Raw      string
	Scheme   string
	User     string
	Password string
	Host     string
	Path     string
	Query    url.Values
}

// ParseURI parses a provider identifier. Accepted forms:
//
//	keyring              bare scheme
//	keyring:             scheme with empty opaque part
//	dotenv:.env.prod     opaque path
//	dotenv:///abs/.env   hierarchical, absolute path
//	dotenv://rel/.env    hierarchical, host is the first path segment
//	bws://?project=id    query only
func ParseURI(raw string) (URI, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return URI{}, InvalidURIError{URI: raw, Reason: "provider identifier is empty"}
	}

	scheme, rest, hasColon := strings.Cut(trimmed, ":")
	scheme = strings.ToLower(scheme)

	if scheme == "1password" {
		return URI{}, InvalidURIError{URI: raw, Reason: "use onepassword:// instead of 1password://"}
	}
	if !validScheme(scheme) {
		return URI{}, InvalidURIError{URI: raw, Reason: "scheme must start with a letter and contain only letters, digits, '+', '-' or '.'"}
	}

	u := URI{Raw: trimmed, Scheme: scheme, Query: url.Values{}}
	if !hasColon || rest == "" {
		return u, nil
	}

	if !strings.HasPrefix(rest, "//") {
		// Opaque form: everything after the colon is a path, optionally
		// followed by a query.
		path, query, _ := strings.Cut(rest, "?")
		values, err := url.ParseQuery(query)
		if err != nil {
			return URI{}, InvalidURIError{URI: raw, Reason: "malformed query", Err: err}
		}
		u.Path = path
		u.Query = values
		return u, nil
	}

	parsed, err := url.Parse(scheme + ":" + rest)
	if err != nil {
		return URI{}, InvalidURIError{URI: raw, Err: err}
	}
	values, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return URI{}, InvalidURIError{URI: raw, Reason: "malformed query", Err: err}
	}

	u.Host = parsed.Host
	u.Path = parsed.Path
	u.Query = values
	if parsed.User != nil {
		u.User = parsed.User.Username()
		u.Password, _ = parsed.User.Password()
	}
	return u, nil
}

// MustParseURI is like ParseURI but panics on error. Intended for
// package-level constants and tests.
func MustParseURI(raw string) URI {
	u, err := ParseURI(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// Param returns the first value of a query parameter, or "".
func (u URI) Param(name string) string {
	if u.Query == nil {
		return ""
	}
	return u.Query.Get(name)
}

// Location joins host and path. Backends whose URI names a file or folder
// use it so that "dotenv://config/.env" and "dotenv:config/.env" agree.
func (u URI) Location() string {
	if u.Host == "" {
		return u.Path
	}
	return u.Host + u.Path
}

// String returns the identifier with any password replaced, so it is safe
// to log.
func (u URI) String() string {
	if u.Password == "" {
		return u.Raw
	}
	parsed, err := url.Parse(u.Raw)
	if err != nil {
		return u.Scheme + "://[REDACTED]"
	}
	return parsed.Redacted()
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
