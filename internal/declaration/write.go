package declaration

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const header = "# Secrets declared for this project. Values live in the configured provider.\n\n"

// Encode renders a declaration as TOML.
func Encode(d *Declaration) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encoding declaration: %w", err)
	}
	return buf.Bytes(), nil
}

// Write encodes the declaration to path. It refuses to replace an existing
// file unless overwrite is set.
func Write(d *Declaration, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := Encode(d)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// New returns a starter declaration for a project with a default and a
// development profile.
func New(project string) *Declaration {
	return &Declaration{
		Project: Project{Name: project, Revision: "1.0"},
		Profiles: map[string]Profile{
			"default": {
				"DATABASE_URL": {
					Description: Ptr("Database connection string"),
					Required:    Ptr(true),
				},
			},
			"development": {
				"DATABASE_URL": {
					Required: Ptr(false),
					Default:  Ptr("sqlite:///dev.db"),
				},
			},
		},
	}
}

// FromDotenv builds a declaration whose default profile declares every key
// found in a dotenv file. Values are not copied; only the names are.
func FromDotenv(project, path string) (*Declaration, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	profile := Profile{}
	for _, k := range keys {
		profile[k] = Secret{
			Description: Ptr(k + " secret"),
			Required:    Ptr(true),
		}
	}
	return &Declaration{
		Project:  Project{Name: project, Revision: "1.0"},
		Profiles: map[string]Profile{"default": profile},
	}, nil
}
