package providers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/pkg/provider"
)

// DefaultDotenvPath is used when a dotenv URI names no file.
const DefaultDotenvPath = ".env"

// DotenvProvider reads and writes a single .env file. The file is the whole
// namespace: which project and profile it serves is decided by which file
// the user points at.
type DotenvProvider struct {
	path   string
	logger *logging.Logger
}

// NewDotenvProvider creates a provider for the file at path.
func NewDotenvProvider(path string) *DotenvProvider {
	if path == "" {
		path = DefaultDotenvPath
	}
	return &DotenvProvider{
		path:   path,
		logger: logging.New(false, false),
	}
}

// NewDotenvProviderFactory creates a dotenv provider from dotenv:<path>
func NewDotenvProviderFactory(u provider.URI) (provider.Provider, error) {
	return NewDotenvProvider(u.Location()), nil
}

func (d *DotenvProvider) Name() string { return "dotenv" }

func (d *DotenvProvider) Description() string {
	return "A .env file (" + d.path + ")"
}

func (d *DotenvProvider) AllowsSet() bool { return true }

// FlatNamespace reports that project and profile are not part of the key.
func (d *DotenvProvider) FlatNamespace() bool { return true }

// Path returns the file this provider reads and writes.
func (d *DotenvProvider) Path() string { return d.path }

// Get reads the file and returns the key's value. A missing file holds no
// keys.
func (d *DotenvProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	vars, err := d.read()
	if err != nil {
		return "", false, err
	}
	value, ok := vars[addr.Key]
	return value, ok, nil
}

// Set rewrites the file with the key updated. Keys are written sorted, one
// per line; comments in the original file are not preserved.
func (d *DotenvProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	vars, err := d.read()
	if err != nil {
		return err
	}
	vars[addr.Key] = value
	d.logger.Debug("dotenv set %s in %s = %s", addr.Key, d.path, logging.Secret(value))

	data, err := FormatDotenv(vars)
	if err != nil {
		return provider.WriteRejectedError{Provider: d.Name(), Key: addr.Key, Err: err}
	}
	if err := writeFileAtomic(d.path, []byte(data)); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return provider.WriteRejectedError{Provider: d.Name(), Key: addr.Key, Err: err}
		}
		return fmt.Errorf("failed to write %s: %w", d.path, err)
	}
	return nil
}

func (d *DotenvProvider) read() (map[string]string, error) {
	vars, err := godotenv.Read(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.path, err)
	}
	return vars, nil
}

// FormatDotenv renders vars as KEY=value lines in sorted key order. Each
// value is written in the first form that godotenv reads back unchanged;
// a value no form can carry is an error.
func FormatDotenv(vars map[string]string) (string, error) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		line, err := dotenvLine(k, vars[k])
		if err != nil {
			return "", err
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// ErrDotenvUnrepresentable is returned for a value that no dotenv quoting
// style round-trips, such as one ending in a backslash that also holds a
// single quote.
var ErrDotenvUnrepresentable = errors.New("value cannot be written to a .env file without changing it")

var dotenvEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"\n", `\n`,
	"\r", `\r`,
)

// dotenvLine renders key=value. Single quotes keep the value literal, the
// escaped double-quoted form keeps line breaks on one line, and the bare
// form covers trailing backslashes that would otherwise escape a closing
// quote. Every candidate is parsed back before it is accepted.
func dotenvLine(key, value string) (string, error) {
	single := "'" + value + "'"
	double := `"` + dotenvEscaper.Replace(value) + `"`
	candidates := []string{single, double, value}
	if strings.ContainsAny(value, "\r\n") {
		candidates = []string{double, single}
	}
	for _, quoted := range candidates {
		line := key + "=" + quoted
		parsed, err := godotenv.Unmarshal(line)
		if err != nil {
			continue
		}
		if got, ok := parsed[key]; ok && got == value && len(parsed) == 1 {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s: %w", key, ErrDotenvUnrepresentable)
}

// writeFileAtomic replaces path through a temporary file in the same
// directory. A new file is created owner-readable only; an existing one
// keeps its mode.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
