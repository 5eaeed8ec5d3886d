package declaration

import (
	"errors"
	"os"
	"path/filepath"

	dserrors "github.com/systmms/secretspec/internal/errors"
)

// Load reads the declaration at path, follows its extends entries
// depth-first and returns the merged, validated result.
//
// Parents are merged in the order they are listed and the child is merged
// last. A file may be reached through several branches; it is only a cycle
// when it appears twice on the same chain.
func Load(path string) (*Declaration, error) {
	abs, err := canonicalPath(path, "")
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, dserrors.UserError{
				Message:    "No " + FileName + " found at " + abs,
				Suggestion: "Run 'secretspec init' to create one, or pass --file",
				Err:        err,
			}
		}
		return nil, dserrors.UserError{
			Message:    "Failed to read " + abs,
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	decl, err := load(abs, nil)
	if err != nil {
		return nil, err
	}
	decl.Path = abs
	if err := Validate(decl); err != nil {
		return nil, err
	}
	return decl, nil
}

func load(abs string, chain []string) (*Declaration, error) {
	for _, seen := range chain {
		if seen == abs {
			cycle := append(append([]string(nil), chain...), abs)
			return nil, dserrors.CyclicInheritanceError{Chain: cycle}
		}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	decl, err := Parse(data, abs)
	if err != nil {
		return nil, err
	}

	next := append(append([]string(nil), chain...), abs)
	merged := &Declaration{}
	for _, entry := range decl.Project.Extends {
		parentPath, err := canonicalPath(entry, filepath.Dir(abs))
		if err != nil {
			return nil, dserrors.MissingParentError{From: abs, Path: entry, Err: err}
		}
		parent, err := load(parentPath, next)
		if err != nil {
			var cycle dserrors.CyclicInheritanceError
			var missing dserrors.MissingParentError
			if errors.As(err, &cycle) || errors.As(err, &missing) {
				return nil, err
			}
			return nil, dserrors.MissingParentError{From: abs, Path: entry, Err: err}
		}
		merged = Merge(merged, parent)
	}

	out := Merge(merged, decl)
	out.Project.Extends = append([]string(nil), decl.Project.Extends...)
	return out, nil
}

// canonicalPath resolves entry against dir. A directory means the
// declaration file inside it. Symlinks are resolved when possible so that
// two spellings of the same file are detected as one.
func canonicalPath(entry, dir string) (string, error) {
	p := entry
	if !filepath.IsAbs(p) && dir != "" {
		p = filepath.Join(dir, p)
	}
	p, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		p = filepath.Join(p, FileName)
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return p, nil
}
