package declaration

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/xeipuuv/gojsonschema"

	dserrors "github.com/systmms/secretspec/internal/errors"
)

//go:embed schema/declaration.schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

// Schema returns the JSON Schema that every declaration file must satisfy.
func Schema() []byte {
	return schemaJSON
}

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return compiledSchema, schemaErr
}

// Parse decodes a single declaration file without following extends.
// path is used only for error messages and is recorded on the result.
func Parse(data []byte, path string) (*Declaration, error) {
	var raw map[string]interface{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, tomlError(path, err)
	}

	if err := validateSchema(raw, path); err != nil {
		return nil, err
	}

	var decl Declaration
	md, err := toml.Decode(string(data), &decl)
	if err != nil {
		return nil, tomlError(path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, dserrors.ParseError{
			Path:    path,
			Message: fmt.Sprintf("unknown field %q", undecoded[0].String()),
		}
	}

	decl.Path = path
	return &decl, nil
}

func tomlError(path string, err error) error {
	var perr toml.ParseError
	if errors.As(err, &perr) {
		return dserrors.ParseError{
			Path:    path,
			Line:    perr.Position.Line,
			Message: perr.Message,
		}
	}
	return dserrors.ParseError{Path: path, Err: err}
}

func validateSchema(raw map[string]interface{}, path string) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compiling declaration schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return dserrors.ParseError{Path: path, Err: err}
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}
	sort.Strings(problems)
	return dserrors.ParseError{
		Path:    path,
		Message: strings.Join(problems, "; "),
	}
}

// Validate checks rules that span fields and profiles. A secret that is
// explicitly required may not also carry a default, in any profile, after
// the profile has been merged over the default profile.
func Validate(d *Declaration) error {
	if d.Project.Name == "" {
		return dserrors.ParseError{Path: d.Path, Message: "project.name is required"}
	}

	for _, profileName := range d.ProfileNames() {
		effective := d.EffectiveProfile(profileName)
		for _, key := range effective.Keys() {
			s := effective[key]
			if s.Required != nil && *s.Required && s.Default != nil {
				return dserrors.ParseError{
					Path: d.Path,
					Message: fmt.Sprintf("profile %q secret %s is required and has a default; set required = false to make the default apply",
						profileName, key),
				}
			}
		}
	}
	return nil
}
