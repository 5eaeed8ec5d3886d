package declaration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secretspec/internal/errors"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func project(name string, extends ...string) string {
	s := "[project]\nname = \"" + name + "\"\nrevision = \"1.0\"\n"
	if len(extends) > 0 {
		s += "extends = ["
		for i, e := range extends {
			if i > 0 {
				s += ", "
			}
			s += "\"" + e + "\""
		}
		s += "]\n"
	}
	return s
}

func TestLoad_Extends(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "shared", FileName), project("shared")+`
[profiles.default]
DATABASE_URL = { description = "shared db", required = true }
LOG_LEVEL = { description = "log level", default = "info" }
`)
	writeFile(t, filepath.Join(dir, "base.toml"), project("base")+`
[profiles.default]
LOG_LEVEL = { default = "warn" }
REDIS_URL = { description = "cache" }
`)
	child := writeFile(t, filepath.Join(dir, "app", FileName), project("app", "../shared", "../base.toml")+`
[profiles.default]
API_KEY = { description = "api" }

[profiles.development]
DATABASE_URL = { required = false, default = "sqlite:///dev.db" }
`)

	decl, err := Load(child)
	require.NoError(t, err)

	assert.Equal(t, "app", decl.Project.Name)
	assert.Equal(t, []string{"../shared", "../base.toml"}, decl.Project.Extends)

	def := decl.EffectiveProfile("default")
	assert.Equal(t, []string{"API_KEY", "DATABASE_URL", "LOG_LEVEL", "REDIS_URL"}, def.Keys())
	assert.Equal(t, "warn", def["LOG_LEVEL"].DefaultValue(), "later parent wins")
	assert.Equal(t, "log level", def["LOG_LEVEL"].DescriptionText(), "untouched fields are inherited")

	dev := decl.EffectiveProfile("development")
	assert.False(t, dev["DATABASE_URL"].IsRequired())
	assert.Equal(t, "shared db", dev["DATABASE_URL"].DescriptionText())
}

func TestLoad_ChildOverridesParent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "parent.toml"), project("parent")+`
[profiles.default]
KEY = { description = "from parent", default = "p" }
`)
	child := writeFile(t, filepath.Join(dir, "child.toml"), project("child", "parent.toml")+`
[profiles.default]
KEY = { default = "c" }
`)

	decl, err := Load(child)
	require.NoError(t, err)
	key := decl.Profiles["default"]["KEY"]
	assert.Equal(t, "c", key.DefaultValue())
	assert.Equal(t, "from parent", key.DescriptionText())
}

func TestLoad_DiamondIsNotACycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "common.toml"), project("common")+"[profiles.default]\nCOMMON = {}\n")
	writeFile(t, filepath.Join(dir, "left.toml"), project("left", "common.toml")+"[profiles.default]\nLEFT = {}\n")
	writeFile(t, filepath.Join(dir, "right.toml"), project("right", "common.toml")+"[profiles.default]\nRIGHT = {}\n")
	top := writeFile(t, filepath.Join(dir, "top.toml"), project("top", "left.toml", "right.toml"))

	decl, err := Load(top)
	require.NoError(t, err)
	assert.Equal(t, []string{"COMMON", "LEFT", "RIGHT"}, decl.EffectiveProfile("default").Keys())
}

func TestLoad_Cycles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files map[string][]string
		want  []string
	}{
		{
			name:  "self",
			files: map[string][]string{"a.toml": {"a.toml"}},
			want:  []string{"a.toml", "a.toml"},
		},
		{
			name:  "two",
			files: map[string][]string{"a.toml": {"b.toml"}, "b.toml": {"a.toml"}},
			want:  []string{"a.toml", "b.toml", "a.toml"},
		},
		{
			name: "three",
			files: map[string][]string{
				"a.toml": {"b.toml"},
				"b.toml": {"c.toml"},
				"c.toml": {"a.toml"},
			},
			want: []string{"a.toml", "b.toml", "c.toml", "a.toml"},
		},
		{
			name: "cycle below the root",
			files: map[string][]string{
				"a.toml": {"b.toml"},
				"b.toml": {"c.toml"},
				"c.toml": {"b.toml"},
			},
			want: []string{"a.toml", "b.toml", "c.toml", "b.toml"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			for name, extends := range tt.files {
				writeFile(t, filepath.Join(dir, name), project(name, extends...))
			}

			_, err := Load(filepath.Join(dir, "a.toml"))
			require.Error(t, err)

			var cycle dserrors.CyclicInheritanceError
			require.ErrorAs(t, err, &cycle)
			var names []string
			for _, p := range cycle.Chain {
				names = append(names, filepath.Base(p))
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, dserrors.ExitConfig, dserrors.ExitCode(err))
		})
	}
}

func TestLoad_MissingParent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	child := writeFile(t, filepath.Join(dir, "child.toml"), project("child", "nope.toml"))

	_, err := Load(child)
	require.Error(t, err)

	var missing dserrors.MissingParentError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "nope.toml", missing.Path)
	assert.Equal(t, dserrors.ExitConfig, dserrors.ExitCode(err))
}

func TestLoad_BrokenParent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "parent.toml"), "[project\n")
	child := writeFile(t, filepath.Join(dir, "child.toml"), project("child", "parent.toml"))

	_, err := Load(child)
	var missing dserrors.MissingParentError
	require.ErrorAs(t, err, &missing)
	var perr dserrors.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestLoad_MissingRoot(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), FileName))
	require.Error(t, err)
	var uerr dserrors.UserError
	require.ErrorAs(t, err, &uerr)
	assert.Contains(t, uerr.Suggestion, "secretspec init")
}

func TestLoad_Directory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), project("dir"))

	decl, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dir", decl.Project.Name)
	assert.Equal(t, FileName, filepath.Base(decl.Path))
}

func TestWriteThenLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), FileName)

	require.NoError(t, Write(New("roundtrip"), path, false))
	assert.Error(t, Write(New("roundtrip"), path, false), "refuses to overwrite")

	decl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", decl.Project.Name)

	dev := decl.EffectiveProfile("development")["DATABASE_URL"]
	require.NotNil(t, dev.Required, "explicit required = false survives encoding")
	assert.False(t, *dev.Required)
	assert.Equal(t, "sqlite:///dev.db", dev.DefaultValue())
	assert.True(t, decl.EffectiveProfile("default")["DATABASE_URL"].IsRequired())
}

func TestFromDotenv(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	env := writeFile(t, filepath.Join(dir, ".env"), "# comment\nZED=1\nALPHA=two\nexport BETA=\"three\"\n")

	decl, err := FromDotenv("imported", env)
	require.NoError(t, err)
	assert.Equal(t, "imported", decl.Project.Name)

	def := decl.Profiles["default"]
	assert.Equal(t, []string{"ALPHA", "BETA", "ZED"}, def.Keys())
	for _, k := range def.Keys() {
		assert.True(t, def[k].IsRequired())
		assert.Nil(t, def[k].Default, "values are never copied into the declaration")
	}

	_, err = FromDotenv("x", filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}
