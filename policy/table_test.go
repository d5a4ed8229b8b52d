package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Classify(t *testing.T) {
	tbl := Default()

	tests := []struct {
		module string
		want   Class
	}{
		{"subprocess", Denied},
		{"pickle", Denied},
		{"os", Conditional},
		{"requests", Conditional},
		{"json", Allowed},
		{"logging", Allowed},
		{"meta_agent", Internal},
		{"meta_agent_tools", Internal},
		{"meta_agentfoo", Unknown},
		{"numpy", Unknown},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tbl.Classify(tc.module), tc.module)
	}
}

func TestDefault_DeniedCalls(t *testing.T) {
	tbl := Default()
	for _, name := range []string{"eval", "exec", "compile", "__import__", "open", "system", "popen", "input"} {
		assert.True(t, tbl.IsDeniedCall(name), name)
	}
	assert.False(t, tbl.IsDeniedCall("print"))
}

func TestAllowsAccess(t *testing.T) {
	tbl := Default()

	tests := []struct {
		module string
		path   string
		want   bool
	}{
		{"os", "getenv", true},
		{"os", "environ.get", true},
		{"os", "path", true},
		{"os", "path.join", true},
		{"os", "environ", false},
		{"os", "system", false},
		{"os", "pathlike", false},
		{"sys", "argv", true},
		{"sys", "modules", false},
		{"requests", "post", true},
		{"json", "anything", true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tbl.AllowsAccess(tc.module, tc.path), tc.module+"."+tc.path)
	}
	assert.Equal(t, []string{"environ.get", "getenv", "path"}, tbl.AllowedAccesses("os"))
}

func TestAllowsMembersOf(t *testing.T) {
	tbl := Default()

	assert.True(t, tbl.AllowsMembersOf("os", "environ"))
	assert.False(t, tbl.AllowsMembersOf("os", "getenv"))
	assert.False(t, tbl.AllowsMembersOf("os", "env"))
	assert.False(t, tbl.AllowsMembersOf("sys", "argv"))
	assert.False(t, tbl.AllowsMembersOf("json", "loads"))
}

func TestNew_RejectsOverlap(t *testing.T) {
	_, err := New(Spec{
		DeniedImports:  []string{"os"},
		AllowedImports: []string{"os"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"os"`)

	_, err = New(Spec{
		ConditionalImports: map[string][]string{"sys": {"argv"}},
		AllowedImports:     []string{"sys"},
	})
	assert.Error(t, err)
}

func TestNew_CopiesInput(t *testing.T) {
	s := Spec{
		DeniedCalls:        []string{"eval"},
		ConditionalImports: map[string][]string{"os": {"getenv"}},
	}
	tbl, err := New(s)
	require.NoError(t, err)

	s.DeniedCalls[0] = "print"
	s.ConditionalImports["os"][0] = "system"

	assert.True(t, tbl.IsDeniedCall("eval"))
	assert.False(t, tbl.IsDeniedCall("print"))
	assert.False(t, tbl.AllowsAccess("os", "system"))

	got := tbl.AllowedAccesses("os")
	got[0] = "system"
	assert.False(t, tbl.AllowsAccess("os", "system"))
}

func TestParse(t *testing.T) {
	data := []byte(`
denied_calls: [eval]
denied_imports: [socket]
conditional_imports:
  os: [getenv]
  requests: []
allowed_imports: [json]
internal_prefixes: [acme_]
`)
	tbl, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, Denied, tbl.Classify("socket"))
	assert.Equal(t, Conditional, tbl.Classify("requests"))
	assert.Equal(t, Internal, tbl.Classify("acme_core"))
	assert.Equal(t, Unknown, tbl.Classify("acmecorp"))
	assert.Equal(t, Unknown, tbl.Classify("subprocess"))
	assert.True(t, tbl.AllowsAccess("requests", "get"))
	assert.False(t, tbl.AllowsAccess("os", "system"))
}

func TestParse_RejectsOverlap(t *testing.T) {
	_, err := Parse([]byte("denied_imports: [os]\nconditional_imports:\n  os: [getenv]\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Denied, tbl.Classify("subprocess"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	data, err := Default().Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Spec(), loaded.Spec())
}
