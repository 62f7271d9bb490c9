package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantSteps   int
		wantSummary string
	}{
		{
			name:      "plan with steps",
			data:      `{"plan":[{"step_name":"s1","checked":true},{"step_name":"s2","checked":false}]}`,
			wantSteps: 2,
		},
		{
			name:        "summary copied through",
			data:        `{"plan":[],"summary":"done"}`,
			wantSummary: "done",
		},
		{
			name:      "missing plan degrades to empty",
			data:      `{"content":"hello"}`,
			wantSteps: 0,
		},
		{
			name:      "malformed json degrades to empty",
			data:      `{not-json`,
			wantSteps: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ParseOutput([]byte(tt.data))
			require.NotNil(t, out)
			assert.Len(t, out.Plan, tt.wantSteps)
			assert.Equal(t, tt.wantSummary, out.Summary)
			assert.Equal(t, tt.data, string(out.Raw))
		})
	}
}

func TestRegistryResolve_Factory(t *testing.T) {
	r := NewDefaultRegistry()

	def, err := r.Resolve("", "PlanResponse")
	require.NoError(t, err)
	assert.Equal(t, "PlanResponse", def.Name)

	props, ok := def.Schema["properties"].(map[string]any)
	require.True(t, ok, "reflected schema must expose properties")
	assert.Contains(t, props, "plan")
	assert.Contains(t, props, "summary")
}

func TestRegistryResolve_FileWinsOverFactory(t *testing.T) {
	dir := t.TempDir()
	doc := `{"type":"object","properties":{"content":{"type":"string"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "return_type.json"), []byte(doc), 0644))

	r := NewDefaultRegistry()
	def, err := r.Resolve(dir, "PlanResponse")
	require.NoError(t, err)
	assert.Equal(t, "PlanResponse", def.Name)
	assert.Equal(t, "object", def.Schema["type"])
}

func TestRegistryResolve_Unknown(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.Resolve(t.TempDir(), "NoSuchResponse")
	assert.Error(t, err)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("X", Reflect[TextResponse]("X")))
	assert.Error(t, r.Register("X", Reflect[TextResponse]("X")))
	assert.Error(t, r.Register("", Reflect[TextResponse]("")))
}
