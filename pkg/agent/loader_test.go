package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneprompt/oneprompt/pkg/config"
	"github.com/oneprompt/oneprompt/pkg/job"
	"github.com/oneprompt/oneprompt/pkg/schema"
)

func testConfigs(tools map[string][]string) map[string]*config.AgentConfig {
	configs := make(map[string]*config.AgentConfig, len(tools))
	for name, deps := range tools {
		configs[name] = &config.AgentConfig{
			Name:         name,
			PromptFile:   "prompt.md",
			ReturnType:   "PlanResponse",
			Tools:        deps,
			StrategyName: config.DefaultStrategyName,
		}
	}
	return configs
}

func TestTopoSort_DependenciesFirst(t *testing.T) {
	configs := testConfigs(map[string][]string{
		"Top":    {"Mid"},
		"Mid":    {"Leaf"},
		"Leaf":   nil,
		"Loner":  nil,
		"Second": {"Leaf"},
	})

	order, err := TopoSort(configs)
	require.NoError(t, err)
	require.Len(t, order, 5)

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["Leaf"], pos["Mid"])
	assert.Less(t, pos["Mid"], pos["Top"])
	assert.Less(t, pos["Leaf"], pos["Second"])
}

func TestTopoSort_ExternalToolsIgnored(t *testing.T) {
	configs := testConfigs(map[string][]string{
		"Solo": {"browser", "filesystem"},
	})

	order, err := TopoSort(configs)
	require.NoError(t, err)
	assert.Equal(t, []string{"Solo"}, order)
}

func TestTopoSort_CycleRejected(t *testing.T) {
	configs := testConfigs(map[string][]string{
		"A": {"B"},
		"B": {"A"},
	})

	_, err := TopoSort(configs)
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, err.Error(), "cyclic dependency")
}

func TestTopoSort_SelfCycleRejected(t *testing.T) {
	configs := testConfigs(map[string][]string{
		"Narcissus": {"Narcissus"},
	})

	_, err := TopoSort(configs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic dependency")
}

func writeAgentFolder(t *testing.T, root, name string, tools []string) *config.AgentConfig {
	t.Helper()
	folder := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "prompt.md"), []byte("You are "+name+"."), 0o644))
	return &config.AgentConfig{
		Name:         name,
		PromptFile:   "prompt.md",
		ReturnType:   "PlanResponse",
		Tools:        tools,
		StrategyName: config.DefaultStrategyName,
		Folder:       folder,
	}
}

func TestLoad_ResolvesAgentsAndExternalServers(t *testing.T) {
	root := t.TempDir()
	configs := map[string]*config.AgentConfig{
		"Child":  writeAgentFolder(t, root, "Child", nil),
		"Parent": writeAgentFolder(t, root, "Parent", []string{"Child", "browser"}),
	}
	external := []config.ExternalServerConfig{
		{Name: "browser", URL: "http://localhost:3100/sse", Transport: "sse"},
	}

	order, err := TopoSort(configs)
	require.NoError(t, err)

	jobs := job.NewService(job.NewStore(), job.NewQueue())
	loaded, err := Load(configs, order, external, schema.NewDefaultRegistry(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count())

	parent, ok := loaded.Get("Parent")
	require.True(t, ok)
	assert.Equal(t, "You are Parent.", parent.SystemPrompt())
	assert.Equal(t, config.DefaultModel, parent.Model())

	// The parent got a client per tool; the external one keeps its URL.
	require.Len(t, parent.clients, 2)
	child, _ := loaded.Get("Child")
	assert.Equal(t, child.ServerURL(), parent.clients[0].URL())
	assert.Equal(t, "http://localhost:3100/sse", parent.clients[1].URL())
}

func TestLoad_AgentWinsOverExternalServerOfSameName(t *testing.T) {
	root := t.TempDir()
	configs := map[string]*config.AgentConfig{
		"Searcher": writeAgentFolder(t, root, "Searcher", nil),
		"Parent":   writeAgentFolder(t, root, "Parent", []string{"Searcher"}),
	}
	external := []config.ExternalServerConfig{
		{Name: "Searcher", URL: "http://localhost:4000/sse", Transport: "sse"},
	}

	order, err := TopoSort(configs)
	require.NoError(t, err)

	jobs := job.NewService(job.NewStore(), job.NewQueue())
	loaded, err := Load(configs, order, external, schema.NewDefaultRegistry(), jobs)
	require.NoError(t, err)

	parent, _ := loaded.Get("Parent")
	searcher, _ := loaded.Get("Searcher")
	require.Len(t, parent.clients, 1)
	assert.Equal(t, searcher.ServerURL(), parent.clients[0].URL())
}

func TestLoad_UnknownToolFails(t *testing.T) {
	root := t.TempDir()
	configs := map[string]*config.AgentConfig{
		"Lost": writeAgentFolder(t, root, "Lost", []string{"NoSuchTool"}),
	}

	jobs := job.NewService(job.NewStore(), job.NewQueue())
	_, err := Load(configs, []string{"Lost"}, nil, schema.NewDefaultRegistry(), jobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool 'NoSuchTool' not found for agent 'Lost'")
}

func TestLoad_MissingPromptFails(t *testing.T) {
	cfg := &config.AgentConfig{
		Name:         "Ghost",
		PromptFile:   "prompt.md",
		ReturnType:   "PlanResponse",
		StrategyName: config.DefaultStrategyName,
		Folder:       filepath.Join(t.TempDir(), "nowhere"),
	}

	jobs := job.NewService(job.NewStore(), job.NewQueue())
	_, err := Load(map[string]*config.AgentConfig{"Ghost": cfg}, []string{"Ghost"}, nil, schema.NewDefaultRegistry(), jobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading prompt")
}
