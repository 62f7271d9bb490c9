package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAgent(t *testing.T, root, folder, cfg string) {
	t.Helper()
	dir := filepath.Join(root, folder)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "EchoAgent", `{
		"name": "Echo",
		"prompt_file": "prompt.txt",
		"return_type": "PlanResponse",
		"inputs_description": "text to echo",
		"tools": [],
		"unknown_key": 42
	}`)
	writeAgent(t, root, "MainAgent", `{
		"name": "Main",
		"prompt_file": "prompt.txt",
		"return_type": "PlanResponse",
		"inputs_description": "a request",
		"tools": ["Echo"],
		"model": "gpt-4o",
		"strategy_name": "plan_watcher"
	}`)
	// A folder without config.json is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0755))

	configs, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	echo := configs["Echo"]
	require.NotNil(t, echo)
	assert.Equal(t, DefaultStrategyName, echo.StrategyName)
	assert.Equal(t, filepath.Join(root, "EchoAgent"), echo.Folder)
	assert.Equal(t, filepath.Join(root, "EchoAgent", "prompt.txt"), echo.PromptPath())
	assert.Empty(t, echo.Tools)

	main := configs["Main"]
	require.NotNil(t, main)
	assert.Equal(t, "plan_watcher", main.StrategyName)
	assert.Equal(t, []string{"Echo"}, main.Tools)
	assert.Equal(t, "gpt-4o", main.Model)
}

func TestDiscover_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  string
	}{
		{"missing name", `{"prompt_file":"p.txt","return_type":"R","inputs_description":"","tools":[]}`},
		{"missing prompt_file", `{"name":"A","return_type":"R","inputs_description":"","tools":[]}`},
		{"missing return_type", `{"name":"A","prompt_file":"p.txt","inputs_description":"","tools":[]}`},
		{"wrong type for tools", `{"name":"A","prompt_file":"p.txt","return_type":"R","tools":"Echo"}`},
		{"bad json", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeAgent(t, root, "A", tt.cfg)
			_, err := Discover(root)
			assert.Error(t, err)
		})
	}
}

func TestDiscover_DuplicateName(t *testing.T) {
	root := t.TempDir()
	cfg := `{"name":"Echo","prompt_file":"p.txt","return_type":"R","inputs_description":"","tools":[]}`
	writeAgent(t, root, "A", cfg)
	writeAgent(t, root, "B", cfg)

	_, err := Discover(root)
	assert.Error(t, err)
}

func TestLoadExternalServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_servers.yaml")
	data := `
servers:
  - name: filesystem
    url: http://127.0.0.1:7001/sse
  - name: scraper
    url: http://127.0.0.1:7002/sse
    transport: streamable-http
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	servers, err := LoadExternalServers(path)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "sse", servers[0].Transport)
	assert.Equal(t, "streamable-http", servers[1].Transport)
}

func TestLoadExternalServers_Missing(t *testing.T) {
	servers, err := LoadExternalServers(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestLoadExternalServers_Duplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_servers.yaml")
	data := `
servers:
  - name: fs
    url: http://127.0.0.1:7001/sse
  - name: fs
    url: http://127.0.0.1:7002/sse
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	_, err := LoadExternalServers(path)
	assert.Error(t, err)
}

func TestMainMCPPort(t *testing.T) {
	t.Setenv(EnvMainMCPPort, "")
	assert.Equal(t, DefaultMainMCPPort, MainMCPPort())

	t.Setenv(EnvMainMCPPort, "23456")
	assert.Equal(t, 23456, MainMCPPort())

	t.Setenv(EnvMainMCPPort, "not-a-port")
	assert.Equal(t, DefaultMainMCPPort, MainMCPPort())
}
