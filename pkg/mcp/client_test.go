package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPingMCPServer() *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer("ping_mcp", "0.1.0", mcpserver.WithToolCapabilities(false))
	srv.AddTool(
		mcpgo.NewTool("ping", mcpgo.WithDescription("Replies with pong.")),
		func(context.Context, mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return mcpgo.NewToolResultText("pong"), nil
		},
	)
	return srv
}

func newPingServer(t *testing.T) string {
	t.Helper()
	ts := mcpserver.NewTestServer(newPingMCPServer())
	t.Cleanup(ts.Close)
	return ts.URL + "/sse"
}

// Two workers holding two jobs of the same agent may dial the same tool
// server at once; only one connection must be established.
func TestClient_ConcurrentConnect(t *testing.T) {
	c := NewClient("ping", newPingServer(t))
	defer c.Close()

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !c.Connected() {
				errs[i] = c.Connect(context.Background())
			}
			c.Tools()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	require.True(t, c.Connected())
	require.Len(t, c.Tools(), 1)
	assert.Equal(t, "pong", c.Call(context.Background(), "ping", nil))
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	c := NewClient("ping", newPingServer(t))
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	first := c.Tools()

	// A second Connect is a no-op on an established connection.
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, first, c.Tools())
}

func TestClient_StreamableHTTPTransport(t *testing.T) {
	ts := mcpserver.NewTestStreamableHTTPServer(newPingMCPServer())
	defer ts.Close()

	c := NewClient("ping", ts.URL, WithTransport(TransportStreamableHTTP))
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	require.Len(t, c.Tools(), 1)
	assert.Equal(t, "pong", c.Call(context.Background(), "ping", nil))
}

func TestClient_HeadersSentOnEveryRequest(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	var sseSrv *mcpserver.SSEServer
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		sseSrv.ServeHTTP(w, r)
	}))
	defer ts.Close()
	sseSrv = mcpserver.NewSSEServer(newPingMCPServer(), mcpserver.WithBaseURL(ts.URL))

	c := NewClient("ping", ts.URL+"/sse",
		WithHeaders(map[string]string{"Authorization": "Bearer sekrit"}))
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, got := range seen {
		assert.Equal(t, "Bearer sekrit", got)
	}
}

func TestClient_CallBeforeConnect(t *testing.T) {
	c := NewClient("ghost", "http://localhost:1/sse")
	assert.Equal(t, "Error: not connected to server ghost", c.Call(context.Background(), "ping", nil))
}
