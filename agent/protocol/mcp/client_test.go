package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/llm"
	"github.com/BaSui01/agentflow-a2a/llm/tools"
)

// fakeServer 是一个最小的 streamable HTTP MCP 服务器.
type fakeServer struct {
	t         *testing.T
	mu        sync.Mutex
	methods   []string
	deleted   bool
	sseList   bool
	sessionID string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		f.mu.Lock()
		f.deleted = r.Header.Get(HeaderSessionID) == f.sessionID
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	assert.Contains(f.t, r.Header.Get("Accept"), "text/event-stream")
	body, _ := io.ReadAll(r.Body)
	var msg struct {
		ID     any            `json:"id"`
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}
	if !assert.NoError(f.t, json.Unmarshal(body, &msg)) {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.methods = append(f.methods, msg.Method)
	f.mu.Unlock()

	if msg.Method != MethodInitialize {
		assert.Equal(f.t, f.sessionID, r.Header.Get(HeaderSessionID))
		assert.Equal(f.t, "2025-03-26", r.Header.Get(HeaderProtocolVersion))
	}

	reply := func(result any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": result})
	}

	switch msg.Method {
	case MethodInitialize:
		w.Header().Set(HeaderSessionID, f.sessionID)
		reply(map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "docs", "version": "0.1.0"},
		})
	case MethodInitialized:
		w.WriteHeader(http.StatusAccepted)
	case MethodToolsList:
		cursor, _ := msg.Params["cursor"].(string)
		result := map[string]any{}
		if cursor == "" {
			result["tools"] = []map[string]any{{
				"name":        "search_docs",
				"description": "Search documentation",
				"inputSchema": map[string]any{"type": "object", "properties": map[string]any{"query": map[string]any{"type": "string"}}},
			}}
			result["nextCursor"] = "page2"
		} else {
			result["tools"] = []map[string]any{{"name": "fetch_doc"}, {"name": ""}}
		}
		if f.sseList {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\",\"params\":{}}\n\n")
			payload, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": result})
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			return
		}
		reply(result)
	case MethodToolsCall:
		name, _ := msg.Params["name"].(string)
		args, _ := msg.Params["arguments"].(map[string]any)
		switch name {
		case "search_docs":
			reply(map[string]any{"content": []map[string]any{
				{"type": "text", "text": "found: " + fmt.Sprint(args["query"])},
				{"type": "image", "data": "xx", "mimeType": "image/png"},
			}})
		case "fetch_doc":
			reply(map[string]any{"content": []map[string]any{{"type": "text", "text": "no such doc"}}, "isError": true})
		default:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "error": map[string]any{"code": ErrorCodeInvalidParams, "message": "unknown tool"}})
		}
	default:
		http.Error(w, "unexpected", http.StatusBadRequest)
	}
}

func newFakeServer(t *testing.T, sse bool) (*fakeServer, *httptest.Server) {
	f := &fakeServer{t: t, sseList: sse, sessionID: "sess-123"}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestHTTPClient_ConnectListCallClose(t *testing.T) {
	for _, sse := range []bool{false, true} {
		t.Run(fmt.Sprintf("sse=%v", sse), func(t *testing.T) {
			f, srv := newFakeServer(t, sse)
			c := NewHTTPClient(ClientConfig{URL: srv.URL}, zap.NewNop())
			ctx := context.Background()

			_, err := c.ListTools(ctx)
			assert.ErrorIs(t, err, ErrNotConnected)

			require.NoError(t, c.Connect(ctx))
			assert.True(t, c.IsConnected())
			assert.Equal(t, "sess-123", c.SessionID())
			assert.Equal(t, "docs", c.ServerInfo().Name)

			defs, err := c.ListTools(ctx)
			require.NoError(t, err)
			require.Len(t, defs, 3)
			assert.Equal(t, "search_docs", defs[0].Name)
			assert.Equal(t, "fetch_doc", defs[1].Name)

			res, err := c.CallTool(ctx, "search_docs", map[string]any{"query": "a2a"})
			require.NoError(t, err)
			assert.False(t, res.IsError)
			assert.Equal(t, "found: a2a", res.Text())

			_, err = c.CallTool(ctx, "nope", nil)
			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)

			require.NoError(t, c.Close(ctx))
			assert.False(t, c.IsConnected())

			f.mu.Lock()
			defer f.mu.Unlock()
			assert.True(t, f.deleted)
			assert.Equal(t, []string{MethodInitialize, MethodInitialized, MethodToolsList, MethodToolsList, MethodToolsCall, MethodToolsCall}, f.methods)
		})
	}
}

func TestHTTPClient_ConnectErrors(t *testing.T) {
	c := NewHTTPClient(ClientConfig{}, nil)
	assert.Error(t, c.Connect(context.Background()))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c = NewHTTPClient(ClientConfig{URL: srv.URL}, nil)
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.False(t, c.IsConnected())
}

func TestHTTPClient_SendsCustomHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		http.Error(w, "stop", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewHTTPClient(ClientConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t"}}, nil)
	_ = c.Connect(context.Background())
	assert.Equal(t, "Bearer t", got)
}

func TestRegisterTools(t *testing.T) {
	_, srv := newFakeServer(t, true)
	c := NewHTTPClient(ClientConfig{URL: srv.URL}, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	reg := tools.NewDefaultRegistry(zap.NewNop())
	names, err := RegisterTools(ctx, c, reg, RegisterOptions{Prefix: "docs_", Source: "docs"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"docs_search_docs", "docs_fetch_doc"}, names)

	_, meta, err := reg.Get("docs_search_docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", meta.Source)
	assert.Equal(t, "docs_search_docs", meta.Schema.Name)
	assert.Contains(t, string(meta.Schema.Parameters), "query")

	_, meta, err = reg.Get("docs_fetch_doc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(meta.Schema.Parameters))

	exec := tools.NewDefaultExecutor(reg, zap.NewNop())
	results := exec.Execute(ctx, []llm.ToolCall{
		{ID: "1", Name: "docs_search_docs", Arguments: json.RawMessage(`{"query":"agents"}`)},
		{ID: "2", Name: "docs_fetch_doc", Arguments: json.RawMessage(`{}`)},
		{ID: "3", Name: "docs_search_docs", Arguments: json.RawMessage(`[1]`)},
	})
	require.Len(t, results, 3)
	assert.JSONEq(t, `"found: agents"`, string(results[0].Result))
	assert.Equal(t, "no such doc", results[1].Error)
	assert.True(t, strings.HasPrefix(results[2].Error, "arguments must be a JSON object"))
}

func TestMCPMessage_IsResponseTo(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`{"jsonrpc":"2.0","id":7,"result":{}}`, true},
		{`{"jsonrpc":"2.0","id":"7","result":{}}`, true},
		{`{"jsonrpc":"2.0","id":8,"result":{}}`, false},
		{`{"jsonrpc":"2.0","method":"notifications/progress"}`, false},
		{`{"jsonrpc":"2.0","id":7,"method":"sampling/createMessage"}`, false},
	}
	for _, tc := range cases {
		var m MCPMessage
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &m))
		assert.Equal(t, tc.want, m.IsResponseTo(7), tc.raw)
	}
}

func TestMCPMessage_MarshalAlwaysVersion2(t *testing.T) {
	data, err := json.Marshal(&MCPMessage{ID: int64(1), Method: MethodPing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, string(data))

	data, err = json.Marshal(NewMCPNotification(MethodInitialized, nil))
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)
}
