package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/internal/tlsutil"
)

// ErrNotConnected 表示在 Connect 成功之前调用了需要会话的方法.
var ErrNotConnected = errors.New("mcp: not connected")

// MCPClient MCP 客户端接口
type MCPClient interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error)
	Close(ctx context.Context) error
}

// ClientConfig MCP 客户端配置
type ClientConfig struct {
	URL           string
	Timeout       time.Duration
	Headers       map[string]string
	ClientName    string
	ClientVersion string
}

// HTTPClient 基于 streamable HTTP 传输的 MCP 客户端.
// 每个 JSON-RPC 请求都是一次 POST，响应可以是 application/json 或 text/event-stream.
type HTTPClient struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger

	nextID atomic.Int64

	mu         sync.RWMutex
	sessionID  string
	serverInfo *ServerInfo
	connected  bool
}

var _ MCPClient = (*HTTPClient)(nil)

// NewHTTPClient 创建 MCP 客户端
func NewHTTPClient(config ClientConfig, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ClientName == "" {
		config.ClientName = "agentflow-a2a"
	}
	if config.ClientVersion == "" {
		config.ClientVersion = "1.0.0"
	}
	return &HTTPClient{
		config:     config,
		httpClient: tlsutil.SecureHTTPClient(config.Timeout),
		logger:     logger.With(zap.String("component", "mcp_client"), zap.String("url", config.URL)),
	}
}

// Connect 执行 initialize 握手并发送 initialized 通知.
func (c *HTTPClient) Connect(ctx context.Context) error {
	if c.config.URL == "" {
		return fmt.Errorf("mcp: server url is required")
	}
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if connected {
		return fmt.Errorf("mcp: already connected")
	}

	raw, err := c.call(ctx, MethodInitialize, map[string]any{
		"protocolVersion": MCPVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    c.config.ClientName,
			"version": c.config.ClientVersion,
		},
	})
	if err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}

	var res initializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("mcp initialize: invalid result: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = &ServerInfo{
		Name:            res.ServerInfo.Name,
		Version:         res.ServerInfo.Version,
		ProtocolVersion: res.ProtocolVersion,
		Capabilities:    res.Capabilities,
		Instructions:    res.Instructions,
	}
	c.connected = true
	c.mu.Unlock()

	if err := c.notify(ctx, MethodInitialized, nil); err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return fmt.Errorf("mcp initialized notification: %w", err)
	}

	c.logger.Info("connected to MCP server",
		zap.String("server", res.ServerInfo.Name),
		zap.String("version", res.ServerInfo.Version),
		zap.String("protocol", res.ProtocolVersion))
	return nil
}

// ServerInfo returns what the server reported during initialize, nil before Connect.
func (c *HTTPClient) ServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// SessionID returns the session assigned by the server, if any.
func (c *HTTPClient) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// IsConnected 检查是否已连接
func (c *HTTPClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ListTools 列出远程工具，自动跟随 nextCursor 分页.
func (c *HTTPClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	var (
		all    []ToolDefinition
		cursor string
	)
	for {
		var params map[string]any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		raw, err := c.call(ctx, MethodToolsList, params)
		if err != nil {
			return nil, fmt.Errorf("mcp tools/list: %w", err)
		}
		var page listToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("mcp tools/list: invalid result: %w", err)
		}
		all = append(all, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool 调用远程工具.
func (c *HTTPClient) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if args == nil {
		args = map[string]any{}
	}
	raw, err := c.call(ctx, MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp tools/call %s: %w", name, err)
	}
	var res CallToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("mcp tools/call %s: invalid result: %w", name, err)
	}
	return &res, nil
}

// Close 结束会话. 服务器不支持 DELETE（405）时视为成功.
func (c *HTTPClient) Close(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	wasConnected := c.connected
	c.connected = false
	c.sessionID = ""
	c.mu.Unlock()

	if !wasConnected || sessionID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.config.URL, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req, sessionID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mcp close session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("mcp close session: status %d", resp.StatusCode)
	}
	c.logger.Info("MCP session closed")
	return nil
}

// call 发送请求并等待对应 id 的响应.
func (c *HTTPClient) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	resp, err := c.post(ctx, NewMCPRequest(id, method, params))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if sid := resp.Header.Get(HeaderSessionID); sid != "" {
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
	}

	msg, err := readResponse(resp, id)
	if err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	return msg.Result, nil
}

// notify 发送通知，服务器应答 202 Accepted.
func (c *HTTPClient) notify(ctx context.Context, method string, params map[string]any) error {
	resp, err := c.post(ctx, NewMCPNotification(method, params))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, msg *MCPMessage) (*http.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req, c.SessionID())
	if msg.Method != MethodInitialize {
		req.Header.Set(HeaderProtocolVersion, c.protocolVersion())
	}
	return c.httpClient.Do(req)
}

func (c *HTTPClient) applyHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
}

func (c *HTTPClient) protocolVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.serverInfo != nil && c.serverInfo.ProtocolVersion != "" {
		return c.serverInfo.ProtocolVersion
	}
	return MCPVersion
}

// readResponse 从 JSON 或 SSE 响应体中取出 id 匹配的消息.
func readResponse(resp *http.Response, id int64) (*MCPMessage, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return readSSE(resp.Body, id)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var batch []MCPMessage
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		for i := range batch {
			if batch[i].IsResponseTo(id) {
				return &batch[i], nil
			}
		}
		return nil, fmt.Errorf("no response with id %d in batch", id)
	}

	var msg MCPMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !msg.IsResponseTo(id) {
		return nil, fmt.Errorf("response id mismatch: want %d, got %v", id, msg.ID)
	}
	return &msg, nil
}

// readSSE 逐个读取事件，跳过服务器推送的通知，直到拿到匹配的响应.
func readSSE(r io.Reader, id int64) (*MCPMessage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var data strings.Builder
	flush := func() (*MCPMessage, bool) {
		if data.Len() == 0 {
			return nil, false
		}
		payload := data.String()
		data.Reset()
		var msg MCPMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, false
		}
		return &msg, msg.IsResponseTo(id)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if msg, ok := flush(); ok {
				return msg, nil
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	if msg, ok := flush(); ok {
		return msg, nil
	}
	return nil, fmt.Errorf("event stream ended without response to id %d", id)
}
