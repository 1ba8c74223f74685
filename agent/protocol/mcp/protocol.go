package mcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/agentflow-a2a/llm"
)

// MCP (Model Context Protocol) 客户端侧所需的最小协议定义.

// MCPVersion 是 streamable HTTP 传输对应的协议版本.
const MCPVersion = "2025-03-26"

// 方法名
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodPing        = "ping"
)

// HTTP 头
const (
	HeaderSessionID       = "Mcp-Session-Id"
	HeaderProtocolVersion = "MCP-Protocol-Version"
)

// ToolDefinition MCP 工具定义
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"` // JSON Schema
}

// ServerInfo 服务器信息（initialize 结果）
type ServerInfo struct {
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	Instructions    string         `json:"instructions,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
	Instructions string `json:"instructions,omitempty"`
}

type listToolsResult struct {
	Tools      []ToolDefinition `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ContentBlock 是 tools/call 结果中的一段内容.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// CallToolResult tools/call 的结果
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Text 拼接所有 text 类型的内容块.
func (r *CallToolResult) Text() string {
	var parts []string
	for _, c := range r.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MCPMessage MCP 消息（JSON-RPC 2.0）
type MCPMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  map[string]any  `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
}

// MCPError MCP 错误
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// 标准错误码
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
)

// MarshalJSON 自定义 JSON 序列化，jsonrpc 字段总是 "2.0"
func (m *MCPMessage) MarshalJSON() ([]byte, error) {
	type Alias MCPMessage
	return json.Marshal(&struct {
		JSONRPC string `json:"jsonrpc"`
		*Alias
	}{
		JSONRPC: "2.0",
		Alias:   (*Alias)(m),
	})
}

// NewMCPRequest 创建 MCP 请求
func NewMCPRequest(id int64, method string, params map[string]any) *MCPMessage {
	return &MCPMessage{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// NewMCPNotification 创建没有 id 的通知
func NewMCPNotification(method string, params map[string]any) *MCPMessage {
	return &MCPMessage{JSONRPC: "2.0", Method: method, Params: params}
}

// IsResponseTo reports whether m answers the request with the given id.
// JSON 数字解码为 float64，部分服务器会把 id 回写成字符串.
func (m *MCPMessage) IsResponseTo(id int64) bool {
	if m.Method != "" {
		return false
	}
	switch v := m.ID.(type) {
	case float64:
		return int64(v) == id
	case int64:
		return v == id
	case json.Number:
		n, err := v.Int64()
		return err == nil && n == id
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return err == nil && n == id
	default:
		return false
	}
}

// ToLLMToolSchema 将 MCP 工具定义转换为 LLM 工具 Schema
func (t *ToolDefinition) ToLLMToolSchema(name string) llm.ToolSchema {
	schema := t.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	parametersJSON, _ := json.Marshal(schema)

	return llm.ToolSchema{
		Name:        name,
		Description: t.Description,
		Parameters:  parametersJSON,
	}
}

// Validate 验证工具定义
func (t *ToolDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	return nil
}
