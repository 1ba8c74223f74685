package a2a

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	// WellKnownPath 是代理卡的发现路径.
	WellKnownPath = "/.well-known/agent.json"
	// DefaultMessagePath 是消息交换的默认路径.
	DefaultMessagePath = "/api/messages"
	// DefaultMessageMethod 是消息交换的默认方法.
	DefaultMessageMethod = http.MethodPost
)

// Capabilities 描述代理支持的交互模式与工具.
type Capabilities struct {
	Streaming bool     `json:"streaming"`
	Sync      bool     `json:"sync"`
	Async     bool     `json:"async"`
	Tools     []string `json:"tools"`
}

// Endpoint 描述一个可调用的 HTTP 端点.
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description,omitempty"`
}

// Endpoints lists the routes a client needs after discovery.
type Endpoints struct {
	Message Endpoint `json:"message"`
}

// ModelInfo 描述代理背后的模型.
type ModelInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Backend  string `json:"backend,omitempty"`
}

// AgentCard 是发布在 WellKnownPath 的代理描述符.
// 启动时构建一次，之后不再修改.
type AgentCard struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Version      string         `json:"version"`
	ID           string         `json:"id"`
	Capabilities Capabilities   `json:"capabilities"`
	Endpoints    Endpoints      `json:"endpoints"`
	Model        ModelInfo      `json:"model"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewAgentCard creates a card with the default message endpoint.
func NewAgentCard(name, description, version, id string) *AgentCard {
	return &AgentCard{
		Name:        name,
		Description: description,
		Version:     version,
		ID:          id,
		Capabilities: Capabilities{
			Sync:  true,
			Tools: make([]string, 0),
		},
		Endpoints: Endpoints{
			Message: Endpoint{
				Path:        DefaultMessagePath,
				Method:      DefaultMessageMethod,
				Description: "Send messages to the agent",
			},
		},
	}
}

// Validate 校验必填字段.
func (c *AgentCard) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}
	if c.Version == "" {
		return ErrMissingVersion
	}
	if c.ID == "" {
		return ErrMissingID
	}
	ep := c.Endpoints.Message
	if !strings.HasPrefix(ep.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidEndpoint, ep.Path)
	}
	if ep.Method == "" || strings.ToUpper(ep.Method) != ep.Method {
		return fmt.Errorf("%w: method %q", ErrInvalidEndpoint, ep.Method)
	}
	if err := checkPattern(c.MessagePattern()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	return nil
}

// checkPattern 在一次性的 ServeMux 上注册 pattern，把 ServeMux 的 panic 转成错误.
func checkPattern(pattern string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	http.NewServeMux().HandleFunc(pattern, func(http.ResponseWriter, *http.Request) {})
	return nil
}

// MessagePattern returns the ServeMux pattern ("POST /api/messages") for the message route.
func (c *AgentCard) MessagePattern() string {
	return c.Endpoints.Message.Method + " " + c.Endpoints.Message.Path
}

// HasTool reports whether the card advertises the named tool.
func (c *AgentCard) HasTool(name string) bool {
	for _, t := range c.Capabilities.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate a published card.
func (c *AgentCard) Clone() *AgentCard {
	cp := *c
	cp.Capabilities.Tools = append([]string(nil), c.Capabilities.Tools...)
	if c.Metadata != nil {
		cp.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
