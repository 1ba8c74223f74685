package agent

import (
	"context"

	"github.com/BaSui01/agentflow-a2a/llm"
)

// RunResult 是一次运行时调用的结果.
type RunResult struct {
	Text      string        `json:"text"`
	Model     string        `json:"model,omitempty"`
	ToolCalls []string      `json:"tool_calls,omitempty"`
	Usage     llm.ChatUsage `json:"usage"`
}

// Runtime 是 Host 调用的不透明 Agent 运行时.
type Runtime interface {
	Run(ctx context.Context, text string) (*RunResult, error)
}

// Closer 由需要显式释放资源的运行时实现（如 MCP 会话）.
type Closer interface {
	Close(ctx context.Context) error
}

// Identified 由能报告后端身份的运行时实现. 未实现时 Host 使用 AgentCard 的 id 和 name.
type Identified interface {
	ID() string
	Name() string
}

// Factory 构建运行时. Host.Acquire 只调用一次.
type Factory func(ctx context.Context) (Runtime, error)

// RuntimeFunc 把普通函数适配为 Runtime.
type RuntimeFunc func(ctx context.Context, text string) (*RunResult, error)

// Run implements Runtime.
func (f RuntimeFunc) Run(ctx context.Context, text string) (*RunResult, error) {
	return f(ctx, text)
}
