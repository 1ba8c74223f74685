package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/llm"
	"github.com/BaSui01/agentflow-a2a/llm/tools"
	"github.com/BaSui01/agentflow-a2a/types"
)

// ChatConfig 配置 ChatAgent.
type ChatConfig struct {
	ID            string
	Name          string
	Instructions  string // 系统提示词
	Model         string
	MaxTokens     int
	Temperature   float32
	MaxIterations int           // ReAct 最大轮数，0 使用默认值
	Timeout       time.Duration // 单次 Run 的上限，0 表示不限制
}

// ChatAgent 是基于 llm.Provider 和函数工具的默认 Runtime.
type ChatAgent struct {
	config   ChatConfig
	provider llm.Provider
	registry tools.ToolRegistry
	react    *tools.ReActExecutor
	logger   *zap.Logger

	closeMu sync.Mutex
	closers []func(context.Context) error
}

var (
	_ Runtime    = (*ChatAgent)(nil)
	_ Closer     = (*ChatAgent)(nil)
	_ Identified = (*ChatAgent)(nil)
)

// NewChatAgent 创建 ChatAgent. registry 可以为 nil，此时模型看不到任何工具.
func NewChatAgent(config ChatConfig, provider llm.Provider, registry tools.ToolRegistry, executor tools.ToolExecutor, logger *zap.Logger) (*ChatAgent, error) {
	if provider == nil {
		return nil, ErrProviderNotSet
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = tools.NewDefaultRegistry(logger)
	}
	if executor == nil {
		executor = tools.NewDefaultExecutor(registry, logger)
	}
	logger = logger.With(zap.String("component", "chat_agent"), zap.String("agent_id", config.ID))

	return &ChatAgent{
		config:   config,
		provider: provider,
		registry: registry,
		react:    tools.NewReActExecutor(provider, executor, tools.ReActConfig{MaxIterations: config.MaxIterations}, logger),
		logger:   logger,
	}, nil
}

func (a *ChatAgent) ID() string   { return a.config.ID }
func (a *ChatAgent) Name() string { return a.config.Name }

// OnClose 注册一个在 Close 时执行的清理函数，按注册的逆序执行.
func (a *ChatAgent) OnClose(fn func(context.Context) error) {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	a.closers = append(a.closers, fn)
}

// Run 把 [system, user] 交给 ReAct 循环，返回模型的最终回答.
func (a *ChatAgent) Run(ctx context.Context, text string) (*RunResult, error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	messages := make([]llm.Message, 0, 2)
	if a.config.Instructions != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.config.Instructions})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	req := &llm.ChatRequest{
		Model:       a.config.Model,
		Messages:    messages,
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
		Tools:       a.registry.List(),
	}
	if id, ok := types.TraceID(ctx); ok {
		req.TraceID = id
	} else if id, ok := types.RequestID(ctx); ok {
		req.TraceID = id
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}

	start := time.Now()
	resp, steps, err := a.react.Execute(ctx, req)
	if err != nil {
		a.logger.Error("agent run failed", zap.Error(err), zap.Int("steps", len(steps)))
		return nil, types.NewError(types.ErrRuntimeFailure, "agent run failed").WithCause(err)
	}

	result := &RunResult{
		Text:  resp.FirstContent(),
		Model: resp.Model,
		Usage: resp.Usage,
	}
	for _, step := range steps {
		for _, call := range step.Actions {
			result.ToolCalls = append(result.ToolCalls, call.Name)
		}
	}

	a.logger.Info("agent run completed",
		zap.String("model", result.Model),
		zap.Int("steps", len(steps)),
		zap.Strings("tools", result.ToolCalls),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// Close 执行所有清理函数并汇总错误.
func (a *ChatAgent) Close(ctx context.Context) error {
	a.closeMu.Lock()
	closers := a.closers
	a.closers = nil
	a.closeMu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close chat agent: %w", errors.Join(errs...))
	}
	return nil
}
