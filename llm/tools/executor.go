package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentflow-a2a/llm"
)

// DefaultToolTimeout 是未显式配置时单个工具的执行上限.
const DefaultToolTimeout = 30 * time.Second

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema      llm.ToolSchema   // Tool JSON Schema
	RateLimit   *RateLimitConfig // Rate limit config (optional)
	Timeout     time.Duration    // Execution timeout (default 30s)
	Source      string           // "builtin" or the MCP server name
	Description string           // Detailed description
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls
	Window   time.Duration // Time window
}

// ToolResult represents tool execution result.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// ToolRegistry defines tool registry interface.
type ToolRegistry interface {
	Register(name string, fn ToolFunc, metadata ToolMetadata) error
	Unregister(name string) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []llm.ToolSchema
	Has(name string) bool
}

// ToolExecutor defines tool executor interface.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult
	ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult
}

// Observer receives one notification per finished tool call.
// status is one of "success", "error", "timeout", "not_found" or "rate_limited".
type Observer func(tool, status string, duration time.Duration)

// ====== 实现：DefaultRegistry ======

type DefaultRegistry struct {
	mu         sync.RWMutex
	tools      map[string]ToolFunc
	metadata   map[string]ToolMetadata
	rateLimits map[string]*rate.Limiter // 工具级别的速率限制器
	logger     *zap.Logger
}

// NewDefaultRegistry 创建默认的工具注册中心。
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:      make(map[string]ToolFunc),
		metadata:   make(map[string]ToolMetadata),
		rateLimits: make(map[string]*rate.Limiter),
		logger:     logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *DefaultRegistry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return fmt.Errorf("tool %s has no function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	// 校验 Schema
	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if len(metadata.Schema.Parameters) == 0 {
		metadata.Schema.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}

	// 设置默认超时
	if metadata.Timeout == 0 {
		metadata.Timeout = DefaultToolTimeout
	}

	r.tools[name] = fn
	r.metadata[name] = metadata

	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		r.rateLimits[name] = rate.NewLimiter(rate.Limit(float64(rl.MaxCalls)/rl.Window.Seconds()), rl.MaxCalls)
	}

	r.logger.Info("tool registered",
		zap.String("name", name),
		zap.String("source", metadata.Source),
		zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}

	delete(r.tools, name)
	delete(r.metadata, name)
	delete(r.rateLimits, name)

	r.logger.Info("tool unregistered", zap.String("name", name))
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, fmt.Errorf("tool %s not found", name)
	}
	return fn, r.metadata[name], nil
}

// List returns schemas sorted by name so requests to the model are stable.
func (r *DefaultRegistry) List() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Names returns the registered tool names in sorted order.
func (r *DefaultRegistry) Names() []string {
	schemas := r.List()
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	return names
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// allow 检查是否触发速率限制
func (r *DefaultRegistry) allow(name string) bool {
	r.mu.RLock()
	limiter, ok := r.rateLimits[name]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return limiter.Allow()
}

// ====== 实现：DefaultExecutor ======

type DefaultExecutor struct {
	registry       ToolRegistry
	logger         *zap.Logger
	observe        Observer
	maxConcurrency int
}

// NewDefaultExecutor 创建默认的工具执行器。
func NewDefaultExecutor(registry ToolRegistry, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry:       registry,
		logger:         logger.With(zap.String("component", "tool_executor")),
		maxConcurrency: 8,
	}
}

// SetObserver installs a per-call callback, typically a metrics recorder.
func (e *DefaultExecutor) SetObserver(o Observer) {
	e.observe = o
}

// Execute 并发执行所有工具调用. 单个调用失败只写入其结果，不影响其他调用.
func (e *DefaultExecutor) Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	var g errgroup.Group
	g.SetLimit(e.maxConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult {
	start := time.Now()
	result := ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}
	finish := func(status string) ToolResult {
		result.Duration = time.Since(start)
		if e.observe != nil {
			e.observe(call.Name, status, result.Duration)
		}
		return result
	}

	// 1. 获取工具函数和元数据
	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		result.Error = fmt.Sprintf("tool not found: %s", err.Error())
		e.logger.Error("tool not found", zap.String("name", call.Name), zap.Error(err))
		return finish("not_found")
	}

	// 2. 检查速率限制（如果注册表支持）
	if reg, ok := e.registry.(*DefaultRegistry); ok && !reg.allow(call.Name) {
		result.Error = "rate limit exceeded"
		e.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
		return finish("rate_limited")
	}

	// 3. 参数校验（简单校验：确保是有效 JSON）
	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		result.Error = "invalid arguments: not valid JSON"
		e.logger.Error("invalid tool arguments", zap.String("name", call.Name))
		return finish("error")
	}

	// 4. 执行工具（带超时控制）
	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	// 带缓冲的 channel，超时后 goroutine 也能退出
	type outcome struct {
		res json.RawMessage
		err error
	}
	doneChan := make(chan outcome, 1)
	go func() {
		res, err := fn(execCtx, call.Arguments)
		doneChan <- outcome{res, err}
	}()

	select {
	case done := <-doneChan:
		if done.err != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return e.timedOut(&result, meta.Timeout, finish)
		}
		if done.err != nil {
			result.Error = done.err.Error()
			e.logger.Error("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(done.err),
				zap.Duration("duration", time.Since(start)))
			return finish("error")
		}
		result.Result = done.res
		e.logger.Info("tool executed successfully",
			zap.String("name", call.Name),
			zap.Duration("duration", time.Since(start)))
		return finish("success")

	case <-execCtx.Done():
		return e.timedOut(&result, meta.Timeout, finish)
	}
}

func (e *DefaultExecutor) timedOut(result *ToolResult, timeout time.Duration, finish func(string) ToolResult) ToolResult {
	result.Error = fmt.Sprintf("execution timeout after %s", timeout)
	e.logger.Error("tool execution timeout",
		zap.String("name", result.Name),
		zap.Duration("timeout", timeout))
	return finish("timeout")
}
