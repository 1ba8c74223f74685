package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/llm/tools"
)

// ToolSource 是 RegisterTools 需要的客户端能力.
type ToolSource interface {
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error)
}

// RegisterOptions 控制远程工具在本地注册表中的呈现方式.
type RegisterOptions struct {
	// Prefix 加在远程工具名前，避免与内置工具冲突.
	Prefix string
	// Source 记录在 ToolMetadata.Source 中，通常是服务器名.
	Source string
	// Timeout 单次调用上限，0 使用注册表默认值.
	Timeout time.Duration
}

// RegisterTools 把 source 暴露的每个工具注册为函数工具，返回注册后的名称.
// 工具结果是调用结果中的文本内容；isError 的结果作为工具错误返回给模型.
func RegisterTools(ctx context.Context, source ToolSource, registry tools.ToolRegistry, opts RegisterOptions, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defs, err := source.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			logger.Warn("skipping invalid MCP tool", zap.Error(err))
			continue
		}
		name := opts.Prefix + def.Name
		remote := def.Name
		meta := tools.ToolMetadata{
			Schema:      def.ToLLMToolSchema(name),
			Timeout:     opts.Timeout,
			Source:      opts.Source,
			Description: def.Description,
		}
		if err := registry.Register(name, remoteTool(source, remote), meta); err != nil {
			return names, fmt.Errorf("register MCP tool %s: %w", name, err)
		}
		names = append(names, name)
	}

	logger.Info("MCP tools registered", zap.String("source", opts.Source), zap.Strings("tools", names))
	return names, nil
}

func remoteTool(source ToolSource, name string) tools.ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in map[string]any
		if len(args) > 0 && string(args) != "null" {
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
			}
		}
		res, err := source.CallTool(ctx, name, in)
		if err != nil {
			return nil, err
		}
		text := res.Text()
		if res.IsError {
			if text == "" {
				text = "tool reported an error"
			}
			return nil, errors.New(text)
		}
		return json.Marshal(text)
	}
}
