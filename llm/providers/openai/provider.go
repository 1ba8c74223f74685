package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/internal/tlsutil"
	"github.com/BaSui01/agentflow-a2a/llm"
)

// DefaultAzureAPIVersion 是 Azure OpenAI 的默认 api-version.
const DefaultAzureAPIVersion = "2024-05-01-preview"

// ChatClient 是适配器所用的 go-openai 客户端子集，便于测试替换.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Config 配置 OpenAI / Azure OpenAI 后端.
// Endpoint 非空时使用 Azure 模式，Model 即部署名.
type Config struct {
	APIKey       string
	Endpoint     string // Azure 资源地址，如 https://my-resource.openai.azure.com/
	APIVersion   string // 仅 Azure
	BaseURL      string // 仅 OpenAI，可指向兼容网关
	Organization string // 仅 OpenAI
	Model        string
	Timeout      time.Duration
}

// IsAzure reports whether the config selects Azure OpenAI.
func (c Config) IsAzure() bool { return c.Endpoint != "" }

// Provider 以 go-openai 实现 llm.Provider.
type Provider struct {
	chat   ChatClient
	model  string
	name   string
	logger *zap.Logger
}

var _ llm.Provider = (*Provider)(nil)

// New 根据配置创建 Provider.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model or deployment name is required")
	}

	httpClient := tlsutil.SecureHTTPClient(cfg.Timeout)

	var (
		clientCfg goopenai.ClientConfig
		name      string
	)
	if cfg.IsAzure() {
		clientCfg = goopenai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		clientCfg.APIVersion = cfg.APIVersion
		if clientCfg.APIVersion == "" {
			clientCfg.APIVersion = DefaultAzureAPIVersion
		}
		deployment := cfg.Model
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
		name = "azure-openai"
	} else {
		clientCfg = goopenai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		clientCfg.OrgID = cfg.Organization
		name = "openai"
	}
	clientCfg.HTTPClient = httpClient

	return NewWithClient(goopenai.NewClientWithConfig(clientCfg), cfg.Model, name, logger), nil
}

// NewWithClient wraps an existing chat client.
func NewWithClient(chat ChatClient, model, name string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = "openai"
	}
	return &Provider{
		chat:   chat,
		model:  model,
		name:   name,
		logger: logger.With(zap.String("component", "llm"), zap.String("provider", name)),
	}
}

// Name 返回 Provider 标识（openai 或 azure-openai）.
func (p *Provider) Name() string { return p.name }

// Model returns the default model or deployment.
func (p *Provider) Model() string { return p.model }

// Completion 发起一次 Chat Completions 调用.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	model := req.Model
	if model == "" {
		model = p.model
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	request := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    encodeMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Tools:       encodeTools(req.Tools),
	}
	switch req.ToolChoice {
	case "", "auto":
	case "none":
		request.ToolChoice = "none"
	default:
		request.ToolChoice = goopenai.ToolChoice{
			Type:     goopenai.ToolTypeFunction,
			Function: goopenai.ToolFunction{Name: req.ToolChoice},
		}
	}

	start := time.Now()
	resp, err := p.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		p.logger.Warn("chat completion failed",
			zap.String("model", model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%s chat completion: %w", p.name, err)
	}

	p.logger.Debug("chat completion",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)))

	return p.translateResponse(resp), nil
}

func encodeMessages(msgs []llm.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		msg := goopenai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role != llm.RoleTool {
			msg.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			args := string(tc.Arguments)
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func encodeTools(schemas []llm.ToolSchema) []goopenai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	tools := make([]goopenai.Tool, 0, len(schemas))
	for _, s := range schemas {
		var params any = json.RawMessage(`{"type":"object","properties":{}}`)
		if len(s.Parameters) > 0 {
			params = s.Parameters
		}
		tools = append(tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func (p *Provider) translateResponse(resp goopenai.ChatCompletionResponse) *llm.ChatResponse {
	out := &llm.ChatResponse{
		ID:       resp.ID,
		Provider: p.name,
		Model:    resp.Model,
		Choices:  make([]llm.ChatChoice, 0, len(resp.Choices)),
		Usage: llm.ChatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if resp.Created > 0 {
		out.CreatedAt = time.Unix(resp.Created, 0).UTC()
	}
	for _, choice := range resp.Choices {
		msg := llm.Message{
			Role:    llm.Role(choice.Message.Role),
			Content: choice.Message.Content,
		}
		if msg.Role == "" {
			msg.Role = llm.RoleAssistant
		}
		for _, call := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: parseToolArguments(call.Function.Arguments),
			})
		}
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        choice.Index,
			FinishReason: string(choice.FinishReason),
			Message:      msg,
		})
	}
	return out
}

// parseToolArguments keeps valid JSON as is and wraps anything else.
func parseToolArguments(raw string) json.RawMessage {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": raw})
	return wrapped
}
