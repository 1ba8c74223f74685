// =============================================================================
// 📦 A2A Agent Host 默认配置
// =============================================================================
// 默认值复现天气/时间示例 Agent：端口 8000，消息端点 /api/messages
// =============================================================================
package config

import "time"

// LLM provider 名称
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Agent:     DefaultAgentConfig(),
		LLM:       DefaultLLMConfig(),
		MCP:       DefaultMCPConfig(),
		Client:    DefaultClientConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    150 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		StartupTimeout:  2 * time.Minute,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultAgentConfig 返回默认 Agent 配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ID:            "azure-ai-foundry-a2a-001",
		Name:          "A2AWeatherTimeAssistant",
		Description:   "Azure AI Foundry persistent agent that provides weather and time information via A2A protocol",
		Version:       "1.0.0",
		MessagePath:   "/api/messages",
		ModelName:     "Azure AI Agent",
		ModelProvider: "Azure AI Foundry",
		ModelBackend:  "Azure OpenAI",
		Source:        "Azure AI Foundry",
		Instructions:  "You are a helpful assistant that can provide weather and time information via A2A protocol.",
		Tools:         []string{"get_weather", "get_time"},
		MaxIterations: 10,
		Temperature:   0.7,
		MaxTokens:     4096,
		Timeout:       2 * time.Minute,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:   ProviderAzure,
		APIVersion: "2024-05-01-preview",
		Timeout:    2 * time.Minute,
	}
}

// DefaultMCPConfig 返回默认 MCP 配置（未启用）
func DefaultMCPConfig() MCPConfig {
	return MCPConfig{
		Name:    "mcp",
		Timeout: 30 * time.Second,
	}
}

// DefaultClientConfig 返回默认客户端配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout: 120 * time.Second,
		CardTTL: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentflow-a2a",
		SampleRate:   0.1,
	}
}
