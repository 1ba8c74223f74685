// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentflow-a2a/agent/protocol/a2a"
	"github.com/BaSui01/agentflow-a2a/types"
)

// envLoader 返回只读取给定 map 的加载器，测试不受进程环境影响.
func envLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	return l
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := envLoader(nil).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8000, cfg.Server.HTTPPort)
	assert.Equal(t, "A2AWeatherTimeAssistant", cfg.Agent.Name)
	assert.False(t, cfg.MCP.Enabled())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]
  jwt:
    secret: "s3cret"
    issuer: "agentflow"

agent:
  id: "yaml-agent-001"
  name: "yaml-agent"
  tools: ["get_time"]
  max_iterations: 20
  temperature: 0.5
  metadata:
    framework: "agentflow"
    persistent: true

llm:
  provider: openai
  deployment: gpt-4o

mcp:
  url: "http://localhost:3000/mcp"
  headers:
    Authorization: "Bearer x"

log:
  level: "debug"
  format: "console"
`)

	cfg, err := envLoader(nil).WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.True(t, cfg.Server.JWT.Enabled())
	assert.Equal(t, "agentflow", cfg.Server.JWT.Issuer)

	assert.Equal(t, "yaml-agent", cfg.Agent.Name)
	assert.Equal(t, []string{"get_time"}, cfg.Agent.Tools)
	assert.Equal(t, 20, cfg.Agent.MaxIterations)
	assert.Equal(t, 0.5, cfg.Agent.Temperature)
	assert.Equal(t, true, cfg.Agent.Metadata["persistent"])
	// 未在 YAML 中出现的字段保持默认值
	assert.Equal(t, "1.0.0", cfg.Agent.Version)

	assert.False(t, cfg.LLM.IsAzure())
	assert.Equal(t, "gpt-4o", cfg.LLM.Deployment)
	assert.True(t, cfg.MCP.Enabled())
	assert.Equal(t, "Bearer x", cfg.MCP.Headers["Authorization"])

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	cfg, err := envLoader(map[string]string{
		"A2A_SERVER_HTTP_PORT":            "7777",
		"A2A_SERVER_CORS_ALLOWED_ORIGINS": "http://a.example, http://b.example,",
		"A2A_AGENT_NAME":                  "env-agent",
		"A2A_AGENT_MAX_ITERATIONS":        "15",
		"A2A_AGENT_TEMPERATURE":           "0.9",
		"A2A_AGENT_TIMEOUT":               "45s",
		"A2A_TELEMETRY_ENABLED":           "true",
		"A2A_LOG_LEVEL":                   "warn",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "env-agent", cfg.Agent.Name)
	assert.Equal(t, 15, cfg.Agent.MaxIterations)
	assert.Equal(t, 0.9, cfg.Agent.Temperature)
	assert.Equal(t, 45*time.Second, cfg.Agent.Timeout)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	_, err := envLoader(map[string]string{"A2A_SERVER_HTTP_PORT": "eighty"}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A2A_SERVER_HTTP_PORT")
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http_port: 8888
agent:
  name: "yaml-agent"
  description: "from yaml"
`)

	cfg, err := envLoader(map[string]string{
		"A2A_SERVER_HTTP_PORT": "9999",
		"A2A_AGENT_NAME":       "env-agent",
	}).WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-agent", cfg.Agent.Name)
	assert.Equal(t, "from yaml", cfg.Agent.Description)
}

func TestLoader_AliasesOverridePrefixedEnv(t *testing.T) {
	cfg, err := envLoader(map[string]string{
		"A2A_LLM_ENDPOINT":                  "https://prefixed.openai.azure.com",
		"AZURE_OPENAI_ENDPOINT":             "https://alias.openai.azure.com",
		"AZURE_OPENAI_API_KEY":              "key",
		"AZURE_OPENAI_CHAT_DEPLOYMENT_NAME": "gpt-4o-mini",
		"AZURE_OPENAI_API_VERSION":          "2024-10-21",
		"A2A_AGENT_HOST":                    "http://localhost:8000",
		"MCP_SERVER_URL":                    "http://localhost:3000/mcp",
		"OPENAI_API_KEY":                    "ignored-in-azure-mode",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "https://alias.openai.azure.com", cfg.LLM.Endpoint)
	assert.Equal(t, "key", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Deployment)
	assert.Equal(t, "2024-10-21", cfg.LLM.APIVersion)
	assert.Equal(t, "http://localhost:8000", cfg.Client.BaseURL)
	assert.Equal(t, "http://localhost:3000/mcp", cfg.MCP.URL)
	assert.NoError(t, cfg.ValidateRuntime())
}

func TestLoader_OpenAIKeyAlias(t *testing.T) {
	cfg, err := envLoader(map[string]string{
		"A2A_LLM_PROVIDER": "openai",
		"OPENAI_API_KEY":   "sk-test",
	}).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoader_DotEnvDoesNotOverrideEnv(t *testing.T) {
	const (
		fromFile = "A2A_TEST_DOTENV_ONLY_AGENT_NAME"
		both     = "A2A_TEST_DOTENV_BOTH_AGENT_NAME"
	)
	t.Cleanup(func() {
		os.Unsetenv(fromFile)
		os.Unsetenv(both)
	})
	os.Unsetenv(fromFile)
	t.Setenv(both, "from-env")

	path := writeFile(t, ".env", fromFile+"=from-dotenv\n"+both+"=from-dotenv\n")

	cfg, err := NewLoader().WithEnvPrefix("A2A_TEST_DOTENV_ONLY").WithAliases(nil).WithDotEnv(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Agent.Name)

	cfg, err = NewLoader().WithEnvPrefix("A2A_TEST_DOTENV_BOTH").WithAliases(nil).WithDotEnv(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Agent.Name)
}

func TestLoader_MissingDotEnvIgnored(t *testing.T) {
	_, err := envLoader(nil).WithDotEnv(filepath.Join(t.TempDir(), "missing.env")).Load()
	assert.NoError(t, err)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	cfg, err := envLoader(map[string]string{
		"MYAPP_SERVER_HTTP_PORT": "6666",
		"MYAPP_AGENT_NAME":       "custom-prefix-agent",
		"A2A_AGENT_NAME":         "ignored",
	}).WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "custom-prefix-agent", cfg.Agent.Name)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	_, err := envLoader(map[string]string{"A2A_SERVER_HTTP_PORT": "80"}).
		WithValidator(validator).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	// 指定不存在的文件，使用默认值（不报错）
	cfg, err := envLoader(nil).
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server:\n  http_port: [not an int\n")
	_, err := envLoader(nil).WithConfigPath(path).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "invalid HTTP port (negative)", modify: func(c *Config) { c.Server.HTTPPort = -1 }, wantErr: true},
		{name: "invalid HTTP port (too large)", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: true},
		{name: "metrics port clash", modify: func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, wantErr: true},
		{name: "metrics disabled", modify: func(c *Config) { c.Server.MetricsPort = 0 }},
		{name: "missing agent id", modify: func(c *Config) { c.Agent.ID = "" }, wantErr: true},
		{name: "relative message path", modify: func(c *Config) { c.Agent.MessagePath = "api/messages" }, wantErr: true},
		{name: "message path on health", modify: func(c *Config) { c.Agent.MessagePath = "/health" }, wantErr: true},
		{name: "message path on root", modify: func(c *Config) { c.Agent.MessagePath = "/" }, wantErr: true},
		{name: "message path on card", modify: func(c *Config) { c.Agent.MessagePath = a2a.WellKnownPath }, wantErr: true},
		{name: "invalid max iterations", modify: func(c *Config) { c.Agent.MaxIterations = 0 }, wantErr: true},
		{name: "invalid temperature (negative)", modify: func(c *Config) { c.Agent.Temperature = -0.5 }, wantErr: true},
		{name: "invalid temperature (too high)", modify: func(c *Config) { c.Agent.Temperature = 3.0 }, wantErr: true},
		{name: "unknown provider", modify: func(c *Config) { c.LLM.Provider = "bedrock" }, wantErr: true},
		{name: "bad sample rate", modify: func(c *Config) { c.Telemetry.SampleRate = 2 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, types.IsCode(err, types.ErrConfiguration), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateRuntime(t *testing.T) {
	tests := []struct {
		name   string
		llm    LLMConfig
		wantOK bool
		want   string
	}{
		{
			name: "azure missing all",
			llm:  LLMConfig{Provider: ProviderAzure},
			want: "AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY and AZURE_OPENAI_CHAT_DEPLOYMENT_NAME must be set",
		},
		{
			name: "azure missing endpoint and key",
			llm:  LLMConfig{Provider: ProviderAzure, Deployment: "gpt-4o"},
			want: "AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_API_KEY must be set",
		},
		{
			name:   "azure complete",
			llm:    LLMConfig{Endpoint: "https://x.openai.azure.com", APIKey: "k", Deployment: "gpt-4o"},
			wantOK: true,
		},
		{
			name: "openai missing key",
			llm:  LLMConfig{Provider: ProviderOpenAI, Deployment: "gpt-4o"},
			want: "OPENAI_API_KEY must be set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LLM = tt.llm
			err := cfg.ValidateRuntime()
			if tt.wantOK {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrConfiguration))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_ValidateClient(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ValidateClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A2A_AGENT_HOST")

	cfg.Client.BaseURL = "http://localhost:8000"
	assert.NoError(t, cfg.ValidateClient())
}

func TestConfig_BuildCard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.Metadata = map[string]any{"framework": "agentflow"}

	card, err := cfg.BuildCard([]string{"get_weather", "get_time"})
	require.NoError(t, err)
	assert.Equal(t, "A2AWeatherTimeAssistant", card.Name)
	assert.Equal(t, "azure-ai-foundry-a2a-001", card.ID)
	assert.True(t, card.Capabilities.Sync)
	assert.True(t, card.Capabilities.Async)
	assert.False(t, card.Capabilities.Streaming)
	assert.Equal(t, []string{"get_weather", "get_time"}, card.Capabilities.Tools)
	assert.Equal(t, "/api/messages", card.Endpoints.Message.Path)
	assert.Equal(t, "POST", card.Endpoints.Message.Method)
	assert.Equal(t, "Azure OpenAI", card.Model.Backend)
	assert.Equal(t, "agentflow", card.Metadata["framework"])

	// 卡片持有自己的元数据副本
	cfg.Agent.Metadata["framework"] = "changed"
	assert.Equal(t, "agentflow", card.Metadata["framework"])

	card, err = cfg.BuildCard(nil)
	require.NoError(t, err)
	assert.NotNil(t, card.Capabilities.Tools)

	cfg.Agent.Name = ""
	_, err = cfg.BuildCard(nil)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestMustLoad_InvalidFile(t *testing.T) {
	path := writeFile(t, "bad.yaml", "::::")
	assert.Panics(t, func() { MustLoad(path) })
}

func TestConfig_BuildCard_RejectsUnservableMessagePath(t *testing.T) {
	for _, path := range []string{"/api/{x", "/health", "/version", "/"} {
		t.Run(path, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Agent.MessagePath = path

			card, err := cfg.BuildCard(nil)
			assert.Nil(t, card)
			assert.True(t, types.IsCode(err, types.ErrConfiguration), "got %v", err)
		})
	}
}
