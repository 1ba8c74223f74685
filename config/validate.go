package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/BaSui01/agentflow-a2a/agent/protocol/a2a"
	"github.com/BaSui01/agentflow-a2a/types"
)

// PublicPaths 是发现与健康检查端点，认证中间件总是放行，不能用作消息端点.
var PublicPaths = []string{a2a.WellKnownPath, "/health", "/ready", "/version", "/"}

// checkMessagePath 拒绝相对路径与公开端点.
func checkMessagePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("agent message_path %q must start with /", path)
	}
	if slices.Contains(PublicPaths, path) {
		return fmt.Errorf("agent message_path %q collides with a public endpoint", path)
	}
	return nil
}

// Validate 验证配置取值范围
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, "rate limit must not be negative")
	}

	// 验证 Agent 配置
	if c.Agent.ID == "" || c.Agent.Name == "" || c.Agent.Version == "" {
		errs = append(errs, "agent id, name and version are required")
	}
	if err := checkMessagePath(c.Agent.MessagePath); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, "max_iterations must be positive")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}

	// 验证 LLM 配置
	switch c.LLM.Provider {
	case "", ProviderAzure, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Sprintf("unknown llm provider %q", c.LLM.Provider))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrConfiguration, "config validation errors: "+strings.Join(errs, "; "))
	}

	return nil
}

// ValidateRuntime 检查构建运行时所需的设置，错误信息列出所有缺失项的环境变量名.
func (c *Config) ValidateRuntime() error {
	var missing []string
	if c.LLM.IsAzure() {
		if c.LLM.Endpoint == "" {
			missing = append(missing, "AZURE_OPENAI_ENDPOINT")
		}
		if c.LLM.APIKey == "" {
			missing = append(missing, "AZURE_OPENAI_API_KEY")
		}
		if c.LLM.Deployment == "" {
			missing = append(missing, "AZURE_OPENAI_CHAT_DEPLOYMENT_NAME")
		}
	} else {
		if c.LLM.APIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if c.LLM.Deployment == "" {
			missing = append(missing, "A2A_LLM_DEPLOYMENT")
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return types.NewError(types.ErrConfiguration, joinNames(missing)+" must be set")
}

// ValidateClient 检查客户端所需的设置.
func (c *Config) ValidateClient() error {
	if c.Client.BaseURL == "" {
		return types.NewError(types.ErrConfiguration,
			"A2A_AGENT_HOST must be set (e.g. http://localhost:8000) or passed with --host")
	}
	return nil
}

// joinNames 把 [a b c] 拼成 "a, b and c".
func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
