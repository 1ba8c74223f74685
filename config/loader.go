// =============================================================================
// 📦 A2A Agent Host 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + .env 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithDotEnv(".env").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → A2A_* 环境变量 → 约定俗成的别名
// （AZURE_OPENAI_ENDPOINT 等）. .env 中的值只填补未设置的环境变量.
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 A2A Agent Host 与 Client 的完整配置结构
type Config struct {
	// Server HTTP 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agent 对外发布的 Agent 描述与运行参数
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// LLM 大语言模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// MCP 工具服务器配置（可选）
	MCP MCPConfig `yaml:"mcp" env:"MCP"`

	// Client A2A 客户端配置
	Client ClientConfig `yaml:"client" env:"CLIENT"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示不启动 metrics 服务器
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 对外可访问的基础 URL，仅用于日志和 root 摘要
	PublicURL string `yaml:"public_url" env:"PUBLIC_URL"`
	// TLS 证书与私钥，都设置时以 HTTPS 提供服务
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需要大于客户端的 120s 往返上限
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 运行时获取超时
	StartupTimeout time.Duration `yaml:"startup_timeout" env:"STARTUP_TIMEOUT"`
	// CORS 允许的来源，空表示允许所有
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 每个 IP 的限流速率，0 表示关闭
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// API Keys，空表示不校验
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 ?api_key= 传递
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// JWT 认证（可选）
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 认证配置. Secret 与 PublicKey 都为空时不启用.
type JWTConfig struct {
	// HMAC 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RSA 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled reports whether any verification key is configured.
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// AgentConfig 描述 Agent Card 与运行参数
type AgentConfig struct {
	// Card 字段
	ID          string `yaml:"id" env:"ID"`
	Name        string `yaml:"name" env:"NAME"`
	Description string `yaml:"description" env:"DESCRIPTION"`
	Version     string `yaml:"version" env:"VERSION"`
	// 消息端点路径
	MessagePath string `yaml:"message_path" env:"MESSAGE_PATH"`
	// Card 中 model.name / model.provider / model.backend
	ModelName     string `yaml:"model_name" env:"MODEL_NAME"`
	ModelProvider string `yaml:"model_provider" env:"MODEL_PROVIDER"`
	ModelBackend  string `yaml:"model_backend" env:"MODEL_BACKEND"`
	// 响应元数据中的 source
	Source string `yaml:"source" env:"SOURCE"`
	// Card 附加元数据，仅支持 YAML
	Metadata map[string]any `yaml:"metadata" env:"-"`

	// 系统提示词
	Instructions string `yaml:"instructions" env:"INSTRUCTIONS"`
	// 启用的内置工具
	Tools []string `yaml:"tools" env:"TOOLS"`
	// 最大迭代次数
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 单次运行超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Provider: azure, openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	// Azure OpenAI 资源端点
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Azure 部署名，也作为 OpenAI 模式下的模型名
	Deployment string `yaml:"deployment" env:"DEPLOYMENT"`
	// Azure API 版本
	APIVersion string `yaml:"api_version" env:"API_VERSION"`
	// OpenAI 兼容服务的基础 URL（可选）
	BaseURL      string `yaml:"base_url" env:"BASE_URL"`
	Organization string `yaml:"organization" env:"ORGANIZATION"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// IsAzure reports whether the Azure OpenAI backend is selected.
func (l LLMConfig) IsAzure() bool {
	return l.Provider == "" || l.Provider == ProviderAzure
}

// MCPConfig MCP 工具服务器配置. URL 为空时不启用.
type MCPConfig struct {
	URL     string        `yaml:"url" env:"URL"`
	Name    string        `yaml:"name" env:"NAME"`
	Prefix  string        `yaml:"prefix" env:"PREFIX"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 附加请求头，仅支持 YAML
	Headers map[string]string `yaml:"headers" env:"-"`
}

// Enabled reports whether an MCP server is configured.
func (m MCPConfig) Enabled() bool {
	return m.URL != ""
}

// ClientConfig A2A 客户端配置
type ClientConfig struct {
	// Agent Host 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 整个往返的超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Card 缓存时间，0 表示不缓存
	CardTTL time.Duration `yaml:"card_ttl" env:"CARD_TTL"`
	// 发送给 Host 的 API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath  string
	envPrefix   string
	dotEnvFiles []string
	aliases     []EnvAlias
	lookupEnv   func(string) (string, bool)
	validators  []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "A2A",
		aliases:    DefaultAliases(),
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithDotEnv 在读取环境变量前加载 .env 文件. 已存在的环境变量不会被覆盖，
// 文件不存在时忽略.
func (l *Loader) WithDotEnv(files ...string) *Loader {
	l.dotEnvFiles = append(l.dotEnvFiles, files...)
	return l
}

// WithAliases 替换别名表
func (l *Loader) WithAliases(aliases []EnvAlias) *Loader {
	l.aliases = aliases
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. .env 只补充未设置的变量
	if err := l.loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 4. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 5. 别名优先级最高
	l.applyAliases(cfg)

	// 6. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadDotEnv() error {
	for _, file := range l.dotEnvFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%s: %w", file, err)
		}
	}
	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔗 环境变量别名
// =============================================================================

// EnvAlias 把一个约定俗成的环境变量映射到配置字段.
type EnvAlias struct {
	Name  string
	Apply func(cfg *Config, value string)
}

// DefaultAliases 返回 Azure OpenAI / A2A 示例中使用的环境变量名.
// 同一字段的多个别名，排在后面的优先.
func DefaultAliases() []EnvAlias {
	return []EnvAlias{
		{"AZURE_AI_PROJECT_ENDPOINT", func(c *Config, v string) { c.LLM.Endpoint = v }},
		{"AZURE_AI_MODEL_DEPLOYMENT_NAME", func(c *Config, v string) { c.LLM.Deployment = v }},
		{"AZURE_OPENAI_ENDPOINT", func(c *Config, v string) { c.LLM.Endpoint = v }},
		{"AZURE_OPENAI_API_KEY", func(c *Config, v string) { c.LLM.APIKey = v }},
		{"AZURE_OPENAI_CHAT_DEPLOYMENT_NAME", func(c *Config, v string) { c.LLM.Deployment = v }},
		{"AZURE_OPENAI_API_VERSION", func(c *Config, v string) { c.LLM.APIVersion = v }},
		{"OPENAI_API_KEY", func(c *Config, v string) {
			if !c.LLM.IsAzure() {
				c.LLM.APIKey = v
			}
		}},
		{"A2A_AGENT_HOST", func(c *Config, v string) { c.Client.BaseURL = v }},
		{"MCP_SERVER_URL", func(c *Config, v string) { c.MCP.URL = v }},
	}
}

func (l *Loader) applyAliases(cfg *Config) {
	for _, a := range l.aliases {
		if v, ok := l.lookupEnv(a.Name); ok && v != "" {
			a.Apply(cfg, v)
		}
	}
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}
