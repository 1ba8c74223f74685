// =============================================================================
// A2A Agent Host 主入口
// =============================================================================
// 启动 HTTP 服务：Agent Card 发现、消息交换、健康检查、Prometheus 指标
//
// 使用方法:
//
//	a2a-server serve                       # 启动服务
//	a2a-server serve --config config.yaml  # 指定配置文件
//	a2a-server card                        # 打印将要发布的 Agent Card
//	a2a-server version                     # 显示版本信息
//	a2a-server health                      # 健康检查
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentflow-a2a/config"
	"github.com/BaSui01/agentflow-a2a/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "a2a-server",
		Usage:   "A2A Agent Host: publishes an Agent Card and answers agent messages",
		Version: Version,
		Commands: []*cli.Command{
			serveCommand(),
			cardCommand(),
			healthCommand(),
			versionCommand(),
		},
	}
}

// configFlags 是 serve 与 card 共用的配置参数
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to config file (YAML)",
			EnvVars: []string{"A2A_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Value: ".env",
			Usage: "Dotenv file loaded before environment variables (missing file is ignored)",
		},
	}
}

// loadConfig 按 默认值 → YAML → .env → 环境变量 的顺序加载并验证配置
func loadConfig(c *cli.Context) (*config.Config, error) {
	loader := config.NewLoader()
	if path := c.String("config"); path != "" {
		loader = loader.WithConfigPath(path)
	}
	if envFile := c.String("env-file"); envFile != "" {
		loader = loader.WithDotEnv(envFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the A2A Agent Host",
		Flags: append(configFlags(),
			&cli.IntFlag{
				Name:  "port",
				Usage: "Override server.http_port",
			},
		),
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.HTTPPort = port
	}

	// 运行时所需设置缺失时在监听之前失败
	if err := cfg.ValidateRuntime(); err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting A2A Agent Host",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("agent", cfg.Agent.Name),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Start(c.Context); err != nil {
		srv.Shutdown()
		return err
	}

	if err := srv.WaitForShutdown(c.Context); err != nil {
		logger.Error("A2A Agent Host exited with error", zap.Error(err))
		return err
	}

	logger.Info("A2A Agent Host stopped")
	return nil
}

// =============================================================================
// 🪪 card 命令
// =============================================================================

func cardCommand() *cli.Command {
	return &cli.Command{
		Name:   "card",
		Usage:  "Print the Agent Card the server would publish",
		Flags:  configFlags(),
		Action: runCard,
	}
}

func runCard(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// 与 serve 相同的工具注册流程，MCP 已配置时会连接服务器读取工具列表
	srv := NewServer(cfg, zap.NewNop(), nil)
	if err := srv.initTools(c.Context); err != nil {
		return err
	}
	if srv.mcpClient != nil {
		defer func() { _ = srv.mcpClient.Close(context.Background()) }()
	}

	card, err := cfg.BuildCard(srv.toolRegistry.Names())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(card)
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check a running server's health endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "http://localhost:8000",
				Usage: "Server address",
			},
			&cli.BoolFlag{
				Name:  "ready",
				Usage: "Require the agent runtime to be initialized (/ready)",
			},
		},
		Action: runHealthCheck,
	}
}

func runHealthCheck(c *cli.Context) error {
	path := "/health"
	if c.Bool("ready") {
		path = "/ready"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(c.String("addr") + path)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Fprintln(c.App.Writer, "OK")
	return nil
}

// =============================================================================
// 📋 版本
// =============================================================================

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "a2a-server %s\n", Version)
			fmt.Fprintf(c.App.Writer, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(c.App.Writer, "  Git Commit: %s\n", GitCommit)
			return nil
		},
	}
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
