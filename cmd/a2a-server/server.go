package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/agent"
	"github.com/BaSui01/agentflow-a2a/agent/protocol/a2a"
	"github.com/BaSui01/agentflow-a2a/agent/protocol/mcp"
	"github.com/BaSui01/agentflow-a2a/api/handlers"
	"github.com/BaSui01/agentflow-a2a/config"
	"github.com/BaSui01/agentflow-a2a/internal/metrics"
	"github.com/BaSui01/agentflow-a2a/internal/server"
	"github.com/BaSui01/agentflow-a2a/internal/telemetry"
	"github.com/BaSui01/agentflow-a2a/llm"
	"github.com/BaSui01/agentflow-a2a/llm/providers/openai"
	"github.com/BaSui01/agentflow-a2a/llm/tools"
)

// metricsNamespace 是所有 Prometheus 指标的命名空间
const metricsNamespace = "a2a"

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装 Agent Host：工具注册表、AgentCard、HTTP 与 Metrics 服务器，
// 并在后台获取 agent 运行时.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// newRuntime 构建运行时，默认使用 buildRuntime；测试可替换
	newRuntime agent.Factory

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	host          *agent.Host
	card          *a2a.AgentCard
	toolRegistry  *tools.DefaultRegistry
	mcpClient     *mcp.HTTPClient
	healthHandler *handlers.HealthHandler
	a2aHandler    *handlers.A2AHandler

	// 指标
	registry         *prometheus.Registry
	metricsCollector *metrics.Collector

	// 后台任务生命周期
	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}
	s.newRuntime = s.buildRuntime
	return s
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务. 返回时 HTTP 服务器已在 Initializing 状态下监听，
// 运行时在后台获取；获取失败会让 WaitForShutdown 返回错误.
func (s *Server) Start(ctx context.Context) error {
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())

	// 1. 指标收集器（独立 registry，避免重复注册）
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metricsCollector = metrics.NewCollector(metricsNamespace, s.registry, s.logger)

	// 2. 工具：内置工具 + MCP 远程工具
	if err := s.initTools(ctx); err != nil {
		return fmt.Errorf("failed to init tools: %w", err)
	}

	// 3. AgentCard 与 Host
	if err := s.initHost(); err != nil {
		return fmt.Errorf("failed to init agent host: %w", err)
	}

	// 4. Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 7. 后台获取运行时
	s.wg.Add(1)
	go s.acquireRuntime()

	s.logger.Info("All servers started",
		zap.String("addr", s.httpManager.Addr()),
		zap.String("public_url", s.cfg.Server.PublicURL),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("agent_card", a2a.WellKnownPath),
		zap.String("messages", s.card.MessagePattern()),
		zap.Strings("tools", s.card.Capabilities.Tools),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initTools 注册内置工具，并在配置了 MCP 时连接服务器注册远程工具.
// 远程工具名需要出现在 AgentCard 中，所以这一步在开始监听之前完成.
func (s *Server) initTools(ctx context.Context) error {
	s.toolRegistry = tools.NewDefaultRegistry(s.logger)
	if err := tools.NewBuiltins().Register(s.toolRegistry, s.cfg.Agent.Tools); err != nil {
		return err
	}

	mc := s.cfg.MCP
	if !mc.Enabled() {
		return nil
	}

	s.mcpClient = mcp.NewHTTPClient(mcp.ClientConfig{
		URL:           mc.URL,
		Timeout:       mc.Timeout,
		Headers:       mc.Headers,
		ClientName:    s.cfg.Agent.ID,
		ClientVersion: s.cfg.Agent.Version,
	}, s.logger)

	connectCtx, cancel := context.WithTimeout(ctx, mc.Timeout)
	defer cancel()
	if err := s.mcpClient.Connect(connectCtx); err != nil {
		return fmt.Errorf("connect MCP server %s: %w", mc.URL, err)
	}
	if _, err := mcp.RegisterTools(connectCtx, s.mcpClient, s.toolRegistry, mcp.RegisterOptions{
		Prefix:  mc.Prefix,
		Source:  mc.Name,
		Timeout: mc.Timeout,
	}, s.logger); err != nil {
		_ = s.mcpClient.Close(context.Background())
		return fmt.Errorf("register MCP tools: %w", err)
	}
	return nil
}

// initHost 构建 AgentCard 并创建处于 Initializing 状态的 Host
func (s *Server) initHost() error {
	card, err := s.cfg.BuildCard(s.toolRegistry.Names())
	if err != nil {
		return err
	}
	s.card = card

	collector := s.metricsCollector
	s.host, err = agent.NewHost(card, agent.HostConfig{
		Source: s.cfg.Agent.Source,
		Hooks: agent.HostHooks{
			OnStateChange: func(st agent.State) {
				collector.RecordStateChange(string(st), st == agent.StateReady)
			},
			OnExchange: collector.RecordExchange,
		},
	}, s.logger)
	return err
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.host, s.logger)
	if s.mcpClient != nil {
		client := s.mcpClient
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("mcp", func(context.Context) error {
			if !client.IsConnected() {
				return mcp.ErrNotConnected
			}
			return nil
		}))
	}

	var err error
	s.a2aHandler, err = handlers.NewA2AHandler(s.host, s.cfg.Agent.Name+" A2A Server", s.logger)
	if err != nil {
		return err
	}

	s.logger.Info("Handlers initialized")
	return nil
}

// =============================================================================
// 🤖 运行时获取
// =============================================================================

// acquireRuntime 在后台获取运行时，失败时通知 httpManager 以非零状态退出.
func (s *Server) acquireRuntime() {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.bgCtx, s.cfg.Server.StartupTimeout)
	defer cancel()

	if err := s.host.Acquire(ctx, s.newRuntime); err != nil {
		if errors.Is(s.bgCtx.Err(), context.Canceled) {
			return
		}
		s.httpManager.Fail(fmt.Errorf("agent runtime acquisition failed: %w", err))
		return
	}
	id, name := s.host.Identity()
	s.logger.Info("Agent ready", zap.String("agent_id", id), zap.String("agent_name", name))
}

// buildRuntime 是默认的运行时工厂：LLM Provider + 工具执行器 + ChatAgent.
func (s *Server) buildRuntime(_ context.Context) (agent.Runtime, error) {
	lc := s.cfg.LLM
	pcfg := openai.Config{
		APIKey:       lc.APIKey,
		APIVersion:   lc.APIVersion,
		BaseURL:      lc.BaseURL,
		Organization: lc.Organization,
		Model:        lc.Deployment,
		Timeout:      lc.Timeout,
	}
	if lc.IsAzure() {
		pcfg.Endpoint = lc.Endpoint
	}
	provider, err := openai.New(pcfg, s.logger)
	if err != nil {
		return nil, err
	}

	executor := tools.NewDefaultExecutor(s.toolRegistry, s.logger)
	executor.SetObserver(s.metricsCollector.RecordToolCall)

	ac := s.cfg.Agent
	chat, err := agent.NewChatAgent(agent.ChatConfig{
		ID:            ac.ID,
		Name:          ac.Name,
		Instructions:  ac.Instructions,
		Model:         lc.Deployment,
		MaxTokens:     ac.MaxTokens,
		Temperature:   float32(ac.Temperature),
		MaxIterations: ac.MaxIterations,
		Timeout:       ac.Timeout,
	}, newMeteredProvider(provider, s.metricsCollector), s.toolRegistry, executor, s.logger)
	if err != nil {
		return nil, err
	}
	if s.mcpClient != nil {
		chat.OnClose(s.mcpClient.Close)
	}
	return chat, nil
}

// meteredProvider 为每次 LLM 调用记录 Prometheus 指标
type meteredProvider struct {
	llm.Provider
	collector *metrics.Collector
}

func newMeteredProvider(p llm.Provider, c *metrics.Collector) llm.Provider {
	return &meteredProvider{Provider: p, collector: c}
}

func (p *meteredProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.Provider.Completion(ctx, req)

	status, model := "success", req.Model
	var usage llm.ChatUsage
	if err != nil {
		status = "error"
	} else {
		usage = resp.Usage
		if resp.Model != "" {
			model = resp.Model
		}
	}
	p.collector.RecordLLMRequest(p.Name(), model, status, time.Since(start), usage.PromptTokens, usage.CompletionTokens)
	return resp, err
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有业务路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// A2A：Card、消息（路由取自 Card）、根路径
	s.a2aHandler.Register(mux)

	// 健康检查与版本
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	return mux
}

// handler 构建中间件链
func (s *Server) handler() http.Handler {
	sc := s.cfg.Server
	knownPaths := append([]string{s.card.Endpoints.Message.Path}, publicPaths...)

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector, knownPaths),
		CORS(sc.CORSAllowedOrigins),
	}
	if sc.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(s.bgCtx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger))
	}
	if len(sc.APIKeys) > 0 {
		chain = append(chain, APIKeyAuth(sc.APIKeys, publicPaths, sc.AllowQueryAPIKey, s.logger))
	}
	if sc.JWT.Enabled() {
		chain = append(chain, JWTAuth(sc.JWT, publicPaths, s.logger))
	}
	return Chain(s.routes(), chain...)
}

// startHTTPServer 启动 HTTP(S) 服务器
func (s *Server) startHTTPServer() error {
	sc := s.cfg.Server
	s.httpManager = server.NewManager(s.handler(), server.Config{
		Addr:            fmt.Sprintf(":%d", sc.HTTPPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)

	if sc.TLSCertFile != "" {
		return s.httpManager.StartTLS(sc.TLSCertFile, sc.TLSKeyFile)
	}
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器，端口为 0 时跳过
func (s *Server) startMetricsServer() error {
	sc := s.cfg.Server
	if sc.MetricsPort == 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", sc.MetricsPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.ReadTimeout,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("Metrics server started", zap.Int("port", sc.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待信号、ctx 结束或致命错误（例如运行时获取失败），然后优雅关闭.
// 返回导致退出的致命错误.
func (s *Server) WaitForShutdown(ctx context.Context) error {
	var cause error
	if s.httpManager != nil {
		cause = s.httpManager.WaitForShutdown(ctx)
	}
	s.Shutdown()
	return cause
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		s.logger.Info("Starting graceful shutdown...")
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()

		// 1. 停止后台任务（运行时获取、限流清理）
		if s.bgCancel != nil {
			s.bgCancel()
		}

		// 2. 关闭 HTTP 服务器
		if s.httpManager != nil {
			if err := s.httpManager.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP server shutdown error", zap.Error(err))
			}
		}

		// 3. 关闭 Metrics 服务器
		if s.metricsManager != nil {
			if err := s.metricsManager.Shutdown(ctx); err != nil {
				s.logger.Error("Metrics server shutdown error", zap.Error(err))
			}
		}

		// 4. 等待后台 goroutine 完成
		s.wg.Wait()

		// 5. 释放运行时；MCP 会话的 Close 是幂等的，运行时未关闭时由这里兜底
		if s.host != nil && s.host.Ready() {
			if err := s.host.Release(ctx); err != nil {
				s.logger.Error("Agent runtime release error", zap.Error(err))
			}
		}
		if s.mcpClient != nil {
			if err := s.mcpClient.Close(ctx); err != nil {
				s.logger.Warn("MCP session close error", zap.Error(err))
			}
		}

		// 6. 刷新遥测数据
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}

		s.logger.Info("Graceful shutdown completed")
	})
}

func (s *Server) shutdownTimeout() time.Duration {
	if d := s.cfg.Server.ShutdownTimeout; d > 0 {
		return d
	}
	return 30 * time.Second
}

// Addr 返回 HTTP 服务器的实际监听地址
func (s *Server) Addr() string {
	if s.httpManager == nil {
		return ""
	}
	return s.httpManager.Addr()
}
