// =============================================================================
// A2A Agent Client 主入口
// =============================================================================
// 发现远程 Agent Host 并通过 A2A 消息端点与之对话
//
// 使用方法:
//
//	export A2A_AGENT_HOST=http://localhost:8000
//	a2a-client discover                       # 打印 Agent Card
//	a2a-client send "What time is it?"       # 发送一条消息
//	a2a-client demo                           # 运行四个示例查询
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/agent/protocol/a2a"
	"github.com/BaSui01/agentflow-a2a/config"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// demoQueries 覆盖天气工具、时间工具、组合调用与普通对话
var demoQueries = []struct {
	title string
	text  string
}{
	{"Testing weather function tool", "What's the weather like in Seattle?"},
	{"Testing time function tool", "What's the current UTC time?"},
	{"Testing multiple function tools", "What's the weather in London and what's the current UTC time?"},
	{"Testing general conversation", "Tell me a joke about programming"},
}

const rule = "----------------------------------------------------------------------"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "a2a-client",
		Usage:   "Discover an A2A Agent Host and exchange messages with it",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Agent Host base URL, e.g. http://localhost:8000",
				EnvVars: []string{"A2A_AGENT_HOST"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key sent as X-API-Key",
				EnvVars: []string{"A2A_CLIENT_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token sent in the Authorization header",
				EnvVars: []string{"A2A_CLIENT_TOKEN"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Upper bound for each round trip (default from config, 2m)",
			},
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
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Write debug logs to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "discover",
				Usage:  "Fetch and print the Agent Card",
				Action: runDiscover,
			},
			{
				Name:      "send",
				Usage:     "Send one message and print the reply",
				ArgsUsage: "<query>",
				Action:    runSend,
			},
			{
				Name:   "demo",
				Usage:  "Discover the agent and run the sample queries",
				Action: runDemo,
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "a2a-client %s (%s, %s)\n", Version, GitCommit, BuildTime)
					return nil
				},
			},
		},
	}
}

// =============================================================================
// 🔧 会话初始化
// =============================================================================

// session 是一次命令调用所需的客户端与目标地址
type session struct {
	client  *a2a.HTTPClient
	baseURL string
	out     io.Writer
	logger  *zap.Logger
}

func newSession(c *cli.Context) (*session, error) {
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

	if host := c.String("host"); host != "" {
		cfg.Client.BaseURL = host
	}
	if key := c.String("api-key"); key != "" {
		cfg.Client.APIKey = key
	}
	if d := c.Duration("timeout"); d > 0 {
		cfg.Client.Timeout = d
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if c.Bool("verbose") {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}

	return &session{
		client: a2a.NewHTTPClient(&a2a.ClientConfig{
			Timeout:     cfg.Client.Timeout,
			APIKey:      cfg.Client.APIKey,
			BearerToken: c.String("token"),
			CardTTL:     cfg.Client.CardTTL,
			Headers:     map[string]string{},
		}),
		baseURL: cfg.Client.BaseURL,
		out:     c.App.Writer,
		logger:  logger,
	}, nil
}

// explain 对无法连接的错误追加排查步骤，其余错误原样返回
func (s *session) explain(err error) error {
	if !errors.Is(err, a2a.ErrUnreachable) {
		return err
	}
	fmt.Fprintf(s.out, "\n✗ Connection failed: Unable to connect to %s\n", s.baseURL)
	fmt.Fprintln(s.out, "\nTroubleshooting:")
	fmt.Fprintln(s.out, "  1. Ensure the A2A server is running:")
	fmt.Fprintln(s.out, "     a2a-server serve")
	fmt.Fprintf(s.out, "  2. Verify the server is accessible at %s\n", s.baseURL)
	fmt.Fprintln(s.out, "  3. Check firewall and network settings")
	return err
}

func (s *session) discover(ctx context.Context) (*a2a.AgentCard, error) {
	start := time.Now()
	card, err := s.client.Discover(ctx, s.baseURL)
	if err != nil {
		return nil, s.explain(err)
	}
	s.logger.Debug("agent discovered",
		zap.String("agent", card.Name),
		zap.String("endpoint", card.MessagePattern()),
		zap.Duration("duration", time.Since(start)))
	return card, nil
}

func (s *session) ask(ctx context.Context, card *a2a.AgentCard, text string) error {
	start := time.Now()
	resp, err := s.client.Send(ctx, s.baseURL, card, text)
	if err != nil {
		return s.explain(err)
	}
	s.logger.Debug("message exchanged",
		zap.String("request_id", resp.Metadata.RequestID),
		zap.Duration("duration", time.Since(start)))

	fmt.Fprintln(s.out, "\n🤖 Agent Response:")
	for _, m := range resp.Messages {
		if m.Role != a2a.RoleAssistant {
			continue
		}
		fmt.Fprintf(s.out, "  %s\n", m.Content.FirstText())
	}
	return nil
}

// =============================================================================
// 🎯 命令实现
// =============================================================================

func runDiscover(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	card, err := s.discover(c.Context)
	if err != nil {
		return err
	}
	printCard(s.out, card)
	return nil
}

func runSend(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("send requires a query, e.g. a2a-client send \"What time is it?\"")
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	card, err := s.discover(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "User: %s\n", query)
	return s.ask(c.Context, card, query)
}

func runDemo(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}

	banner := strings.Repeat("=", len(rule))
	fmt.Fprintln(s.out, banner)
	fmt.Fprintln(s.out, "A2A Client")
	fmt.Fprintln(s.out, banner)
	fmt.Fprintf(s.out, "\n📡 Connecting to A2A agent at: %s\n", s.baseURL)

	fmt.Fprintln(s.out, "\n🔍 Discovering agent via A2A protocol...")
	card, err := s.discover(c.Context)
	if err != nil {
		return err
	}
	printCard(s.out, card)

	for i, q := range demoQueries {
		fmt.Fprintf(s.out, "\n📝 Query %d: %s\n%s\n", i+1, q.title, rule)
		fmt.Fprintf(s.out, "User: %s\n", q.text)
		if err := s.ask(c.Context, card, q.text); err != nil {
			return fmt.Errorf("query %d: %w", i+1, err)
		}
	}

	fmt.Fprintf(s.out, "\n%s\n✅ Success! All queries completed\n%s\n", banner, banner)
	fmt.Fprintf(s.out, "  • Connected to: %s\n", s.baseURL)
	fmt.Fprintf(s.out, "  • Agent: %s\n", card.Name)
	fmt.Fprintf(s.out, "  • Queries: %d (weather, time, combined, general)\n", len(demoQueries))
	return nil
}

func printCard(w io.Writer, card *a2a.AgentCard) {
	fmt.Fprintf(w, "✓ Agent discovered: %s\n", card.Name)
	fmt.Fprintf(w, "  Description: %s\n", card.Description)
	fmt.Fprintf(w, "  Endpoint: %s\n", card.MessagePattern())
	if len(card.Capabilities.Tools) > 0 {
		fmt.Fprintf(w, "  Tools: %s\n", strings.Join(card.Capabilities.Tools, ", "))
	}
}
