package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentflow-a2a/internal/tlsutil"
	"github.com/BaSui01/agentflow-a2a/types"
)

// DefaultExchangeTimeout 是一次消息交换的整体上限，代理运行可能很慢.
const DefaultExchangeTimeout = 120 * time.Second

// maxResponseBytes caps how much of a reply body the client will read.
const maxResponseBytes = 8 << 20

// A2AClient 定义了 A2A 客户端操作的接口.
type A2AClient interface {
	// Discover 从远程代理取回代理卡.
	Discover(ctx context.Context, baseURL string) (*AgentCard, error)
	// SendMessage 发送一条用户文本并等待回复.
	SendMessage(ctx context.Context, baseURL, text string) (*ResponseEnvelope, error)
}

// ClientConfig 为 A2A 客户端持有配置.
type ClientConfig struct {
	// Timeout 是每次 HTTP 往返的上限.
	Timeout time.Duration
	// Headers 是请求中要包含的额外信头.
	Headers map[string]string
	// APIKey 非空时以 X-API-Key 发送.
	APIKey string
	// BearerToken 非空时以 Authorization: Bearer 发送.
	BearerToken string
	// CardTTL 是代理卡缓存时长，0 表示不缓存.
	CardTTL time.Duration
	// InsecureSkipVerify 仅用于本地自签名证书.
	InsecureSkipVerify bool
}

// DefaultClientConfig 返回有合理默认的 ClientConfig.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: DefaultExchangeTimeout,
		Headers: make(map[string]string),
		CardTTL: 5 * time.Minute,
	}
}

// HTTPClient 是 A2AClient 基于 HTTP 的默认实现. 不做任何重试.
type HTTPClient struct {
	config     *ClientConfig
	httpClient *http.Client
	// 已发现代理卡缓存
	cardCache map[string]*cachedCard
	cacheMu   sync.RWMutex
	now       func() time.Time
}

type cachedCard struct {
	card      *AgentCard
	expiresAt time.Time
}

var _ A2AClient = (*HTTPClient)(nil)

// NewHTTPClient 以给定的配置创建新的 HTTPClient.
func NewHTTPClient(config *ClientConfig) *HTTPClient {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultExchangeTimeout
	}

	return &HTTPClient{
		config: config,
		httpClient: tlsutil.NewHTTPClient(tlsutil.ClientOptions{
			Timeout:            config.Timeout,
			InsecureSkipVerify: config.InsecureSkipVerify,
		}),
		cardCache: make(map[string]*cachedCard),
		now:       time.Now,
	}
}

// Discover 从 baseURL 取回并校验代理卡.
// baseURL 是代理的基础地址（如 "http://localhost:8000"），卡片位于 WellKnownPath.
func (c *HTTPClient) Discover(ctx context.Context, baseURL string) (*AgentCard, error) {
	baseURL, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	// 先检查缓存
	c.cacheMu.RLock()
	if cached, ok := c.cardCache[baseURL]; ok && c.now().Before(cached.expiresAt) {
		c.cacheMu.RUnlock()
		return cached.card.Clone(), nil
	}
	c.cacheMu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+WellKnownPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.applyHeaders(req)

	var card AgentCard
	if err := c.do(req, &card); err != nil {
		return nil, err
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}

	if c.config.CardTTL > 0 {
		c.cacheMu.Lock()
		c.cardCache[baseURL] = &cachedCard{
			card:      card.Clone(),
			expiresAt: c.now().Add(c.config.CardTTL),
		}
		c.cacheMu.Unlock()
	}

	return &card, nil
}

// SendMessage 通过发现得到的端点发送一条用户消息.
// 发现因非传输原因失败时（如旧主机没有发布卡片）回退到 POST /api/messages.
// 发现与交换共用一个 Timeout 上限.
func (c *HTTPClient) SendMessage(ctx context.Context, baseURL, text string) (*ResponseEnvelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	card, err := c.Discover(ctx, baseURL)
	if err != nil {
		if types.IsCode(err, types.ErrTransport) || types.IsCode(err, types.ErrTimeout) {
			return nil, err
		}
		card = NewAgentCard("", "", "", "")
	}
	return c.Send(ctx, baseURL, card, text)
}

// Send 对已解析的代理卡执行一次交换.
func (c *HTTPClient) Send(ctx context.Context, baseURL string, card *AgentCard, text string) (*ResponseEnvelope, error) {
	baseURL, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if card == nil {
		card = NewAgentCard("", "", "", "")
	}

	body, err := json.Marshal(NewUserRequest(text))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	ep := card.Endpoints.Message
	method, path := ep.Method, ep.Path
	if method == "" {
		method = DefaultMessageMethod
	}
	if path == "" {
		path = DefaultMessagePath
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)

	var resp ResponseEnvelope
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InvalidateCard drops the cached card for baseURL.
func (c *HTTPClient) InvalidateCard(baseURL string) {
	baseURL, err := normalizeBaseURL(baseURL)
	if err != nil {
		return
	}
	c.cacheMu.Lock()
	delete(c.cardCache, baseURL)
	c.cacheMu.Unlock()
}

func (c *HTTPClient) applyHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}
	if c.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	}
}

// do 执行请求并把 2xx 响应体解码到 out，其余情况映射为 types.Error.
func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(req, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return types.NewError(types.ErrTimeout, "timed out reading response").WithCause(err)
		}
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// statusError 把非 2xx 响应转换为带错误码的错误，保留服务端的 error 文本.
func statusError(status int, data []byte) error {
	msg := http.StatusText(status)
	var eb ErrorBody
	if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	} else if s := strings.TrimSpace(string(data)); s != "" && len(s) < 512 {
		msg = s
	}
	code := types.CodeForStatus(status)
	return types.NewError(code, msg).WithHTTPStatus(status)
}

func classifyTransportError(req *http.Request, err error) error {
	if isTimeout(err) {
		return types.Errorf(types.ErrTimeout, "request to %s timed out", req.URL.Redacted()).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if !isUnreachable(err) {
		return types.Errorf(types.ErrTransport, "request to %s failed", req.URL.Redacted()).WithCause(err)
	}
	return types.Errorf(types.ErrTransport, "cannot reach %s", req.URL.Host).
		WithCause(fmt.Errorf("%w: %v", ErrUnreachable, err))
}

// isUnreachable 只把拨号与 DNS 失败视为无法连接；TLS 校验、重定向策略等错误不算.
func isUnreachable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func normalizeBaseURL(baseURL string) (string, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return "", types.NewError(types.ErrConfiguration, "agent base URL is empty")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return "", types.Errorf(types.ErrConfiguration, "agent base URL %q must start with http:// or https://", baseURL)
	}
	return baseURL, nil
}
