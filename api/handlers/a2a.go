package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/agent"
	"github.com/BaSui01/agentflow-a2a/agent/protocol/a2a"
)

// notInitializedName 是运行时就绪前根路径摘要里的 agent 名称.
const notInitializedName = "Not initialized"

// =============================================================================
// 🤝 A2A Handler
// =============================================================================

// A2AHandler 提供 Agent Card、消息交换和根路径摘要三个端点.
type A2AHandler struct {
	host     *agent.Host
	service  string
	cardJSON []byte
	logger   *zap.Logger
}

// RootSummary 是 GET / 的响应体
type RootSummary struct {
	Service   string            `json:"service"`
	Status    string            `json:"status"`
	Agent     RootAgent         `json:"agent"`
	Endpoints map[string]string `json:"endpoints"`
}

// RootAgent 描述后端 agent 的身份
type RootAgent struct {
	Name        string  `json:"name"`
	ID          *string `json:"id"`
	Initialized bool    `json:"initialized"`
}

// NewA2AHandler 创建 A2A 处理器. Card 在此处预先编码一次，之后每次请求直接写出.
func NewA2AHandler(host *agent.Host, service string, logger *zap.Logger) (*A2AHandler, error) {
	if host == nil {
		return nil, fmt.Errorf("host is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cardJSON, err := json.Marshal(host.Card())
	if err != nil {
		return nil, fmt.Errorf("encode agent card: %w", err)
	}
	if service == "" {
		service = host.Card().Name
	}

	return &A2AHandler{
		host:     host,
		service:  service,
		cardJSON: cardJSON,
		logger:   logger.With(zap.String("component", "a2a_handler")),
	}, nil
}

// MessagePattern 返回消息端点的 ServeMux 路由，由 Card 自身的 path 和 method 决定.
func (h *A2AHandler) MessagePattern() string {
	return h.host.Card().MessagePattern()
}

// Register 把 Card、消息和根路径路由注册到 mux.
func (h *A2AHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc(http.MethodGet+" "+a2a.WellKnownPath, h.HandleCard)
	mux.HandleFunc(h.MessagePattern(), h.HandleMessage)
	mux.HandleFunc("GET /{$}", h.HandleRoot)
}

// HandleCard 处理 GET /.well-known/agent.json
func (h *A2AHandler) HandleCard(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("agent card requested", zap.String("remote_addr", r.RemoteAddr))

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.cardJSON)
}

// HandleMessage 处理消息交换：解码信封，交给 Host，写回响应信封.
// 运行时就绪前不读取请求体，任何请求都得到 503.
func (h *A2AHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if _, err := h.host.Runtime(); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var env a2a.RequestEnvelope
	if err := DecodeJSONBody(w, r, &env); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp, err := h.host.Exchange(r.Context(), &env)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("message exchanged",
		zap.Int("messages", len(env.Messages)),
		zap.Int("reply_length", len(resp.Text())),
		zap.String("request_id", resp.Metadata.RequestID),
	)
	WriteJSON(w, http.StatusOK, resp)
}

// HandleRoot 处理 GET /，返回服务摘要.
func (h *A2AHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	card := h.host.Card()
	summary := RootSummary{
		Service: h.service,
		Status:  "running",
		Agent:   RootAgent{Name: notInitializedName},
		Endpoints: map[string]string{
			"agent_card": a2a.WellKnownPath,
			"messages":   card.Endpoints.Message.Path,
			"health":     "/health",
		},
	}
	if h.host.Ready() {
		id, name := h.host.Identity()
		summary.Agent = RootAgent{Name: name, ID: &id, Initialized: true}
	}
	WriteJSON(w, http.StatusOK, summary)
}
