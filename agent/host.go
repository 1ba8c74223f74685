package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/agent/protocol/a2a"
	"github.com/BaSui01/agentflow-a2a/types"
)

const tracerName = "github.com/BaSui01/agentflow-a2a/agent"

// HostHooks 接收 Host 的生命周期与交换事件，通常接到 metrics.Collector.
type HostHooks struct {
	// OnStateChange 在每次状态转换后调用.
	OnStateChange func(State)
	// OnExchange 在每次 Exchange 结束后调用，status 为错误码或 "success".
	OnExchange func(status string, duration time.Duration)
}

// HostConfig 配置 Host.
type HostConfig struct {
	// Source 写入响应元数据的 source 字段，标识后端类型.
	Source string
	Hooks  HostHooks
	// Now 用于测试注入时钟.
	Now func() time.Time
}

// Host 是 Agent Host 的进程级状态：不可变的 AgentCard、生命周期状态和运行时句柄.
type Host struct {
	card   *a2a.AgentCard
	config HostConfig
	logger *zap.Logger

	mu        sync.RWMutex
	state     State
	acquiring bool
	runtime   Runtime
	agentID   string
	agentName string
}

// NewHost 创建处于 Initializing 状态的 Host. card 会被深拷贝.
func NewHost(card *a2a.AgentCard, config HostConfig, logger *zap.Logger) (*Host, error) {
	if card == nil {
		return nil, types.NewError(types.ErrConfiguration, "agent card is required")
	}
	if err := card.Validate(); err != nil {
		return nil, types.NewError(types.ErrConfiguration, "invalid agent card").WithCause(err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	h := &Host{
		card:      card.Clone(),
		config:    config,
		logger:    logger.With(zap.String("component", "agent_host"), zap.String("agent_id", card.ID)),
		state:     StateInitializing,
		agentID:   card.ID,
		agentName: card.Name,
	}
	if hook := config.Hooks.OnStateChange; hook != nil {
		hook(StateInitializing)
	}
	return h, nil
}

// Card 返回 AgentCard 的副本.
func (h *Host) Card() *a2a.AgentCard {
	return h.card.Clone()
}

// State 返回当前生命周期状态.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Ready reports whether the runtime has been acquired.
func (h *Host) Ready() bool {
	return h.State() == StateReady
}

// Identity 返回后端 agent 的 id 和 name. 运行时实现 Identified 时以运行时为准.
func (h *Host) Identity() (id, name string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.agentID, h.agentName
}

// Acquire 调用 factory 构建运行时并转换到 Ready. 只能成功一次；
// 失败时 Host 保持 Initializing 并返回错误.
func (h *Host) Acquire(ctx context.Context, factory Factory) error {
	h.mu.Lock()
	if h.state == StateReady {
		h.mu.Unlock()
		return ErrAlreadyAcquired
	}
	if h.acquiring {
		h.mu.Unlock()
		return ErrAcquireInProgress
	}
	h.acquiring = true
	h.mu.Unlock()

	h.logger.Info("acquiring agent runtime")
	start := time.Now()
	rt, err := factory(ctx)
	if err == nil && rt == nil {
		err = errors.New("factory returned nil runtime")
	}

	h.mu.Lock()
	h.acquiring = false
	if err != nil {
		h.mu.Unlock()
		h.logger.Error("agent runtime acquisition failed", zap.Error(err))
		return err
	}
	if !CanTransition(h.state, StateReady) {
		h.mu.Unlock()
		return ErrInvalidTransition{From: h.state, To: StateReady}
	}
	h.runtime = rt
	if id, ok := rt.(Identified); ok {
		if v := id.ID(); v != "" {
			h.agentID = v
		}
		if v := id.Name(); v != "" {
			h.agentName = v
		}
	}
	h.state = StateReady
	agentID := h.agentID
	h.mu.Unlock()

	h.logger.Info("state transition",
		zap.String("from", string(StateInitializing)),
		zap.String("to", string(StateReady)),
		zap.String("backend_agent_id", agentID),
		zap.Duration("duration", time.Since(start)))
	if hook := h.config.Hooks.OnStateChange; hook != nil {
		hook(StateReady)
	}
	return nil
}

// Runtime 返回运行时句柄；Initializing 时返回 NOT_READY.
func (h *Host) Runtime() (Runtime, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state != StateReady {
		return nil, types.NewError(types.ErrNotReady, a2a.MsgNotInitialized)
	}
	return h.runtime, nil
}

// Release 释放运行时（如果它实现了 Closer）. 状态保持不变.
func (h *Host) Release(ctx context.Context) error {
	h.mu.RLock()
	rt := h.runtime
	h.mu.RUnlock()

	closer, ok := rt.(Closer)
	if !ok {
		return nil
	}
	h.logger.Info("releasing agent runtime")
	return closer.Close(ctx)
}

// Exchange 执行一次消息交换. 状态检查先于文本提取，文本提取先于运行时调用.
func (h *Host) Exchange(ctx context.Context, env *a2a.RequestEnvelope) (*a2a.ResponseEnvelope, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.exchange")
	defer span.End()

	start := time.Now()
	resp, err := h.exchange(ctx, env)

	status := "success"
	if err != nil {
		status = string(types.GetErrorCode(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
	span.SetAttributes(attribute.String("a2a.status", status))
	if hook := h.config.Hooks.OnExchange; hook != nil {
		hook(status, time.Since(start))
	}
	return resp, err
}

func (h *Host) exchange(ctx context.Context, env *a2a.RequestEnvelope) (*a2a.ResponseEnvelope, error) {
	rt, err := h.Runtime()
	if err != nil {
		return nil, err
	}

	var msgs []a2a.Message
	if env != nil {
		msgs = env.Messages
	}
	text, err := a2a.LatestUserText(msgs)
	if err != nil {
		return nil, err
	}

	result, err := rt.Run(ctx, text)
	if err != nil {
		if types.GetErrorCode(err) != "" {
			return nil, err
		}
		return nil, types.NewError(types.ErrRuntimeFailure, "agent run failed").WithCause(err)
	}
	if result == nil {
		return nil, types.NewError(types.ErrRuntimeFailure, "agent returned no result")
	}

	agentID, agentName := h.Identity()
	meta := a2a.ResponseMetadata{
		AgentID:   agentID,
		AgentName: agentName,
		Source:    h.config.Source,
	}
	if id, ok := types.RequestID(ctx); ok {
		meta.RequestID = id
	}
	return a2a.NewResponse(result.Text, meta, h.config.Now()), nil
}
