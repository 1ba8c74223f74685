package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/agent/protocol/a2a"
	"github.com/BaSui01/agentflow-a2a/types"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestHost(t *testing.T, hooks HostHooks) *Host {
	t.Helper()
	card := a2a.NewAgentCard("Weather Agent", "answers weather questions", "1.0.0", "weather-agent")
	h, err := NewHost(card, HostConfig{Source: "azure-openai", Hooks: hooks, Now: func() time.Time { return fixedNow }}, zap.NewNop())
	require.NoError(t, err)
	return h
}

func echoRuntime(calls *atomic.Int32) Runtime {
	return RuntimeFunc(func(_ context.Context, text string) (*RunResult, error) {
		if calls != nil {
			calls.Add(1)
		}
		return &RunResult{Text: "echo: " + text}, nil
	})
}

func acquire(rt Runtime) Factory {
	return func(context.Context) (Runtime, error) { return rt, nil }
}

type identifiedRuntime struct {
	RuntimeFunc
	closed atomic.Bool
}

func (r *identifiedRuntime) ID() string   { return "asst_123" }
func (r *identifiedRuntime) Name() string { return "backend-agent" }
func (r *identifiedRuntime) Close(context.Context) error {
	r.closed.Store(true)
	return nil
}

func TestNewHost_RejectsInvalidCard(t *testing.T) {
	_, err := NewHost(nil, HostConfig{}, nil)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))

	card := a2a.NewAgentCard("", "", "1.0.0", "id")
	_, err = NewHost(card, HostConfig{}, nil)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestHost_NotReadyBeforeAcquire(t *testing.T) {
	h := newTestHost(t, HostHooks{})
	assert.Equal(t, StateInitializing, h.State())
	assert.False(t, h.Ready())

	_, err := h.Runtime()
	assert.True(t, types.IsCode(err, types.ErrNotReady))

	// 即使请求体本身无效，也先报告 NOT_READY
	_, err = h.Exchange(context.Background(), &a2a.RequestEnvelope{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotReady))
	assert.Contains(t, err.Error(), a2a.MsgNotInitialized)
}

func TestHost_AcquireOnce(t *testing.T) {
	var states []State
	h := newTestHost(t, HostHooks{OnStateChange: func(s State) { states = append(states, s) }})

	require.NoError(t, h.Acquire(context.Background(), acquire(echoRuntime(nil))))
	assert.True(t, h.Ready())
	assert.ErrorIs(t, h.Acquire(context.Background(), acquire(echoRuntime(nil))), ErrAlreadyAcquired)
	assert.Equal(t, []State{StateInitializing, StateReady}, states)
}

func TestHost_AcquireFailureStaysInitializing(t *testing.T) {
	h := newTestHost(t, HostHooks{})
	boom := types.NewError(types.ErrConfiguration, "AZURE_OPENAI_ENDPOINT must be set")

	err := h.Acquire(context.Background(), func(context.Context) (Runtime, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateInitializing, h.State())

	err = h.Acquire(context.Background(), func(context.Context) (Runtime, error) { return nil, nil })
	assert.Error(t, err)
	assert.Equal(t, StateInitializing, h.State())

	require.NoError(t, h.Acquire(context.Background(), acquire(echoRuntime(nil))))
	assert.True(t, h.Ready())
}

func TestHost_AcquireInProgress(t *testing.T) {
	h := newTestHost(t, HostHooks{})
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- h.Acquire(context.Background(), func(context.Context) (Runtime, error) {
			close(started)
			<-release
			return echoRuntime(nil), nil
		})
	}()

	<-started
	assert.ErrorIs(t, h.Acquire(context.Background(), acquire(echoRuntime(nil))), ErrAcquireInProgress)
	_, err := h.Runtime()
	assert.True(t, types.IsCode(err, types.ErrNotReady))

	close(release)
	require.NoError(t, <-done)
	assert.True(t, h.Ready())
}

func TestHost_Exchange(t *testing.T) {
	var calls atomic.Int32
	h := newTestHost(t, HostHooks{})
	require.NoError(t, h.Acquire(context.Background(), acquire(echoRuntime(&calls))))

	tests := []struct {
		name     string
		env      *a2a.RequestEnvelope
		wantText string
		wantCode types.ErrorCode
		wantMsg  string
	}{
		{
			name:     "plain text",
			env:      a2a.NewUserRequest("What's the weather in Seattle?"),
			wantText: "echo: What's the weather in Seattle?",
		},
		{
			name: "latest user wins",
			env: &a2a.RequestEnvelope{Messages: []a2a.Message{
				{Role: a2a.RoleUser, Content: a2a.PlainText("first")},
				{Role: a2a.RoleAssistant, Content: a2a.PlainText("reply")},
				{Role: a2a.RoleUser, Content: a2a.PartsList(a2a.Part{Type: "image_url"}, a2a.TextPart("second"))},
			}},
			wantText: "echo: second",
		},
		{name: "nil envelope", env: nil, wantCode: types.ErrClientInput, wantMsg: a2a.MsgNoMessages},
		{name: "empty messages", env: &a2a.RequestEnvelope{}, wantCode: types.ErrClientInput, wantMsg: a2a.MsgNoMessages},
		{
			name:     "assistant only",
			env:      &a2a.RequestEnvelope{Messages: []a2a.Message{{Role: a2a.RoleAssistant, Content: a2a.PlainText("hi")}}},
			wantCode: types.ErrClientInput,
			wantMsg:  a2a.MsgNoUserMessage,
		},
		{
			name: "latest user has no text",
			env: &a2a.RequestEnvelope{Messages: []a2a.Message{
				{Role: a2a.RoleUser, Content: a2a.PlainText("older")},
				{Role: a2a.RoleUser, Content: a2a.PlainText("")},
			}},
			wantCode: types.ErrClientInput,
			wantMsg:  a2a.MsgNoUserMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := calls.Load()
			resp, err := h.Exchange(context.Background(), tt.env)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, tt.wantCode))
				assert.Contains(t, err.Error(), tt.wantMsg)
				assert.Equal(t, before, calls.Load(), "runtime must not be called")
				return
			}
			require.NoError(t, err)
			require.Len(t, resp.Messages, 1)
			assert.Equal(t, a2a.RoleAssistant, resp.Messages[0].Role)
			assert.Equal(t, tt.wantText, resp.Messages[0].Content.FirstText())
			assert.Equal(t, "completed", resp.Status)
			assert.Equal(t, "2025-06-01T12:00:00Z", resp.Metadata.Timestamp)
			assert.Equal(t, "A2A", resp.Metadata.Protocol)
			assert.Equal(t, "weather-agent", resp.Metadata.AgentID)
			assert.Equal(t, "azure-openai", resp.Metadata.Source)
		})
	}
}

func TestHost_ExchangeRuntimeFailure(t *testing.T) {
	var statuses []string
	h := newTestHost(t, HostHooks{OnExchange: func(status string, _ time.Duration) { statuses = append(statuses, status) }})
	cause := errors.New("deployment not found")
	require.NoError(t, h.Acquire(context.Background(), acquire(RuntimeFunc(func(context.Context, string) (*RunResult, error) {
		return nil, cause
	}))))

	_, err := h.Exchange(context.Background(), a2a.NewUserRequest("hi"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRuntimeFailure))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{string(types.ErrRuntimeFailure)}, statuses)
}

func TestHost_IdentityAndRelease(t *testing.T) {
	h := newTestHost(t, HostHooks{})
	require.NoError(t, h.Release(context.Background()))

	rt := &identifiedRuntime{RuntimeFunc: func(_ context.Context, text string) (*RunResult, error) {
		return &RunResult{Text: text}, nil
	}}
	require.NoError(t, h.Acquire(context.Background(), acquire(rt)))

	id, name := h.Identity()
	assert.Equal(t, "asst_123", id)
	assert.Equal(t, "backend-agent", name)

	ctx := types.WithRequestID(context.Background(), "req-1")
	resp, err := h.Exchange(ctx, a2a.NewUserRequest("ping"))
	require.NoError(t, err)
	assert.Equal(t, "asst_123", resp.Metadata.AgentID)
	assert.Equal(t, "req-1", resp.Metadata.RequestID)

	// 卡片本身不受后端身份影响
	assert.Equal(t, "weather-agent", h.Card().ID)

	require.NoError(t, h.Release(context.Background()))
	assert.True(t, rt.closed.Load())
}

func TestHost_ConcurrentExchanges(t *testing.T) {
	var calls atomic.Int32
	h := newTestHost(t, HostHooks{})

	var wg sync.WaitGroup
	// acquisition races with in-flight requests: each one either
	// fails NOT_READY or succeeds with its own text
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := string(rune('a' + i%26))
			resp, err := h.Exchange(context.Background(), a2a.NewUserRequest(text))
			if err != nil {
				assert.True(t, types.IsCode(err, types.ErrNotReady))
				return
			}
			assert.Equal(t, "echo: "+text, resp.Text())
		}(i)
		if i == 8 {
			require.NoError(t, h.Acquire(context.Background(), acquire(echoRuntime(&calls))))
		}
	}
	wg.Wait()
	assert.True(t, h.Ready())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateInitializing, StateReady))
	assert.False(t, CanTransition(StateReady, StateInitializing))
	assert.False(t, CanTransition(StateReady, StateReady))
	assert.Equal(t, "invalid state transition: ready -> initializing",
		ErrInvalidTransition{From: StateReady, To: StateInitializing}.Error())
}
