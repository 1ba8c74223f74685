package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentflow-a2a/types"
)

func testCard() *AgentCard {
	c := NewAgentCard("test-agent", "A test agent", "1.0.0", "agent-1")
	c.Capabilities.Tools = []string{"get_weather"}
	return c
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("with nil config uses defaults", func(t *testing.T) {
		client := NewHTTPClient(nil)
		assert.NotNil(t, client)
		assert.Equal(t, 120*time.Second, client.config.Timeout)
		assert.Equal(t, 5*time.Minute, client.config.CardTTL)
		assert.Equal(t, 120*time.Second, client.httpClient.Timeout)
	})

	t.Run("zero timeout falls back to default", func(t *testing.T) {
		client := NewHTTPClient(&ClientConfig{})
		assert.Equal(t, DefaultExchangeTimeout, client.config.Timeout)
	})
}

func TestHTTPClient_Discover(t *testing.T) {
	t.Run("successful discovery", func(t *testing.T) {
		card := testCard()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, WellKnownPath, r.URL.Path)
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(card)
		}))
		defer server.Close()

		client := NewHTTPClient(nil)
		result, err := client.Discover(context.Background(), server.URL+"/")

		require.NoError(t, err)
		assert.Equal(t, card.Name, result.Name)
		assert.Equal(t, card.ID, result.ID)
		assert.Equal(t, DefaultMessagePath, result.Endpoints.Message.Path)
	})

	t.Run("uses cache within ttl", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			json.NewEncoder(w).Encode(testCard())
		}))
		defer server.Close()

		client := NewHTTPClient(nil)
		now := time.Now()
		client.now = func() time.Time { return now }

		_, err := client.Discover(context.Background(), server.URL)
		require.NoError(t, err)
		_, err = client.Discover(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, int32(1), hits.Load())

		now = now.Add(6 * time.Minute)
		_, err = client.Discover(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, int32(2), hits.Load())

		client.InvalidateCard(server.URL)
		_, err = client.Discover(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("zero ttl disables cache", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			json.NewEncoder(w).Encode(testCard())
		}))
		defer server.Close()

		client := NewHTTPClient(&ClientConfig{Timeout: time.Second})
		for i := 0; i < 3; i++ {
			_, err := client.Discover(context.Background(), server.URL)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("invalid card", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"description": "no name"})
		}))
		defer server.Close()

		_, err := NewHTTPClient(nil).Discover(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrMissingName)
	})

	t.Run("malformed json is a generic error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}))
		defer server.Close()

		_, err := NewHTTPClient(nil).Discover(context.Background(), server.URL)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnreachable)
		assert.Equal(t, types.ErrorCode(""), types.GetErrorCode(err))
	})

	t.Run("unreachable host is distinguishable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		ln.Close()

		_, err = NewHTTPClient(nil).Discover(context.Background(), "http://"+addr)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnreachable)
		assert.True(t, types.IsCode(err, types.ErrTransport))
	})

	t.Run("tls verification failure is not unreachable", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(testCard())
		}))
		defer server.Close()

		_, err := NewHTTPClient(nil).Discover(context.Background(), server.URL)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnreachable)
		assert.True(t, types.IsCode(err, types.ErrTransport))
	})

	t.Run("redirect policy failure is not unreachable", func(t *testing.T) {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, server.URL+r.URL.Path, http.StatusFound)
		}))
		defer server.Close()

		_, err := NewHTTPClient(nil).Discover(context.Background(), server.URL)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnreachable)
	})

	t.Run("empty url", func(t *testing.T) {
		_, err := NewHTTPClient(nil).Discover(context.Background(), "")
		assert.True(t, types.IsCode(err, types.ErrConfiguration))
	})

	t.Run("url without scheme", func(t *testing.T) {
		_, err := NewHTTPClient(nil).Discover(context.Background(), "localhost:8000")
		assert.True(t, types.IsCode(err, types.ErrConfiguration))
	})
}

func TestHTTPClient_SendMessage(t *testing.T) {
	t.Run("uses path and method from card", func(t *testing.T) {
		card := testCard()
		card.Endpoints.Message.Path = "/v2/chat"
		card.Endpoints.Message.Method = http.MethodPut

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case WellKnownPath:
				json.NewEncoder(w).Encode(card)
			case "/v2/chat":
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				var env RequestEnvelope
				require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
				require.Len(t, env.Messages, 1)
				assert.Equal(t, RoleUser, env.Messages[0].Role)
				json.NewEncoder(w).Encode(NewResponse("echo: "+env.Messages[0].Content.FirstText(), ResponseMetadata{}, time.Now()))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))
		defer server.Close()

		resp, err := NewHTTPClient(nil).SendMessage(context.Background(), server.URL, "hi")
		require.NoError(t, err)
		assert.Equal(t, "echo: hi", resp.Text())
		assert.Equal(t, StatusCompleted, resp.Status)
	})

	t.Run("discovery and exchange share one timeout", func(t *testing.T) {
		slow := func(r *http.Request) {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-r.Context().Done():
			}
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slow(r)
			if r.URL.Path == WellKnownPath {
				json.NewEncoder(w).Encode(testCard())
				return
			}
			json.NewEncoder(w).Encode(NewResponse("late", ResponseMetadata{}, time.Now()))
		}))
		defer server.Close()

		client := NewHTTPClient(&ClientConfig{Timeout: 300 * time.Millisecond})
		start := time.Now()
		_, err := client.SendMessage(context.Background(), server.URL, "hi")
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrTimeout), "got %v", err)
		assert.Less(t, time.Since(start), 390*time.Millisecond)
	})

	t.Run("falls back to default path when card missing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == WellKnownPath {
				http.NotFound(w, r)
				return
			}
			assert.Equal(t, DefaultMessagePath, r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			json.NewEncoder(w).Encode(NewResponse("ok", ResponseMetadata{}, time.Now()))
		}))
		defer server.Close()

		resp, err := NewHTTPClient(nil).SendMessage(context.Background(), server.URL, "hi")
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Text())
	})

	t.Run("sends auth headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "k1", r.Header.Get("X-API-Key"))
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "v", r.Header.Get("X-Extra"))
			if r.URL.Path == WellKnownPath {
				json.NewEncoder(w).Encode(testCard())
				return
			}
			json.NewEncoder(w).Encode(NewResponse("ok", ResponseMetadata{}, time.Now()))
		}))
		defer server.Close()

		client := NewHTTPClient(&ClientConfig{
			APIKey:      "k1",
			BearerToken: "tok",
			Headers:     map[string]string{"X-Extra": "v"},
		})
		_, err := client.SendMessage(context.Background(), server.URL, "hi")
		require.NoError(t, err)
	})

	statusCases := []struct {
		status int
		body   string
		code   types.ErrorCode
		msg    string
	}{
		{http.StatusBadRequest, `{"error":"No user message found","code":"CLIENT_INPUT"}`, types.ErrClientInput, "No user message found"},
		{http.StatusServiceUnavailable, `{"error":"Agent not initialized"}`, types.ErrNotReady, "Agent not initialized"},
		{http.StatusInternalServerError, `{"error":"model exploded"}`, types.ErrRuntimeFailure, "model exploded"},
		{http.StatusInternalServerError, `plain failure`, types.ErrRuntimeFailure, "plain failure"},
	}
	for _, sc := range statusCases {
		t.Run(http.StatusText(sc.status)+" maps to "+string(sc.code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(sc.status)
				w.Write([]byte(sc.body))
			}))
			defer server.Close()

			_, err := NewHTTPClient(nil).Send(context.Background(), server.URL, testCard(), "hi")
			require.Error(t, err)
			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, sc.code, e.Code)
			assert.Equal(t, sc.msg, e.Message)
			assert.Equal(t, sc.status, e.HTTPStatus)
		})
	}

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		client := NewHTTPClient(&ClientConfig{Timeout: 50 * time.Millisecond})
		_, err := client.Send(context.Background(), server.URL, nil, "slow")
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrTimeout), "got %v", err)
	})

	t.Run("unreachable host does not fall back", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		ln.Close()

		_, err = NewHTTPClient(nil).SendMessage(context.Background(), "http://"+addr, "hi")
		assert.ErrorIs(t, err, ErrUnreachable)
	})

	t.Run("canceled context is returned as is", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewHTTPClient(nil).Send(ctx, server.URL, nil, "hi")
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
