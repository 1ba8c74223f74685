package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-a2a/agent/protocol/a2a"
	"github.com/BaSui01/agentflow-a2a/types"
)

// MaxBodyBytes 是请求体的上限（1 MiB）.
const MaxBodyBytes = 1 << 20

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出，编码失败时无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError 把错误写成 {"error": ..., "code": ...}.
// 非 *types.Error 的错误按 RUNTIME_FAILURE 处理，且不向调用方暴露内部细节.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	apiErr, ok := types.AsError(err)
	if !ok {
		apiErr = types.NewError(types.ErrRuntimeFailure, "internal error").WithCause(err)
	}
	status := apiErr.Status()

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(apiErr.Code)),
			zap.String("message", apiErr.Message),
			zap.Int("status", status),
		}
		if apiErr.Cause != nil {
			fields = append(fields, zap.Error(apiErr.Cause))
		}
		switch apiErr.Code {
		case types.ErrClientInput, types.ErrNotReady:
			logger.Warn("request rejected", fields...)
		default:
			logger.Error("request failed", fields...)
		}
	}

	WriteJSON(w, status, a2a.ErrorBody{
		Error: apiErr.Message,
		Code:  apiErr.Code,
	})
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体. 超过 MaxBodyBytes、空体或非法 JSON 都返回 CLIENT_INPUT 错误.
// 未知字段被忽略，A2A 消息常带有 timestamp、name 等附加字段.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return types.NewError(types.ErrClientInput, "request body is empty")
	}

	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return types.NewError(types.ErrClientInput, "request body too large").WithCause(err)
		case errors.Is(err, io.EOF):
			return types.NewError(types.ErrClientInput, "request body is empty")
		default:
			return types.NewError(types.ErrClientInput, "invalid JSON body").WithCause(err)
		}
	}
	return nil
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码和写出的字节数
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	BytesWritten int
	Written      bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += n
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层 writer.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
