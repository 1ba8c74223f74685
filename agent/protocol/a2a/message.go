package a2a

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/BaSui01/agentflow-a2a/types"
)

// Role 标识消息发送方.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ProtocolName is reported in every response's metadata.
const ProtocolName = "A2A"

// StatusCompleted 是同步交换成功后的唯一状态.
const StatusCompleted = "completed"

// PartTypeText 是唯一会被读取的 part 类型.
const PartTypeText = "text"

// Part 是结构化 content 数组中的一项.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UnmarshalJSON 容忍非对象元素与非字符串 text，它们解码为空 part.
func (p *Part) UnmarshalJSON(data []byte) error {
	*p = Part{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if v, ok := raw["type"]; ok {
		_ = json.Unmarshal(v, &p.Type)
	}
	if v, ok := raw["text"]; ok {
		_ = json.Unmarshal(v, &p.Text)
	}
	return nil
}

// Content is either plain text or a list of typed parts.
// The zero value is empty plain text. Any other JSON kind is kept verbatim
// and carries no text.
type Content struct {
	text    string
	parts   []Part
	isParts bool
	raw     json.RawMessage
}

// PlainText builds string content.
func PlainText(s string) Content {
	return Content{text: s}
}

// PartsList builds structured content.
func PartsList(parts ...Part) Content {
	return Content{parts: append([]Part{}, parts...), isParts: true}
}

// TextPart is shorthand for a text part.
func TextPart(s string) Part {
	return Part{Type: PartTypeText, Text: s}
}

// IsParts reports whether the content is the structured form.
func (c Content) IsParts() bool { return c.isParts }

// Parts returns a copy of the structured parts, nil for plain text.
func (c Content) Parts() []Part {
	if !c.isParts {
		return nil
	}
	return append([]Part{}, c.parts...)
}

// FirstText 对任何 content 都有定义：纯文本返回其本身，
// part 列表返回第一个 text 类型 part 的文本，否则返回空串.
// 多个 text part 不会被拼接.
func (c Content) FirstText() string {
	if c.raw != nil {
		return ""
	}
	if !c.isParts {
		return c.text
	}
	for _, p := range c.parts {
		if p.Type == PartTypeText {
			return p.Text
		}
	}
	return ""
}

// MarshalJSON encodes plain text as a JSON string and parts as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	if c.isParts {
		if c.parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts a string, an array of parts or null. Numbers, objects
// and booleans decode into an opaque value without text, so a message the
// host never selects cannot fail the whole envelope.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Content{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &c.text)
	case '[':
		var parts []Part
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		c.parts = parts
		c.isParts = true
		return nil
	default:
		c.raw = append(json.RawMessage(nil), data...)
		return nil
	}
}

// Message 是信封中的单条消息.
type Message struct {
	Role      Role    `json:"role"`
	Content   Content `json:"content"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// RequestEnvelope 是 POST 到消息端点的请求体.
type RequestEnvelope struct {
	Messages []Message `json:"messages"`
}

// NewUserRequest wraps a single user text into a request envelope.
func NewUserRequest(text string) *RequestEnvelope {
	return &RequestEnvelope{Messages: []Message{{Role: RoleUser, Content: PlainText(text)}}}
}

// ResponseMetadata identifies the backend that produced a reply.
type ResponseMetadata struct {
	AgentID   string `json:"agent_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Timestamp string `json:"timestamp"`
	Protocol  string `json:"protocol"`
	Source    string `json:"source,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ResponseEnvelope 是成功交换的响应体.
type ResponseEnvelope struct {
	Messages []Message        `json:"messages"`
	Status   string           `json:"status"`
	Metadata ResponseMetadata `json:"metadata"`
}

// Text joins the text of every assistant message in the reply.
func (r *ResponseEnvelope) Text() string {
	var texts []string
	for _, m := range r.Messages {
		if m.Role == RoleAssistant {
			texts = append(texts, m.Content.FirstText())
		}
	}
	return strings.Join(texts, "\n")
}

// ErrorBody 是所有非 2xx 响应的 JSON 体.
type ErrorBody struct {
	Error string          `json:"error"`
	Code  types.ErrorCode `json:"code,omitempty"`
}

// Timestamp formats t the way every envelope does (UTC, RFC 3339, trailing Z).
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// NewResponse builds a completed envelope carrying exactly one assistant message.
func NewResponse(text string, meta ResponseMetadata, now time.Time) *ResponseEnvelope {
	ts := Timestamp(now)
	meta.Timestamp = ts
	meta.Protocol = ProtocolName
	return &ResponseEnvelope{
		Messages: []Message{{
			Role:      RoleAssistant,
			Content:   PlainText(text),
			Timestamp: ts,
		}},
		Status:   StatusCompleted,
		Metadata: meta,
	}
}

// LatestUserText 从最新的消息向前查找第一条 user 消息并返回其文本.
// 一旦选中最新的 user 消息，更早的 user 消息不再被考虑.
func LatestUserText(msgs []Message) (string, error) {
	if len(msgs) == 0 {
		return "", types.NewError(types.ErrClientInput, MsgNoMessages)
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != RoleUser {
			continue
		}
		text := msgs[i].Content.FirstText()
		if text == "" {
			break
		}
		return text, nil
	}
	return "", types.NewError(types.ErrClientInput, MsgNoUserMessage)
}
