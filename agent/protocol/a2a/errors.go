package a2a

import "errors"

// 代理卡验证错误.
var (
	// ErrMissingName 表示代理卡缺少名称.
	ErrMissingName = errors.New("agent card: missing name")
	// ErrMissingID 表示代理卡缺少稳定标识符.
	ErrMissingID = errors.New("agent card: missing id")
	// ErrMissingVersion 表示代理卡缺少版本.
	ErrMissingVersion = errors.New("agent card: missing version")
	// ErrInvalidEndpoint 表示消息端点的 path 或 method 无效.
	ErrInvalidEndpoint = errors.New("agent card: invalid message endpoint")
)

// A2A 协议错误.
var (
	// ErrUnreachable 表示无法建立到远程代理的连接.
	ErrUnreachable = errors.New("a2a: remote agent unreachable")
)

// 交换错误使用的固定文案，客户端依赖这些字符串.
const (
	MsgNoMessages     = "No messages provided"
	MsgNoUserMessage  = "No user message found"
	MsgNotInitialized = "Agent not initialized"
)
