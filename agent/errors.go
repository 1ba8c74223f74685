package agent

import "errors"

var (
	// ErrProviderNotSet LLM Provider 未设置
	ErrProviderNotSet = errors.New("llm provider not set")

	// ErrAlreadyAcquired 运行时只能获取一次
	ErrAlreadyAcquired = errors.New("agent runtime already acquired")

	// ErrAcquireInProgress 另一个 Acquire 调用尚未返回
	ErrAcquireInProgress = errors.New("agent runtime acquisition in progress")
)
