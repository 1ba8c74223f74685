/*
Package agent 持有 A2A Agent Host 的运行时与生命周期状态.

# Overview

Host 是进程级的应用上下文对象：它保存启动时构建的不可变 AgentCard、
生命周期状态（Initializing → Ready，单向）以及获取到的 Runtime 句柄.
HTTP 层只通过 Host 访问运行时，不存在模块级全局变量.

# Runtime

Runtime 是单轮 "run(text) → reply" 的不透明协作者. ChatAgent 是默认实现，
它把系统提示词和用户文本交给 llm/tools 的 ReAct 循环，由模型自行决定是否调用
内置工具或 MCP 工具.

# Exchange

Exchange 实现一次消息交换：

	1. 状态检查：Initializing 时返回 NOT_READY
	2. 提取文本：最新一条 user 消息的第一段文本，失败返回 CLIENT_INPUT
	3. 调用运行时：失败返回 RUNTIME_FAILURE
	4. 构造响应：恰好一条 assistant 消息，status 为 "completed"

并发的 Exchange 调用互不影响；运行时句柄获取后只读.
*/
package agent
