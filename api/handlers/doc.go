/*
Package handlers 提供 A2A Agent Host 的 HTTP 请求处理器实现。

# 概述

handlers 包实现了 Agent Host 对外暴露的全部端点：Agent Card 发现、
消息交换、健康/就绪检查与根路径摘要。所有 Handler 均遵循标准
net/http 接口，路由使用 Go 1.22 的 "METHOD /path" 模式注册。

# 核心类型

  - A2AHandler    ：Agent Card（预编码）、消息交换与根路径摘要
  - HealthHandler ：/health、/ready、/version
  - HostStatus    ：健康检查依赖的 Host 只读视图
  - HealthCheck   ：可插拔就绪检查接口，FuncCheck 为函数式实现
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码与字节数

# 主要能力

  - 消息路由取自 AgentCard 自身的 path 与 method
  - 统一错误体：WriteError 输出 {"error", "code"}，状态码由 types.HTTPStatus 决定
  - 请求体限制：DecodeJSONBody 拒绝超过 1 MiB 或非法的 JSON，返回 CLIENT_INPUT
  - 日志分级：CLIENT_INPUT / NOT_READY 记为 warn，其余错误记为 error
*/
package handlers
