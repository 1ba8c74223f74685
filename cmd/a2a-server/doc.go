/*
Package main 提供 A2A Agent Host 的可执行入口。

# 概述

cmd/a2a-server 在固定的发现路径 /.well-known/agent.json 发布 Agent Card，
并在 Card 声明的消息端点上接收 A2A 请求信封、调用 agent 运行时、
返回响应信封。HTTP 服务在运行时获取完成之前就开始监听：此时 Card
与健康检查可用，消息端点返回 503。

# 核心类型

  - Server     ：组装工具注册表、Host、Handlers 与 HTTP/Metrics 双端口
  - Middleware ：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、card（打印 Card）、health、version
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、Metrics、CORS、RateLimiter、APIKeyAuth、JWTAuth
  - MCP 工具在监听之前注册，工具名出现在 Card 中
  - 运行时获取失败时进程以非零码退出
  - 优雅关闭：停止后台任务 → 关闭 HTTP 与 Metrics → 释放运行时 → 刷新遥测
*/
package main
