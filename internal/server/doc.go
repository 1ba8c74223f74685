/*
包 server 提供 A2A 主机 HTTP/HTTPS 服务器的生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
主机在代理运行时仍处于初始化阶段时就开始监听，后台初始化失败通过
Fail 注入致命错误，WaitForShutdown 随即返回该错误，进程以非零码退出。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道。
  - Config：监听地址、读写超时、空闲超时、最大请求头与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start/StartTLS（TLS 配置来自 tlsutil）
  - 优雅关闭：Shutdown 在超时内排空请求
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM、ctx 与致命错误
*/
package server
