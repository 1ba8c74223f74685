// Package tlsutil 提供集中式 TLS 配置，
// 为 A2A 主机、发现/交换客户端、模型与 MCP 调用提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
