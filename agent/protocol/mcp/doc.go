// Package mcp 实现 MCP（Model Context Protocol）streamable HTTP 客户端，
// 并把远程工具注册为代理运行时可调用的函数工具.
package mcp
