// Package config 提供 A2A Agent Host 与 Client 的配置加载.
//
// 配置来自默认值、YAML 文件、.env 文件与环境变量，并支持 Azure OpenAI
// 示例中常用的环境变量名（AZURE_OPENAI_ENDPOINT 等）.
// Validate 检查取值范围，ValidateRuntime 在启动时快速失败并列出所有缺失的设置.
package config
