/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、Agent Host 与工具调用四个维度。

# 概述

Collector 通过 promauto.With 把指标注册到调用方提供的 Registerer，
未提供时使用默认 Registry。所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion），
    按 provider/model 分组。
  - Agent 指标：消息交换总数与耗时（按 status 分组）、
    状态转换计数以及 agent_ready Gauge。
  - 工具指标：按 tool/status 分组的调用计数与耗时，
    RecordToolCall 可直接作为 tools.Observer 使用。
*/
package metrics
