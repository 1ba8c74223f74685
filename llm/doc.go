/*
包 llm 定义代理运行时与聊天补全后端之间的最小契约。

# 核心类型

  - Provider：Completion + Name，具体实现见 llm/providers/openai
  - ChatRequest / ChatResponse：单轮请求与响应，工具通过 Tools 声明
  - Message / ToolCall / ToolSchema：对话消息、工具调用与 JSON Schema 描述
  - ChatUsage：token 用量，可在工具循环中累加

工具执行与 ReAct 循环位于 llm/tools。
*/
package llm
