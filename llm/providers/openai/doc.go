/*
包 openai 以 github.com/sashabaranov/go-openai 实现 llm.Provider，
同时支持 OpenAI 与 Azure OpenAI 两种部署。

  - Azure 模式：Config.Endpoint 非空，使用 DefaultAzureConfig，
    api-version 默认 2024-05-01-preview，部署名作为模型
  - OpenAI 模式：使用 DefaultConfig，可选 BaseURL 与 Organization
  - 工具 schema 与工具调用在两侧之间双向转换
*/
package openai
