/*
Package types 提供 A2A 主机与客户端共享的最底层类型。

# 概述

types 不依赖任何内部包，为 agent、api、llm 等上层模块提供统一的错误契约
与 context 传播工具，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误：CONFIGURATION、CLIENT_INPUT、NOT_READY、
    RUNTIME_FAILURE、TRANSPORT、TIMEOUT，每个错误码对应唯一的 HTTP 状态码
  - HTTPStatus / CodeForStatus：错误码与 HTTP 状态码的双向映射

# 主要能力

  - 错误工具链：NewError / Errorf / AsError / GetErrorCode / IsCode
  - Context 传播：WithTraceID / WithRequestID
*/
package types
