// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package reasoning defines the contracts the orchestrator uses to talk to a
reasoning service (a hosted large language model).

Two capabilities are modelled:

  - Completer: a single prompt in, a single text reply out. Tool adapters,
    the tool selection policy and the bureau summarizers use this.
  - ChatModel: a function-calling chat turn. The conversational strategy drives
    a loop over this interface, executing the functions the model asks for.

Provider implementations live in sub-packages:

  - reasoning/azure: Azure OpenAI chat completions (Completer and ChatModel)
  - reasoning/anthropic: Anthropic Messages API (Completer and ChatModel)
  - reasoning/bedrock: AWS Bedrock InvokeModel (Completer)

The package also provides bounded retry and polling helpers used wherever the
orchestrator waits on a reasoning reply.
*/
package reasoning
