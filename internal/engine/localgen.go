// Package engine wraps a protocol.Generator with the state machine the
// agentic loop actually drives: model lifecycle, KV-reuse bookkeeping,
// sampling composition, and streaming hygiene.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// LocalGenerator drives a local, OpenAI-compatible inference endpoint —
// the standard way a llama.cpp or Ollama GGUF server is driven from Go.
// Everything model-local (KV markers, sampling composition, cancellation)
// stays in Engine; this type only speaks the wire protocol.
type LocalGenerator struct {
	client *openai.Client
	model  string
}

// NewLocalGenerator points a go-openai client at a local server, typically
// http://127.0.0.1:<port>/v1 for a llama.cpp/Ollama instance.
func NewLocalGenerator(baseURL, model string) *LocalGenerator {
	cfg := openai.DefaultConfig("not-needed")
	cfg.BaseURL = baseURL
	return &LocalGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *LocalGenerator) Name() string         { return "local-openai-compatible" }
func (g *LocalGenerator) DefaultModel() string { return g.model }

func (g *LocalGenerator) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	oreq := toOpenAIRequest(req, g.model, false)
	resp, err := g.client.CreateChatCompletion(ctx, oreq)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned")
	}
	return fromOpenAIResponse(resp), nil
}

func (g *LocalGenerator) ChatStream(ctx context.Context, req protocol.ChatRequest, onChunk func(protocol.StreamChunk)) (*protocol.ChatResponse, error) {
	oreq := toOpenAIRequest(req, g.model, true)
	stream, err := g.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	defer stream.Close()

	var content, finishReason string
	var toolCallAcc []openai.ToolCall

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if content != "" {
				break
			}
			return nil, fmt.Errorf("stream recv: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
		if delta := choice.Delta.Content; delta != "" {
			content += delta
			if onChunk != nil {
				onChunk(protocol.StreamChunk{Content: delta})
			}
		}
		toolCallAcc = accumulateToolCallDeltas(toolCallAcc, choice.Delta.ToolCalls)
	}
	if onChunk != nil {
		onChunk(protocol.StreamChunk{Done: true})
	}

	resp := &protocol.ChatResponse{
		Content:      content,
		FinishReason: finishReason,
		ToolCalls:    toolCallsFromOpenAI(toolCallAcc),
	}
	if resp.FinishReason == "" {
		resp.FinishReason = "stop"
	}
	return resp, nil
}

// accumulateToolCallDeltas merges incremental tool_call deltas by index,
// since a streamed function call's name/arguments arrive across chunks.
func accumulateToolCallDeltas(acc []openai.ToolCall, deltas []openai.ToolCall) []openai.ToolCall {
	for _, d := range deltas {
		idx := 0
		if d.Index != nil {
			idx = *d.Index
		}
		for len(acc) <= idx {
			acc = append(acc, openai.ToolCall{Type: openai.ToolTypeFunction})
		}
		if d.ID != "" {
			acc[idx].ID = d.ID
		}
		if d.Function.Name != "" {
			acc[idx].Function.Name += d.Function.Name
		}
		acc[idx].Function.Arguments += d.Function.Arguments
	}
	return acc
}

func toOpenAIRequest(req protocol.ChatRequest, fallbackModel string, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = fallbackModel
	}
	oreq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   stream,
	}
	if len(req.Tools) > 0 {
		oreq.Tools = toOpenAITools(req.Tools)
	}
	applySampling(&oreq, req.Options)
	return oreq
}

func toOpenAIMessages(msgs []protocol.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			out[i].ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				out[i].ToolCalls[j] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: mustMarshalArgs(tc.Arguments),
					},
				}
			}
		}
	}
	return out
}

func toOpenAITools(defs []protocol.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(defs))
	for i, d := range defs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  d.Function.Parameters,
			},
		}
	}
	return out
}

func applySampling(req *openai.ChatCompletionRequest, opts map[string]interface{}) {
	if v, ok := opts[protocol.OptTemperature].(float64); ok {
		req.Temperature = float32(v)
	}
	if v, ok := opts[protocol.OptTopP].(float64); ok {
		req.TopP = float32(v)
	}
	if v, ok := opts[protocol.OptFrequencyPenalty].(float64); ok {
		req.FrequencyPenalty = float32(v)
	}
	if v, ok := opts[protocol.OptPresencePenalty].(float64); ok {
		req.PresencePenalty = float32(v)
	}
	if v, ok := opts[protocol.OptMaxTokens].(int); ok {
		req.MaxTokens = v
	}
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) *protocol.ChatResponse {
	choice := resp.Choices[0]
	out := &protocol.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		ToolCalls:    toolCallsFromOpenAI(choice.Message.ToolCalls),
	}
	if out.FinishReason == "" {
		out.FinishReason = "stop"
	}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &protocol.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out
}

func toolCallsFromOpenAI(calls []openai.ToolCall) []protocol.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]protocol.ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.Function.Name == "" {
			continue
		}
		out = append(out, protocol.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: unmarshalArgs(c.Function.Arguments),
			Origin:    protocol.OriginNative,
		})
	}
	return out
}

func mustMarshalArgs(args map[string]interface{}) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalArgs(raw string) map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
