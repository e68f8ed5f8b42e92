// Package openai adapts the official openai-go SDK to the engine's
// conversation types. The reasoning service sees the full trimmed history
// plus the tool schema on every request and answers with either final
// content or a batch of tool calls.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"lexreview/engine/internal/llm"
)

const defaultTemperature = 0.2

// Client is a thin wrapper over the SDK pinned to one model.
type Client struct {
	api         oa.Client
	model       string
	temperature float64
}

// Option configures a Client.
type Option func(*Client, *[]option.RequestOption)

// WithBaseURL points the client at a different endpoint (tests, proxies,
// Azure-compatible gateways).
func WithBaseURL(baseURL string) Option {
	return func(_ *Client, opts *[]option.RequestOption) {
		if baseURL != "" {
			*opts = append(*opts, option.WithBaseURL(baseURL))
		}
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client, _ *[]option.RequestOption) {
		c.temperature = t
	}
}

// WithHTTPClient swaps the underlying HTTP client, typically to install an
// egress-controlled transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(_ *Client, opts *[]option.RequestOption) {
		if httpClient != nil {
			*opts = append(*opts, option.WithHTTPClient(httpClient))
		}
	}
}

// NewClient builds a client for the given API key and model.
func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{model: model, temperature: defaultTemperature}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		opt(c, &reqOpts)
	}
	c.api = oa.NewClient(reqOpts...)
	return c
}

// ValidateKey performs a cheap authenticated request to verify the key.
func (c *Client) ValidateKey(ctx context.Context) error {
	_, err := c.api.Models.List(ctx)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// ChatWithTools runs one completion over the full history with the tool
// schema enabled.
func (c *Client) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool) (llm.ChatResponse, error) {
	params := oa.ChatCompletionNewParams{
		Model:       oa.ChatModel(c.model),
		Messages:    toMessageParams(messages),
		Temperature: oa.Float(c.temperature),
	}
	if len(tools) > 0 {
		params.Tools = toToolParams(tools)
	}
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.ChatResponse{}, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("openai: empty choices: %w", llm.ErrUnavailable)
	}
	choice := resp.Choices[0]
	out := llm.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: llm.ToolCallFunction{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return out, nil
}

func toMessageParams(messages []llm.ChatMessage) []oa.ChatCompletionMessageParamUnion {
	out := make([]oa.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, oa.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, oa.AssistantMessage(msg.Content))
				continue
			}
			assistant := oa.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = oa.String(msg.Content)
			}
			for _, call := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, oa.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: oa.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				})
			}
			out = append(out, oa.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case llm.RoleTool:
			out = append(out, oa.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, oa.UserMessage(msg.Content))
		}
	}
	return out
}

func toToolParams(tools []llm.Tool) []oa.ChatCompletionToolParam {
	out := make([]oa.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		var params map[string]any
		_ = json.Unmarshal(tool.Function.Parameters, &params)
		out = append(out, oa.ChatCompletionToolParam{
			Function: oa.FunctionDefinitionParam{
				Name:        tool.Function.Name,
				Description: oa.String(tool.Function.Description),
				Parameters:  oa.FunctionParameters(params),
			},
		})
	}
	return out
}

func mapError(err error) error {
	var apiErr *oa.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Errorf("%w: %s", llm.ErrUnauthorized, apiErr.Message)
		case apiErr.StatusCode == 429:
			return fmt.Errorf("%w: %s", llm.ErrRateLimited, apiErr.Message)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %s", llm.ErrUnavailable, apiErr.Message)
		}
	}
	return err
}
