// Package llama talks to a locally hosted llama.cpp server through its
// OpenAI-compatible chat completions API.
package llama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/llamagram/llamagram/internal/chat"
	"github.com/llamagram/llamagram/internal/functions"
)

// maxToolRounds bounds the declare-call-resolve loop so a model that keeps
// requesting functions cannot spin forever.
const maxToolRounds = 3

// Params are the generation parameters sent with every completion. TopK,
// MinP and RepeatPenalty are llama.cpp extensions outside the OpenAI
// surface and travel as extra JSON fields.
type Params struct {
	MaxTokens     int
	Temperature   float64
	TopK          int
	TopP          float64
	MinP          float64
	RepeatPenalty float64
}

// Client streams chat completions from a llama.cpp server.
type Client struct {
	oai      openai.Client
	baseURL  string
	model    string
	params   Params
	registry *functions.Registry
}

// NewClient creates a client for the server at baseURL (the /v1 endpoint of
// llama-server). registry may be nil to disable function calling.
func NewClient(baseURL, apiKey, model string, params Params, registry *functions.Registry) *Client {
	return &Client{
		oai:      openai.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey(apiKey)),
		baseURL:  baseURL,
		model:    model,
		params:   params,
		registry: registry,
	}
}

// Ping verifies the server is reachable and has a model loaded. Used as a
// startup health check; failure is fatal for the process.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.oai.Models.List(ctx); err != nil {
		return fmt.Errorf("llama server unreachable at %s: %w", c.baseURL, err)
	}
	return nil
}

// Complete streams one completion for the ordered prompt, invoking
// onFragment for each content fragment in production order. When the model
// answers with function calls instead of content, registered handlers run
// and a follow-up completion produces the reply; only content fragments
// ever reach onFragment.
func (c *Client) Complete(ctx context.Context, turns []chat.Turn, onFragment func(string) error) error {
	msgs := toMessages(turns)

	for round := 0; ; round++ {
		withTools := c.registry != nil && c.registry.Len() > 0 && round < maxToolRounds
		acc, err := c.streamOnce(ctx, msgs, withTools, onFragment)
		if err != nil {
			return err
		}
		if len(acc.Choices) == 0 || len(acc.Choices[0].Message.ToolCalls) == 0 {
			return nil
		}

		msgs = append(msgs, acc.Choices[0].Message.ToParam())
		for _, tc := range acc.Choices[0].Message.ToolCalls {
			result, callErr := c.registry.Call(ctx, tc.Function.Name, json.RawMessage(tc.Function.Arguments))
			if callErr != nil {
				result = "function error: " + callErr.Error()
			}
			msgs = append(msgs, openai.ToolMessage(result, tc.ID))
		}
	}
}

func (c *Client) streamOnce(
	ctx context.Context,
	msgs []openai.ChatCompletionMessageParamUnion,
	withTools bool,
	onFragment func(string) error,
) (openai.ChatCompletionAccumulator, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    msgs,
		MaxTokens:   openai.Int(int64(c.params.MaxTokens)),
		Temperature: openai.Float(c.params.Temperature),
		TopP:        openai.Float(c.params.TopP),
	}
	if withTools {
		params.Tools = toolParams(c.registry.Specs())
	}

	stream := c.oai.Chat.Completions.NewStreaming(ctx, params,
		option.WithJSONSet("top_k", c.params.TopK),
		option.WithJSONSet("min_p", c.params.MinP),
		option.WithJSONSet("repeat_penalty", c.params.RepeatPenalty),
	)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := onFragment(delta); err != nil {
				return acc, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return acc, fmt.Errorf("llama completion stream failed: %w", err)
	}
	return acc, nil
}

func toMessages(turns []chat.Turn) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case chat.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		case chat.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	return msgs
}

func toolParams(specs []functions.Spec) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        s.Name,
			Description: openai.String(s.Description),
			Parameters:  openai.FunctionParameters(s.Parameters),
		}))
	}
	return tools
}
