package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicBackend implements chatBackend against Anthropic's native
// Messages API as a single non-streaming call: the router has no use for
// token-by-token deltas, only the final message.
type anthropicBackend struct{}

func (anthropicBackend) Complete(ctx context.Context, bundle ClientBundle, messages []Message, tools []Tool) (ChatResponse, error) {
	opts := []option.RequestOption{option.WithAPIKey(bundle.APIKey)}
	if bundle.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(bundle.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	system, turns := splitSystemPrompt(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(bundle.Model),
		MaxTokens: 4096,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return ChatResponse{}, wrapAnthropicError(err)
	}
	return fromAnthropicMessage(msg), nil
}

func splitSystemPrompt(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		switch m.Role {
		case "user":
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, turns
}

func toAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &schema)
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			},
		})
	}
	return out
}

func fromAnthropicMessage(msg *anthropic.Message) ChatResponse {
	var text string
	var calls []ToolCall
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += variant.Text
		case anthropic.ToolUseBlock:
			calls = append(calls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: json.RawMessage(variant.Input),
			})
		}
	}
	return ChatResponse{
		Choices: []Choice{{
			Message: Message{
				Role:      "assistant",
				Content:   text,
				ToolCalls: calls,
			},
			FinishReason: string(msg.StopReason),
		}},
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		return &APIError{Status: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return fmt.Errorf("anthropic backend: %w", err)
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	if apiErr, ok := err.(*anthropic.Error); ok {
		*target = apiErr
		return true
	}
	return false
}
