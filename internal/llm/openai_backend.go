package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openAIBackend implements chatBackend against any OpenAI-compatible
// chat-completions endpoint via a custom BaseURL, so self-hosted and
// third-party-compatible model servers work without a dedicated backend.
type openAIBackend struct{}

func (openAIBackend) Complete(ctx context.Context, bundle ClientBundle, messages []Message, tools []Tool) (ChatResponse, error) {
	cfg := openai.DefaultConfig(bundle.APIKey)
	if bundle.BaseURL != "" {
		cfg.BaseURL = bundle.BaseURL
	}
	client := openai.NewClientWithConfig(cfg)

	req := openai.ChatCompletionRequest{
		Model:    bundle.Model,
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ChatResponse{}, wrapOpenAIError(err)
	}
	return fromOpenAIResponse(resp), nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) ChatResponse {
	choices := make([]Choice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		msg := Message{
			Role:    c.Message.Role,
			Content: c.Message.Content,
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
		choices = append(choices, Choice{
			Message:      msg,
			FinishReason: string(c.FinishReason),
		})
	}
	return ChatResponse{
		Choices: choices,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		return &APIError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	return fmt.Errorf("openai backend: %w", err)
}

func asAPIError(err error, target **openai.APIError) bool {
	if apiErr, ok := err.(*openai.APIError); ok {
		*target = apiErr
		return true
	}
	return false
}
