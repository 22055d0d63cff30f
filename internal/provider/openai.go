package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/stellarlinkco/coachd/internal/config"
)

type openaiClient struct {
	completions openaiChatCompletions
	model       string
	maxTokens   int
}

type openaiChatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// NewOpenAI wires an openai-go chat-completions client into the Client
// contract. Also used for OpenAI-compatible proxies via BaseURL.
func NewOpenAI(pc config.ProviderConfig) (Client, error) {
	apiKey := strings.TrimSpace(pc.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if pc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(pc.BaseURL))
	}

	client := openai.NewClient(opts...)
	maxTokens := pc.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}

	return &openaiClient{
		completions: &client.Chat.Completions,
		model:       strings.TrimSpace(pc.Model),
		maxTokens:   maxTokens,
	}, nil
}

func (c *openaiClient) Name() string {
	return "openai/" + c.model
}

func (c *openaiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	params := c.buildParams(req)

	completion, err := c.completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai complete: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return nil, errors.New("openai complete: empty choices")
	}

	choice := completion.Choices[0]
	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseJSONArgs(tc.Function.Arguments),
		})
	}

	return &Response{
		Message: Message{
			Role:      "assistant",
			Content:   choice.Message.Content,
			ToolCalls: toolCalls,
		},
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
		StopReason: choice.FinishReason,
	}, nil
}

func (c *openaiClient) buildParams(req Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion

	if sys := strings.TrimSpace(req.System); sys != "" {
		messages = append(messages, openai.SystemMessage(sys))
	}

	for _, msg := range req.Messages {
		switch strings.ToLower(strings.TrimSpace(msg.Role)) {
		case "system":
			if trimmed := strings.TrimSpace(msg.Content); trimmed != "" {
				messages = append(messages, openai.SystemMessage(trimmed))
			}
		case "assistant":
			messages = append(messages, openaiAssistantMessage(msg))
		case "tool":
			for _, call := range msg.ToolCalls {
				if call.ID == "" {
					continue
				}
				content := call.Result
				if strings.TrimSpace(content) == "" {
					content = msg.Content
				}
				messages = append(messages, openai.ToolMessage(content, call.ID))
			}
		default:
			content := msg.Content
			if strings.TrimSpace(content) == "" {
				content = "."
			}
			messages = append(messages, openai.UserMessage(content))
		}
	}
	if len(messages) == 0 {
		messages = append(messages, openai.UserMessage("."))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		Messages:            messages,
	}
	if len(req.Tools) > 0 {
		params.Tools = openaiTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

func openaiAssistantMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}

	content := msg.Content
	if strings.TrimSpace(content) == "" {
		content = "."
	}
	assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
		OfString: openai.String(content),
	}

	if len(msg.ToolCalls) > 0 {
		var toolCalls []openai.ChatCompletionMessageToolCallParam
		for _, call := range msg.ToolCalls {
			if call.ID == "" || call.Name == "" {
				continue
			}
			argsJSON, _ := json.Marshal(call.Arguments)
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      call.Name,
					Arguments: string(argsJSON),
				},
			})
		}
		assistant.ToolCalls = toolCalls
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func openaiTools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, def := range tools {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			continue
		}
		params := make(shared.FunctionParameters, len(def.Parameters)+1)
		for k, v := range def.Parameters {
			params[k] = v
		}
		if _, ok := params["type"]; !ok {
			params["type"] = "object"
		}
		tool := openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:       name,
				Parameters: params,
			},
		}
		if desc := strings.TrimSpace(def.Description); desc != "" {
			tool.Function.Description = openai.String(desc)
		}
		result = append(result, tool)
	}
	return result
}

func parseJSONArgs(raw string) map[string]any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return map[string]any{"raw": raw}
	}
	return v
}
