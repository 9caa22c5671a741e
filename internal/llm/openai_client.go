package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements the Client interface using OpenAI's Responses API
// via the official SDK. Chat-completions-only models are routed through the
// OpenAI-compatible HTTP client instead; see NewOpenAIClient.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs a client that talks to the OpenAI API, choosing
// the Responses API or the chat-completions dialect based on the model.
func NewOpenAIClient(apiKey, modelName string) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai client requires an API key")
	}

	model := strings.TrimSpace(modelName)
	if model == "" {
		model = "gpt-4o-mini"
	}

	if !requiresResponsesAPI(model) {
		return NewOpenAICompatibleClient(apiKey, openAIDefaultBaseURL, model, "openai")
	}

	apiClient := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{
		client: &apiClient,
		model:  model,
	}, nil
}

func requiresResponsesAPI(modelName string) bool {
	model := strings.TrimSpace(strings.ToLower(modelName))
	if model == "" {
		return false
	}

	if strings.HasPrefix(model, "gpt-5") {
		return true
	}
	if strings.Contains(model, "codex") {
		return true
	}
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") {
		return true
	}

	return false
}

func (c *OpenAIClient) GetModelName() string {
	return c.model
}

func (c *OpenAIClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("openai completion request cannot be nil")
	}

	params, err := c.buildResponsesParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	return convertResponsesCompletion(resp)
}

func (c *OpenAIClient) Stream(ctx context.Context, req *CompletionRequest, callback func(chunk string) error) error {
	if req == nil {
		return fmt.Errorf("openai completion request cannot be nil")
	}

	params, err := c.buildResponsesParams(req)
	if err != nil {
		return err
	}

	stream := c.client.Responses.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		if event.Type != "response.output_text.delta" {
			continue
		}

		delta := event.AsResponseOutputTextDelta()
		if delta.Delta == "" {
			continue
		}

		if err := callback(delta.Delta); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return wrapOpenAIError(err)
	}

	return nil
}

func (c *OpenAIClient) buildResponsesParams(req *CompletionRequest) (responses.ResponseNewParams, error) {
	inputItems, err := buildResponsesInput(req.Messages)
	if err != nil {
		return responses.ResponseNewParams{}, err
	}

	if len(inputItems) == 0 {
		return responses.ResponseNewParams{}, fmt.Errorf("no messages provided")
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: inputItems,
		},
	}

	if req.SystemPrompt != "" {
		params.Instructions = openai.String(req.SystemPrompt)
	}
	if req.Temperature > 0 && !isOpenAITemperatureUnsupported(c.model) {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertResponsesTools(req.Tools)
	}

	return params, nil
}

func buildResponsesInput(messages []*Message) (responses.ResponseInputParam, error) {
	input := make(responses.ResponseInputParam, 0, len(messages))

	for idx, msg := range messages {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case RoleTool:
			for _, fr := range msg.FunctionResponses {
				if fr.ID == "" {
					continue
				}
				input = append(input, responses.ResponseInputItemParamOfFunctionCallOutput(fr.ID, marshalPayload(fr.Content)))
			}
		case RoleAssistant:
			if strings.TrimSpace(msg.Content) != "" {
				input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, fc := range msg.FunctionCalls {
				input = append(input, responses.ResponseInputItemParamOfFunctionCall(marshalArguments(fc.Arguments), fc.ID, fc.Name))
			}
		case RoleSystem:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleSystem))
		case RoleUser:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		default:
			return nil, fmt.Errorf("unmapped message role %q at index %d", msg.Role, idx)
		}
	}

	return input, nil
}

func convertResponsesTools(tools []ToolSchema) []responses.ToolUnionParam {
	result := make([]responses.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}

		variant := responses.ToolParamOfFunction(tool.Name, tool.Parameters, false)
		if tool.Description != "" && variant.OfFunction != nil {
			variant.OfFunction.Description = openai.String(tool.Description)
		}

		result = append(result, variant)
	}
	return result
}

func convertResponsesCompletion(resp *responses.Response) (*CompletionResponse, error) {
	if resp == nil {
		return &CompletionResponse{}, nil
	}

	calls, err := extractResponsesFunctionCalls(resp.Output)
	if err != nil {
		return nil, NewMalformedError("openai", err)
	}

	return &CompletionResponse{
		Content:       resp.OutputText(),
		FunctionCalls: calls,
		StopReason:    string(resp.Status),
	}, nil
}

func extractResponsesFunctionCalls(items []responses.ResponseOutputItemUnion) ([]FunctionCall, error) {
	var calls []FunctionCall
	for _, item := range items {
		if item.Type != "function_call" {
			continue
		}

		call := item.AsFunctionCall()
		identifier := call.CallID
		if identifier == "" {
			identifier = call.ID
		}

		args, err := unmarshalArguments(call.Arguments)
		if err != nil {
			return nil, fmt.Errorf("function call %q has invalid arguments: %w", call.Name, err)
		}

		calls = append(calls, FunctionCall{
			ID:        identifier,
			Name:      call.Name,
			Arguments: args,
		})
	}
	return NormalizeFunctionCallIDs(calls), nil
}

func isOpenAITemperatureUnsupported(modelName string) bool {
	model := strings.ToLower(strings.TrimSpace(modelName))
	if model == "" {
		return false
	}
	return strings.Contains(model, "o1") ||
		strings.Contains(model, "o3") ||
		strings.HasPrefix(model, "gpt-5") ||
		strings.Contains(model, "reasoning")
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return NewAPIError("openai", apiErr.StatusCode, apiErr.Error())
	}
	return NewNetworkError("openai", err)
}
