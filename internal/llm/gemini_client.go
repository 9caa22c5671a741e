package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient implements the Client interface using the official Google GenAI SDK.
type GeminiClient struct {
	modelName string
	client    *genai.Client
}

// NewGeminiClient creates a Google GenAI client for the provided model.
func NewGeminiClient(apiKey, modelName string) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini client requires an API key")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google GenAI client: %w", err)
	}

	return &GeminiClient{
		modelName: normalizeGeminiModelName(modelName),
		client:    client,
	}, nil
}

func (c *GeminiClient) GetModelName() string {
	return c.modelName
}

func (c *GeminiClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("gemini completion request cannot be nil")
	}

	contents, err := convertMessagesToGenAI(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return &CompletionResponse{}, nil
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, buildGenAIConfig(req))
	if err != nil {
		return nil, wrapGenAIError(err)
	}

	return buildGenAICompletionResponse(resp)
}

func (c *GeminiClient) Stream(ctx context.Context, req *CompletionRequest, callback func(chunk string) error) error {
	if req == nil {
		return fmt.Errorf("gemini completion request cannot be nil")
	}

	contents, err := convertMessagesToGenAI(req.Messages)
	if err != nil {
		return err
	}
	if len(contents) == 0 {
		return nil
	}

	stream := c.client.Models.GenerateContentStream(ctx, c.modelName, contents, buildGenAIConfig(req))
	for result, err := range stream {
		if err != nil {
			return wrapGenAIError(err)
		}
		if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
			continue
		}
		chunk := collectGenAIText(result.Candidates[0].Content)
		if chunk == "" {
			continue
		}
		if err := callback(chunk); err != nil {
			return err
		}
	}
	return nil
}

func buildGenAICompletionResponse(resp *genai.GenerateContentResponse) (*CompletionResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		stop := ""
		if resp != nil && resp.PromptFeedback != nil {
			stop = string(resp.PromptFeedback.BlockReason)
		}
		return &CompletionResponse{StopReason: stop}, nil
	}

	candidate := resp.Candidates[0]
	stopReason := string(candidate.FinishReason)
	if stopReason == "" {
		stopReason = candidate.FinishMessage
	}

	return &CompletionResponse{
		Content:       collectGenAIText(candidate.Content),
		FunctionCalls: convertGenAIFunctionCalls(candidate.Content),
		StopReason:    stopReason,
	}, nil
}

func collectGenAIText(content *genai.Content) string {
	if content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func convertGenAIFunctionCalls(content *genai.Content) []FunctionCall {
	if content == nil {
		return nil
	}

	var calls []FunctionCall
	for _, part := range content.Parts {
		if part == nil || part.FunctionCall == nil {
			continue
		}

		args := make(map[string]any, len(part.FunctionCall.Args))
		for key, value := range part.FunctionCall.Args {
			args[key] = value
		}

		calls = append(calls, FunctionCall{
			ID:        part.FunctionCall.ID,
			Name:      part.FunctionCall.Name,
			Arguments: args,
		})
	}
	return NormalizeFunctionCallIDs(calls)
}

func convertMessagesToGenAI(messages []*Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for idx, msg := range messages {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case RoleAssistant:
			contents = append(contents, convertGenAIAssistantMessage(msg))
		case RoleTool:
			content := convertGenAIToolMessage(msg)
			if content != nil {
				contents = append(contents, content)
			}
		case RoleSystem, RoleUser:
			if msg.Content == "" {
				continue
			}
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		default:
			return nil, fmt.Errorf("unmapped message role %q at index %d", msg.Role, idx)
		}
	}
	return contents, nil
}

func convertGenAIAssistantMessage(msg *Message) *genai.Content {
	parts := make([]*genai.Part, 0, len(msg.FunctionCalls)+1)

	if msg.Content != "" {
		parts = append(parts, genai.NewPartFromText(msg.Content))
	}

	for _, call := range msg.FunctionCalls {
		args := call.Arguments
		if args == nil {
			args = map[string]any{}
		}
		part := genai.NewPartFromFunctionCall(call.Name, args)
		if call.ID != "" {
			part.FunctionCall.ID = call.ID
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(""))
	}

	return genai.NewContentFromParts(parts, genai.RoleModel)
}

func convertGenAIToolMessage(msg *Message) *genai.Content {
	parts := make([]*genai.Part, 0, len(msg.FunctionResponses))
	for _, fr := range msg.FunctionResponses {
		payload := fr.Content
		if payload == nil {
			payload = map[string]any{}
		}
		part := genai.NewPartFromFunctionResponse(fr.Name, payload)
		if fr.ID != "" {
			part.FunctionResponse.ID = fr.ID
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return nil
	}
	return genai.NewContentFromParts(parts, genai.RoleUser)
}

func buildGenAIConfig(req *CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}
	if req.TopP > 0 {
		topP := float32(req.TopP)
		cfg.TopP = &topP
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = convertToolsToGenAI(req.Tools)
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}

	return cfg
}

func convertToolsToGenAI(tools []ToolSchema) []*genai.Tool {
	result := make([]*genai.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}

		decl := &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if tool.Parameters != nil {
			decl.ParametersJsonSchema = tool.Parameters
		}

		result = append(result, &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{decl}})
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func wrapGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return NewAPIError("gemini", apiErr.Code, apiErr.Message)
	}
	return NewNetworkError("gemini", err)
}

func normalizeGeminiModelName(modelName string) string {
	trimmed := strings.TrimSpace(modelName)
	if trimmed == "" {
		return "models/gemini-2.0-flash"
	}

	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "models/") || strings.HasPrefix(lowered, "publishers/") {
		return trimmed
	}

	return "models/" + trimmed
}
