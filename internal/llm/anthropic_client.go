package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 2048
)

// AnthropicClient implements the Client interface using the official Anthropic SDK.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates an Anthropic client backed by the official SDK.
func NewAnthropicClient(apiKey, modelName string) (Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic client requires an API key")
	}

	model := strings.TrimSpace(modelName)
	if model == "" {
		model = defaultAnthropicModel
	}

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(key)),
		model:  model,
	}, nil
}

func (c *AnthropicClient) GetModelName() string {
	return c.model
}

func (c *AnthropicClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	params, err := c.buildMessageParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(err)
	}

	return buildAnthropicCompletionResponse(msg), nil
}

func (c *AnthropicClient) Stream(ctx context.Context, req *CompletionRequest, callback func(chunk string) error) error {
	params, err := c.buildMessageParams(req)
	if err != nil {
		return err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	if stream == nil {
		return NewNetworkError("anthropic", fmt.Errorf("no stream returned"))
	}
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()

		deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}

		textDelta, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta)
		if !ok {
			continue
		}

		if textDelta.Text == "" {
			continue
		}

		if err := callback(textDelta.Text); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return wrapAnthropicError(err)
	}

	return nil
}

func (c *AnthropicClient) buildMessageParams(req *CompletionRequest) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic completion request cannot be nil")
	}

	systemBlocks, chatMessages, err := convertMessagesToAnthropic(req.SystemPrompt, req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if len(chatMessages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic completion requires at least one user or assistant message")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  chatMessages,
	}

	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}

	return params, nil
}

func buildAnthropicCompletionResponse(msg *anthropic.Message) *CompletionResponse {
	if msg == nil {
		return &CompletionResponse{}
	}

	stopReason := string(msg.StopReason)
	if stopReason == "" {
		stopReason = msg.StopSequence
	}

	return &CompletionResponse{
		Content:       collectAnthropicText(msg.Content),
		FunctionCalls: convertAnthropicFunctionCalls(msg.Content),
		StopReason:    stopReason,
		Usage: map[string]any{
			"input_tokens":  msg.Usage.InputTokens,
			"output_tokens": msg.Usage.OutputTokens,
		},
	}
}

func convertMessagesToAnthropic(systemPrompt string, messages []*Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	systemBlocks := make([]anthropic.TextBlockParam, 0, 1)
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: sys})
	}

	chatMessages := make([]anthropic.MessageParam, 0, len(messages))
	for idx, msg := range messages {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case RoleSystem:
			if text := strings.TrimSpace(msg.Content); text != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: text})
			}
		case RoleAssistant:
			blocks := buildAnthropicAssistantBlocks(msg)
			if len(blocks) == 0 {
				continue
			}
			chatMessages = append(chatMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case RoleTool:
			blocks := buildAnthropicToolResultBlocks(msg)
			if len(blocks) == 0 {
				continue
			}
			chatMessages = append(chatMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: blocks,
			})
		case RoleUser:
			if msg.Content == "" {
				continue
			}
			chatMessages = append(chatMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
			})
		default:
			return nil, nil, fmt.Errorf("unmapped message role %q at index %d", msg.Role, idx)
		}
	}

	return systemBlocks, chatMessages, nil
}

func buildAnthropicAssistantBlocks(msg *Message) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.FunctionCalls))

	if msg.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}

	for idx, call := range msg.FunctionCalls {
		callID := strings.TrimSpace(call.ID)
		if callID == "" {
			callID = fmt.Sprintf("tool_call_%d", idx)
		}
		var input any = map[string]any{}
		if call.Arguments != nil {
			input = call.Arguments
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(callID, input, call.Name))
	}

	return blocks
}

func buildAnthropicToolResultBlocks(msg *Message) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.FunctionResponses))
	for _, fr := range msg.FunctionResponses {
		if fr.ID == "" {
			continue
		}
		blocks = append(blocks, anthropic.NewToolResultBlock(fr.ID, marshalPayload(fr.Content), fr.IsError()))
	}
	return blocks
}

func convertAnthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, schema := range tools {
		if schema.Name == "" {
			continue
		}

		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if params := schema.Parameters; params != nil {
			if props, ok := params["properties"]; ok {
				inputSchema.Properties = props
			}
			if req := extractStringSlice(params["required"]); len(req) > 0 {
				inputSchema.Required = req
			}
			if extras := copyExtraFields(params, "type", "properties", "required"); len(extras) > 0 {
				inputSchema.ExtraFields = extras
			}
		}

		tool := &anthropic.ToolParam{
			Name:        schema.Name,
			InputSchema: inputSchema,
			Type:        anthropic.ToolTypeCustom,
		}
		if schema.Description != "" {
			tool.Description = anthropic.String(schema.Description)
		}

		result = append(result, anthropic.ToolUnionParam{OfTool: tool})
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func collectAnthropicText(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Text)
	}
	return sb.String()
}

func convertAnthropicFunctionCalls(blocks []anthropic.ContentBlockUnion) []FunctionCall {
	var calls []FunctionCall
	for _, block := range blocks {
		if block.Type != "tool_use" {
			continue
		}

		args, err := unmarshalArguments(string(block.Input))
		if err != nil {
			args = map[string]any{}
		}

		calls = append(calls, FunctionCall{
			ID:        block.ID,
			Name:      block.Name,
			Arguments: args,
		})
	}
	return NormalizeFunctionCallIDs(calls)
}

func extractStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok && str != "" {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}

func copyExtraFields(src map[string]any, skip ...string) map[string]any {
	if len(src) == 0 {
		return nil
	}
	skipSet := make(map[string]struct{}, len(skip))
	for _, key := range skip {
		skipSet[key] = struct{}{}
	}

	extras := make(map[string]any)
	for key, val := range src {
		if _, shouldSkip := skipSet[key]; shouldSkip {
			continue
		}
		extras[key] = val
	}

	if len(extras) == 0 {
		return nil
	}
	return extras
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewAPIError("anthropic", apiErr.StatusCode, apiErr.Error())
	}
	return NewNetworkError("anthropic", err)
}
