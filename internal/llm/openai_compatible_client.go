package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatibleClient implements the Client interface for APIs speaking
// the OpenAI chat-completions dialect. It deliberately talks raw HTTP so any
// base URL works without an SDK pin (LocalAI, LM Studio, Groq, OpenRouter,
// plus api.openai.com itself for chat-completions models).
type OpenAICompatibleClient struct {
	apiKey       string
	model        string
	baseURL      string
	providerName string
	httpClient   *http.Client
}

// NewOpenAICompatibleClient constructs a client for an OpenAI-compatible API.
// If apiKey is empty, requests are sent without Authorization headers, which
// is useful for unsecured local servers.
func NewOpenAICompatibleClient(apiKey, baseURL, modelName, providerName string) (*OpenAICompatibleClient, error) {
	model := strings.TrimSpace(modelName)
	if model == "" {
		return nil, fmt.Errorf("model name is required for OpenAI-compatible provider")
	}

	trimmedBase := strings.TrimSpace(baseURL)
	if trimmedBase == "" {
		return nil, fmt.Errorf("base URL is required for OpenAI-compatible provider")
	}

	if providerName == "" {
		providerName = "openai-compatible"
	}

	return &OpenAICompatibleClient{
		apiKey:       apiKey,
		model:        model,
		baseURL:      strings.TrimRight(trimmedBase, "/"),
		providerName: providerName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

func (c *OpenAICompatibleClient) GetModelName() string {
	return c.model
}

func (c *OpenAICompatibleClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("completion request cannot be nil")
	}

	payload, err := c.buildChatRequest(req, false)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newChatRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError(c.providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, NewAPIError(c.providerName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, NewMalformedError(c.providerName, err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil {
		return &CompletionResponse{StopReason: "stop"}, nil
	}

	first := chatResp.Choices[0]
	stopReason := first.FinishReason
	if strings.TrimSpace(stopReason) == "" {
		stopReason = "stop"
	}

	calls, err := convertWireToolCalls(first.Message.ToolCalls)
	if err != nil {
		return nil, NewMalformedError(c.providerName, err)
	}

	return &CompletionResponse{
		Content:       extractOpenAIText(first.Message.Content),
		FunctionCalls: calls,
		StopReason:    stopReason,
		Usage:         chatResp.Usage,
	}, nil
}

func (c *OpenAICompatibleClient) Stream(ctx context.Context, req *CompletionRequest, callback func(chunk string) error) error {
	if req == nil {
		return fmt.Errorf("completion request cannot be nil")
	}

	payload, err := c.buildChatRequest(req, true)
	if err != nil {
		return err
	}

	httpReq, err := c.newChatRequest(ctx, payload)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return NewNetworkError(c.providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return NewAPIError(c.providerName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return NewMalformedError(c.providerName, err)
		}

		for _, choice := range chunk.Choices {
			if choice.Delta == nil {
				continue
			}
			text := extractOpenAIText(choice.Delta.Content)
			if text == "" {
				continue
			}
			if err := callback(text); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return NewNetworkError(c.providerName, err)
	}

	return nil
}

func (c *OpenAICompatibleClient) buildChatRequest(req *CompletionRequest, stream bool) (*openAIChatRequest, error) {
	messages, err := convertMessagesToOpenAIWire(req)
	if err != nil {
		return nil, err
	}

	payload := &openAIChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   stream,
	}

	if req.Temperature > 0 {
		temp := req.Temperature
		payload.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}
	if req.TopP > 0 {
		topP := req.TopP
		payload.TopP = &topP
	}
	if len(req.Tools) > 0 {
		payload.Tools = convertToolsToOpenAIWire(req.Tools)
	}

	return payload, nil
}

func (c *OpenAICompatibleClient) newChatRequest(ctx context.Context, payload *openAIChatRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return req, nil
}

// Wire types for the chat-completions dialect.

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Tools       []openAIWireTool    `json:"tools,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

type openAIChatMessage struct {
	Role       string               `json:"role"`
	Content    any                  `json:"content"`
	Name       string               `json:"name,omitempty"`
	ToolCalls  []openAIWireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
}

type openAIWireToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIWireFunction `json:"function"`
}

type openAIWireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIWireTool struct {
	Type     string            `json:"type"`
	Function openAIWireToolDef `json:"function"`
}

type openAIWireToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIChatResponse struct {
	Choices []openAIChatChoice `json:"choices"`
	Usage   map[string]any     `json:"usage,omitempty"`
}

type openAIChatChoice struct {
	Message      *openAIChatMessage `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

type openAIStreamChunk struct {
	Choices []openAIStreamChoice `json:"choices"`
}

type openAIStreamChoice struct {
	Delta *openAIChatMessage `json:"delta"`
}

func convertMessagesToOpenAIWire(req *CompletionRequest) ([]openAIChatMessage, error) {
	messages := make([]openAIChatMessage, 0, len(req.Messages)+1)

	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: system})
	}

	for idx, msg := range req.Messages {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openAIChatMessage{Role: "system", Content: msg.Content})
		case RoleUser:
			messages = append(messages, openAIChatMessage{Role: "user", Content: msg.Content})
		case RoleAssistant:
			oMsg := openAIChatMessage{Role: "assistant", Content: msg.Content}
			for _, fc := range msg.FunctionCalls {
				oMsg.ToolCalls = append(oMsg.ToolCalls, openAIWireToolCall{
					ID:   fc.ID,
					Type: "function",
					Function: openAIWireFunction{
						Name:      fc.Name,
						Arguments: marshalArguments(fc.Arguments),
					},
				})
			}
			messages = append(messages, oMsg)
		case RoleTool:
			for _, fr := range msg.FunctionResponses {
				messages = append(messages, openAIChatMessage{
					Role:       "tool",
					Content:    marshalPayload(fr.Content),
					Name:       fr.Name,
					ToolCallID: fr.ID,
				})
			}
		default:
			return nil, fmt.Errorf("unmapped message role %q at index %d", msg.Role, idx)
		}
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("completion requires at least one message")
	}

	return messages, nil
}

func convertToolsToOpenAIWire(tools []ToolSchema) []openAIWireTool {
	result := make([]openAIWireTool, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		result = append(result, openAIWireTool{
			Type: "function",
			Function: openAIWireToolDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return result
}

func convertWireToolCalls(calls []openAIWireToolCall) ([]FunctionCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	result := make([]FunctionCall, 0, len(calls))
	for _, tc := range calls {
		if tc.Function.Name == "" {
			continue
		}
		args, err := unmarshalArguments(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("tool call %q has invalid arguments: %w", tc.Function.Name, err)
		}
		result = append(result, FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return NormalizeFunctionCallIDs(result), nil
}

// extractOpenAIText flattens the content field, which some servers send as a
// string and others as a list of typed parts.
func extractOpenAIText(content any) string {
	switch value := content.(type) {
	case nil:
		return ""
	case string:
		return value
	case []any:
		var sb strings.Builder
		for _, part := range value {
			sb.WriteString(extractOpenAIText(part))
		}
		return sb.String()
	case map[string]any:
		if text, ok := value["text"].(string); ok {
			return text
		}
		if inner, ok := value["content"]; ok {
			return extractOpenAIText(inner)
		}
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(value, &decoded); err == nil {
			return extractOpenAIText(decoded)
		}
	}
	return ""
}

func marshalArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func unmarshalArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	args := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func marshalPayload(payload map[string]any) string {
	if payload == nil {
		return "{}"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}
