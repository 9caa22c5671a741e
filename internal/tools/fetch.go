package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jyasuu/llm-playground/internal/logger"
)

// FetchToolName is the builtin HTTP request tool.
const FetchToolName = "fetch"

const (
	fetchTimeout      = 30 * time.Second
	fetchMaxBodyBytes = 1 << 20
)

// Fetcher performs HTTP requests on behalf of the fetch tool.
type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// FetchDefinition returns the builtin fetch tool definition.
func FetchDefinition() Definition {
	return Definition{
		Name:        FetchToolName,
		Description: "Make an HTTP request to a URL and return status, headers and body",
		Kind:        KindBuiltin,
		Enabled:     true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The URL to request",
				},
				"method": map[string]any{
					"type":        "string",
					"description": "HTTP method, defaults to GET",
				},
				"headers": map[string]any{
					"type":        "object",
					"description": "Request headers as key/value pairs",
				},
				"payload": map[string]any{
					"type":        "string",
					"description": "Request body for POST/PUT requests",
				},
			},
			"required": []string{"url"},
		},
	}
}

// Fetch executes the request described by args. The response body is capped
// to keep tool results within a reasonable prompt size.
func (f *Fetcher) Fetch(ctx context.Context, args map[string]any) (map[string]any, error) {
	url, _ := args["url"].(string)
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("missing required parameter: url")
	}

	method := http.MethodGet
	if m, ok := args["method"].(string); ok && strings.TrimSpace(m) != "" {
		method = strings.ToUpper(strings.TrimSpace(m))
	}

	var body io.Reader
	if payload, ok := args["payload"].(string); ok && payload != "" {
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if headers, ok := args["headers"].(map[string]any); ok {
		for key, value := range headers {
			if str, ok := value.(string); ok {
				req.Header.Set(key, str)
			}
		}
	}

	logger.Debug("fetch tool: %s %s", method, url)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	responseHeaders := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		responseHeaders[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status":      resp.StatusCode,
		"status_text": http.StatusText(resp.StatusCode),
		"headers":     responseHeaders,
		"body":        string(data),
	}, nil
}
