package tools

import (
	"github.com/jyasuu/llm-playground/internal/llm"
)

// Kind distinguishes how a tool call is satisfied.
type Kind string

const (
	// KindBuiltin tools run a real local implementation.
	KindBuiltin Kind = "builtin"
	// KindMockStatic tools return a canned payload from configuration.
	KindMockStatic Kind = "mock"
	// KindDiscovered tools are proxied to an external tool server.
	KindDiscovered Kind = "discovered"
)

// Definition describes one callable tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Kind        Kind           `json:"kind"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	// MockPayload is the canned response for KindMockStatic tools, as a raw
	// string. JSON payloads are decoded at execution time.
	MockPayload string `json:"mock_payload,omitempty"`
	// Server names the tool server a KindDiscovered tool belongs to.
	Server string `json:"server,omitempty"`
	// RemoteName is the tool's un-prefixed name on its server.
	RemoteName string `json:"remote_name,omitempty"`
	Enabled    bool   `json:"enabled"`
}

// Schema converts the definition into the shape advertised to providers.
func (d *Definition) Schema() llm.ToolSchema {
	params := d.Parameters
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return llm.ToolSchema{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  params,
	}
}
