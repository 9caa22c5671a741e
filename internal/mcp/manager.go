package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/jyasuu/llm-playground/internal/llm"
	"github.com/jyasuu/llm-playground/internal/logger"
	"github.com/jyasuu/llm-playground/internal/tools"
)

const toolNamePrefix = "mcp"

// Manager maintains clients for every configured tool server and exposes the
// aggregated catalog as prefixed tool definitions. It implements the
// executor's DiscoveryInvoker so discovered tools route back through it.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]ServerConfig
	clients map[string]*Client
	// hash of the server configuration that produced the current catalog;
	// Refresh can skip servers when nothing changed.
	configHash uint64
}

func NewManager(servers []ServerConfig) *Manager {
	m := &Manager{
		servers: make(map[string]ServerConfig),
		clients: make(map[string]*Client),
	}
	for _, cfg := range servers {
		if cfg.Name == "" {
			continue
		}
		m.servers[cfg.Name] = cfg
	}
	return m
}

// SetServers replaces the server configuration. Clients for removed or
// changed servers are dropped and re-created on the next Refresh.
func (m *Manager) SetServers(servers []ServerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]ServerConfig, len(servers))
	for _, cfg := range servers {
		if cfg.Name == "" {
			continue
		}
		next[cfg.Name] = cfg
	}

	for name := range m.clients {
		if _, ok := next[name]; !ok {
			delete(m.clients, name)
		}
	}
	m.servers = next
}

// ConfigChanged reports whether the server set differs from the one that
// produced the current catalog.
func (m *Manager) ConfigChanged() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hashServersLocked() != m.configHash
}

// Refresh connects to every enabled server, lists its tools and returns the
// combined catalog as prefixed definitions. Servers that fail are logged and
// skipped so one bad endpoint cannot hide the rest of the catalog.
func (m *Manager) Refresh(ctx context.Context) []tools.Definition {
	m.mu.Lock()
	configs := make([]ServerConfig, 0, len(m.servers))
	for _, cfg := range m.servers {
		configs = append(configs, cfg)
	}
	m.configHash = m.hashServersLocked()
	m.mu.Unlock()

	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })

	var defs []tools.Definition
	seen := make(map[string]struct{})

	for _, cfg := range configs {
		if !cfg.Enabled || strings.TrimSpace(cfg.URL) == "" {
			continue
		}

		client := m.clientFor(cfg)
		if err := client.Initialize(ctx); err != nil {
			logger.Warn("tool server %q initialize failed: %v", cfg.Name, err)
			continue
		}

		remoteTools, err := client.ListTools(ctx)
		if err != nil {
			logger.Warn("tool server %q tools/list failed: %v", cfg.Name, err)
			continue
		}

		for _, remote := range remoteTools {
			if remote.Name == "" {
				continue
			}

			name := uniqueToolName(prefixedToolName(cfg.Name, remote.Name), seen)
			seen[name] = struct{}{}

			description := remote.Description
			if description == "" {
				description = fmt.Sprintf("Tool %s from server %s", remote.Name, cfg.Name)
			}

			defs = append(defs, tools.Definition{
				Name:        name,
				Description: description,
				Kind:        tools.KindDiscovered,
				Parameters:  remote.InputSchema,
				Server:      cfg.Name,
				RemoteName:  remote.Name,
				Enabled:     true,
			})
		}

		logger.Info("tool server %q contributed %d tools", cfg.Name, len(remoteTools))
	}

	return defs
}

// Invoke satisfies tools.DiscoveryInvoker by routing the call to the tool's
// originating server under its un-prefixed name.
func (m *Manager) Invoke(ctx context.Context, def *tools.Definition, arguments map[string]any) (map[string]any, error) {
	if def == nil || def.Server == "" || def.RemoteName == "" {
		return nil, fmt.Errorf("tool is not bound to a server")
	}

	m.mu.RLock()
	cfg, ok := m.servers[def.Server]
	m.mu.RUnlock()
	if !ok || !cfg.Enabled {
		return nil, fmt.Errorf("server %q is not available", def.Server)
	}

	return m.clientFor(cfg).CallTool(ctx, def.RemoteName, arguments)
}

func (m *Manager) clientFor(cfg ServerConfig) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.clients[cfg.Name]; ok {
		return client
	}
	client := NewClient(cfg)
	m.clients[cfg.Name] = client
	return client
}

// hashServersLocked hashes the sorted server configuration. Callers must
// hold at least a read lock.
func (m *Manager) hashServersLocked() uint64 {
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	digest := xxhash.New()
	for _, name := range names {
		encoded, err := json.Marshal(m.servers[name])
		if err != nil {
			continue
		}
		_, _ = digest.WriteString(name)
		_, _ = digest.Write(encoded)
	}
	return digest.Sum64()
}

// prefixedToolName builds the advertised name mcp_<server>_<tool> with both
// parts sanitized so every provider accepts it.
func prefixedToolName(server, tool string) string {
	name := fmt.Sprintf("%s_%s_%s", toolNamePrefix, llm.SanitizeToolName(server), llm.SanitizeToolName(tool))
	if len(name) > llm.MaxToolNameLength {
		name = strings.Trim(name[:llm.MaxToolNameLength], "_")
	}
	return name
}

// uniqueToolName appends a numeric suffix when a prefixed name collides.
func uniqueToolName(name string, seen map[string]struct{}) string {
	if _, taken := seen[name]; !taken {
		return name
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		candidate := name
		if len(candidate)+len(suffix) > llm.MaxToolNameLength {
			candidate = strings.Trim(candidate[:llm.MaxToolNameLength-len(suffix)], "_")
		}
		candidate += suffix
		if _, taken := seen[candidate]; !taken {
			return candidate
		}
	}
}
