// ABOUTME: Manages mcp_servers entries in the codex CLI's config.toml.
// ABOUTME: Read-modify-write on the whole document, preserving foreign keys.

// Package mcpconf edits the MCP server definitions consumed by the codex CLI.
package mcpconf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ServerConfig is one MCP server definition under [mcp_servers.<name>].
type ServerConfig struct {
	Command string            `toml:"command"`
	Args    []string          `toml:"args,omitempty"`
	Env     map[string]string `toml:"env,omitempty"`
}

// namePattern restricts server names to what codex accepts as table keys
// without quoting.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DefaultPath returns the codex config file location: $CODEX_HOME/config.toml,
// falling back to ~/.codex/config.toml.
func DefaultPath() string {
	if home := os.Getenv("CODEX_HOME"); home != "" {
		return filepath.Join(home, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".codex", "config.toml")
}

// File edits one codex config.toml.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

// List returns all MCP server definitions keyed by name. A missing config
// file yields an empty map.
func (f *File) List() (map[string]ServerConfig, error) {
	var doc struct {
		MCPServers map[string]ServerConfig `toml:"mcp_servers"`
	}
	if _, err := toml.DecodeFile(f.path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]ServerConfig{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	if doc.MCPServers == nil {
		return map[string]ServerConfig{}, nil
	}
	return doc.MCPServers, nil
}

// Names returns the defined server names in sorted order.
func (f *File) Names() ([]string, error) {
	servers, err := f.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Set adds or replaces one server definition, creating the config file and
// its parent directory if needed. Keys outside mcp_servers are preserved;
// comments and formatting are not.
func (f *File) Set(name string, cfg ServerConfig) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid server name %q", name)
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return fmt.Errorf("server %q needs a command", name)
	}

	doc, err := f.readDocument()
	if err != nil {
		return err
	}

	servers := ensureTable(doc, "mcp_servers")
	entry := map[string]any{"command": cfg.Command}
	if len(cfg.Args) > 0 {
		entry["args"] = cfg.Args
	}
	if len(cfg.Env) > 0 {
		entry["env"] = cfg.Env
	}
	servers[name] = entry

	return f.writeDocument(doc)
}

// Remove deletes one server definition. It reports whether the name existed.
func (f *File) Remove(name string) (bool, error) {
	doc, err := f.readDocument()
	if err != nil {
		return false, err
	}

	servers, ok := doc["mcp_servers"].(map[string]any)
	if !ok {
		return false, nil
	}
	if _, exists := servers[name]; !exists {
		return false, nil
	}
	delete(servers, name)
	if len(servers) == 0 {
		delete(doc, "mcp_servers")
	}

	if err := f.writeDocument(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (f *File) readDocument() (map[string]any, error) {
	doc := map[string]any{}
	if _, err := toml.DecodeFile(f.path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *File) writeDocument(doc map[string]any) error {
	if dir := filepath.Dir(f.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encoding %s: %w", f.path, err)
	}
	if err := os.WriteFile(f.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	return nil
}

func ensureTable(doc map[string]any, key string) map[string]any {
	if table, ok := doc[key].(map[string]any); ok {
		return table
	}
	table := map[string]any{}
	doc[key] = table
	return table
}
