package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dusk-indust/scamshield/internal/config"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// scamshieldMCPEntry is the MCP server configuration for the scamshield binary.
var scamshieldMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "scamshield",
  "args": ["serve"]
}`)

// runInit writes a default scamshield.yml and registers the MCP server in
// .mcp.json inside dir.
func runInit(dir string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("scamshield init", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite existing files and entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving config dir: %w", err)
	}

	cfgPath := filepath.Join(abs, config.FileNames[0])
	if _, err := os.Stat(cfgPath); err == nil && !*force {
		fmt.Fprintf(out, "  skipped %s (exists, use --force to overwrite)\n", dotRelative(abs, cfgPath))
	} else {
		if err := config.Default().Save(cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "  created %s\n", dotRelative(abs, cfgPath))
	}

	if err := mergeMCPConfig(filepath.Join(abs, ".mcp.json"), *force, out); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSetup complete. Set GEMINI_API_KEY in the environment or a .env file.")
	return nil
}

// mergeMCPConfig creates or merges the scamshield entry into .mcp.json.
func mergeMCPConfig(mcpPath string, force bool, out io.Writer) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["scamshield"]; exists && !force {
		fmt.Fprintf(out, "  skipped .mcp.json scamshield entry (exists, use --force to overwrite)\n")
		return nil
	}

	cfg.MCPServers["scamshield"] = scamshieldMCPEntry

	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(out, "  %s .mcp.json with scamshield MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to base, prefixed with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}
