// Command editorstate-mcp serves the editorstate tools over MCP stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/goliatone/go-editorstate"
	"github.com/goliatone/go-editorstate/internal/config"
	"github.com/goliatone/go-editorstate/pkg/mcptools"
)

var version = "dev"

func main() {
	cfg, err := config.LoadFile(os.Getenv("EDITORSTATE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opts, err := cfg.EngineOptions(cfg.NewLogger(os.Stderr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	engine, err := editorstate.NewEngine(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	s := mcptools.NewServer(version, engine)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
