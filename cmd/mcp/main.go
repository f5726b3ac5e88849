package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/doc-chat-service/internal/adapters/mcp"
	"github.com/kirillkom/doc-chat-service/internal/bootstrap"
	"github.com/kirillkom/doc-chat-service/internal/config"
	"github.com/kirillkom/doc-chat-service/internal/observability/logging"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("mcp_exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// stdout carries the MCP protocol
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Hooks{})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	s := mcpadapter.New(mcpadapter.Services{
		Documents: app.QueryUC,
		Chat:      app.ChatUC,
	}, mcpadapter.Options{
		Version:      version,
		DefaultLimit: cfg.ListDefaultLimit,
		MaxLimit:     cfg.ListMaxLimit,
	})
	return server.ServeStdio(s)
}
