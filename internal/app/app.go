package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/pipestack/internal/builder"
	"github.com/vk/pipestack/internal/config"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/dag"
	"github.com/vk/pipestack/internal/stack"
)

// App encapsulates the application's dependencies and configuration.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	loader config.Loader
}

// NewApp is the constructor for the main application. Command output goes to
// outW and logs to logW.
func NewApp(outW, logW io.Writer, cfg *Config, loader config.Loader) *App {
	logger := newLogger(cfg, logW)
	logger.Debug("Logger configured successfully.")
	return &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		loader: loader,
	}
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Load reads the stack files and builds the construct tree and its
// dependency graph.
func (a *App) Load(ctx context.Context) (*stack.Stack, *dag.Graph, error) {
	ctx = a.context(ctx)
	a.logger.Debug("Loading stack.", "paths", a.config.StackPaths)

	model, err := a.loader.Load(ctx, a.config.StackPaths...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	st, graph, err := builder.Build(ctx, model)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build stack: %w", err)
	}
	a.logger.Debug("Stack loaded.", "stack", st.Name, "resources", graph.Len())
	return st, graph, nil
}
