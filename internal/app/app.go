package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/stencilgo/internal/config"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/handlers"
	"github.com/vk/stencilgo/internal/kernel"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	handlers *handlers.Handlers
	tally    *handlers.Tally
	kernel   *kernel.Kernel

	ctx        context.Context
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads the kernel
// description through loader and builds the kernel. register adds
// evaluators on top of the built-in ones.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, register ...func(*handlers.Handlers, *handlers.Tally)) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	cfgModel, converter, err := loader.Load(ctx, appConfig.KernelPath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	tally := handlers.NewTally()
	hs := handlers.New()
	handlers.RegisterBuiltins(hs, tally)
	for _, r := range register {
		r(hs, tally)
	}
	logger.Debug("Evaluators registered.", "names", hs.Names())

	k, err := kernel.Build(ctx, cfgModel, converter, hs, kernel.Options{OuterThreads: appConfig.OuterThreads})
	if err != nil {
		panic(fmt.Errorf("failed to build kernel: %w", err))
	}

	return &App{
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		handlers: hs,
		tally:    tally,
		kernel:   k,
		ctx:      ctx,
	}
}

// Kernel returns the built kernel. This is primarily for testing.
func (a *App) Kernel() *kernel.Kernel {
	return a.kernel
}

// Tally returns the per-bundle counters of the counting evaluators.
func (a *App) Tally() *handlers.Tally {
	return a.tally
}
