package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"market_maker/internal/core"
)

// App represents the application context and holds core dependencies shared
// by every gridbot binary: cmd/gridbot, cmd/screener, cmd/backtest each call
// NewApp and then compose the Runners specific to that binary.
type App struct {
	Cfg    *Config
	Logger core.ILogger
}

// NewApp creates a new App instance by bootstrapping configuration and the
// process-wide logger. Store/exchange/scheduler wiring is binary-specific
// and happens in each cmd's main after NewApp returns.
func NewApp(configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	return &App{
		Cfg:    cfg,
		Logger: logger,
	}, nil
}

// Runner is an interface for components that can be run and stopped gracefully.
type Runner interface {
	Run(ctx context.Context) error
}

// Run orchestrates the application lifecycle, including signal handling.
// Every Runner is started in its own errgroup goroutine; the first one to
// return an error cancels ctx, which every other Runner must observe and
// exit on (SIGTERM/SIGINT deliver the same cancellation).
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application")

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			a.Logger.Error("application stopped with error", "error", err)
			return err
		}
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}

// Shutdown handles manual cleanup tasks (closing DB connections, etc.)
func (a *App) Shutdown(timeout time.Duration) {
	a.Logger.Info("cleaning up resources", "timeout", timeout)
}
