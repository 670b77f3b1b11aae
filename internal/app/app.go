package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:    appCtx,
		cancel: cancel,
	}

	container, err := NewContainer(app.ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	app.container = container

	app.container.Logger().Info("Application initialized successfully")
	return app, nil
}

// Run starts the background workers and serves HTTP until a shutdown signal arrives or the
// listener fails.
func (app *Application) Run() error {
	c := app.container
	c.Publisher().Start()
	c.Dispatcher().Start()

	serverErr := make(chan error, 1)
	go func() {
		c.Logger().Info("🚀 HTTP server listening", zap.String("addr", c.Server().Addr))
		if err := c.Server().ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-app.ctx.Done():
		c.Logger().Info("Shutdown signal received")
		return nil
	case err, ok := <-serverErr:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// Shutdown gracefully shuts down all application components within the configured timeout
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.container.Config().ShutdownTimeout)
		defer cancel()
		app.container.Shutdown(ctx)
	}
}
