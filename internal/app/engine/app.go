package engine

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/amarcoder01/market-engine/internal/config"
	zapLogger "github.com/amarcoder01/market-engine/internal/logger"
)

func Run(ctx context.Context, cfg *config.Config) {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return ctx
			},
			func() *config.Config {
				return cfg
			}),
		fx.Provide(
			provideContainer,
		),
		fx.Invoke(
			registerLogger,
			startMetricsServer,
			startScheduler,
		),
	)

	app.Run()
}

func registerLogger(lifeCycle fx.Lifecycle, cfg *config.Config) error {
	if err := zapLogger.Init(cfg.LogLevel, cfg.LogFormat == "json"); err != nil {
		return err
	}

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = zapLogger.Sync()

			return nil
		},
	})

	return nil
}

func provideContainer(
	ctx context.Context,
	lifeCycle fx.Lifecycle,
	cfg *config.Config,
) (*Container, error) {
	container, err := NewContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			container.Close()
			return nil
		},
	})

	return container, nil
}

func startMetricsServer(lifeCycle fx.Lifecycle, container *Container) {
	lifeCycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				zapLogger.Info(ctx, "metrics server listening",
					zap.String("address", container.MetricsServer.Addr))

				if err := container.MetricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zapLogger.Error(ctx, "metrics server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return container.MetricsServer.Shutdown(ctx)
		},
	})
}

func startScheduler(lifeCycle fx.Lifecycle, container *Container) {
	lifeCycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			container.Scheduler.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			container.Scheduler.Stop(ctx)
			return nil
		},
	})
}
