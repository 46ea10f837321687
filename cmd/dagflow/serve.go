package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/dagflow/pkg/cmd"
	"github.com/dukex/dagflow/pkg/config"
	"github.com/dukex/dagflow/pkg/eventbus"
	"github.com/dukex/dagflow/pkg/events"
	"github.com/dukex/dagflow/pkg/log"
	"github.com/dukex/dagflow/pkg/nodes"
	"github.com/dukex/dagflow/pkg/otelhelper"
	"github.com/dukex/dagflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 10 * time.Second
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the scheduler and the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file://dir, postgres://..., redis://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the engine YAML config",
				Sources: cli.EnvVars("DAGFLOW_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export execution traces over OTLP/HTTP",
				Sources: cli.EnvVars("DAGFLOW_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("serve")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.LoadOrDefault(command.String("config"))
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to open persistence: %w", err)
			}

			defer func() {
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			err = logLifecycle(ctx, eventBus, logger)
			if err != nil {
				return fmt.Errorf("failed to subscribe to lifecycle events: %w", err)
			}

			var tracer trace.Tracer

			if command.Bool("tracing") {
				var shutdown func(context.Context) error

				tracer, shutdown, err = otelhelper.NewTracer(ctx, "dagflow")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdown(context.WithoutCancel(ctx)); err != nil {
						logger.Error("Failed to shutdown tracer provider", "error", err)
					}
				}()
			}

			engine := cmd.NewEngine(cmd.EngineDeps{
				Persistence: persistence,
				Publisher:   eventBus,
				Tracer:      tracer,
				Nodes:       nodes.Dependencies{Logger: logger},
				Config:      cfg,
				Logger:      logger,
			})

			err = engine.Preload(ctx, cfg)
			if err != nil {
				return err
			}

			err = engine.Scheduler.Start(ctx)
			if err != nil {
				return err
			}
			defer engine.Scheduler.Stop()

			app := web.NewApp(web.NewAPIHandlers(
				engine.Repository,
				engine.Parser,
				engine.Executor,
				engine.Scheduler,
				validator.New(validator.WithRequiredStructEnabled()),
			))

			go func() {
				<-ctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				if err := app.ShutdownWithContext(shutdownCtx); err != nil {
					logger.Error("Failed to shutdown HTTP server", "error", err)
				}
			}()

			logger.Info("Starting dagflow", "port", command.Int("port"))

			err = app.Listen(":" + strconv.Itoa(command.Int("port")))
			if err != nil {
				return fmt.Errorf("http server stopped: %w", err)
			}

			engine.Scheduler.Wait()

			return nil
		},
	}
}

// logLifecycle logs terminal execution events published on the bus.
func logLifecycle(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.ExecutionCompletedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.ExecutionCompleted); ok {
				logger.InfoContext(ctx, "Execution completed",
					"workflow_id", e.WorkflowID, "execution_id", e.ExecutionID, "duration_ms", e.DurationMs)
			}

			return nil
		},
		events.ExecutionFailedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.ExecutionFailed); ok {
				logger.WarnContext(ctx, "Execution failed",
					"workflow_id", e.WorkflowID, "execution_id", e.ExecutionID, "node_id", e.NodeID, "error", e.Error)
			}

			return nil
		},
	}

	for eventType, handler := range handlers {
		err := bus.Handle(eventType, handler)
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
