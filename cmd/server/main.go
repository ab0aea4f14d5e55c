package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/id"
	"github.com/ShaurayaMohan/TARS-Windscribe/common/logger"
	"github.com/ShaurayaMohan/TARS-Windscribe/common/otel"
	"github.com/ShaurayaMohan/TARS-Windscribe/core/config"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/app"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/command"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/http/middleware"
	httprouter "github.com/ShaurayaMohan/TARS-Windscribe/internal/http/router"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/slackapp"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet, OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "tars starting", "config", cfg.Summary())
	if err := id.Init(id.NodeServer); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	tars, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		slog.ErrorContext(ctx, "failed to wire components", "error", err)
		os.Exit(1)
	}
	defer tars.Close()

	sched, err := tars.NewScheduler()
	if err != nil {
		slog.ErrorContext(ctx, "failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()
	slog.InfoContext(ctx, "scheduler started",
		"cron", cfg.Schedule.Cron,
		"timezone", cfg.Schedule.Timezone,
		"next_run", sched.Next())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	commands := command.NewDispatcher(tars.Orchestrator, cfg.SupportPal.MaxWindow)

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	if cfg.Slack.SocketModeEnabled() {
		listener := slackapp.New(slackapp.Config{
			AppToken: cfg.Slack.AppToken,
			BotToken: cfg.Slack.BotToken,
		}, commands)
		go func() {
			if err := listener.Run(listenCtx); err != nil {
				slog.ErrorContext(ctx, "slack socket mode stopped", "error", err)
			}
		}()
	}

	router := setupRouter(cfg, tars, commands)
	server := newServer(":"+cfg.Port, router)

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")
	stopListening()

	httpCtx, cancelHTTP := context.WithTimeout(ctx, httpShutdownTimeout)
	defer cancelHTTP()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.ErrorContext(ctx, "http server shutdown error", "error", err)
	}

	// The drain gets its own budget so a slow HTTP shutdown cannot eat into it.
	// Stop waits for an in-flight scheduled run; Wait covers runs started over HTTP or Slack.
	drainCtx, cancelDrain := context.WithTimeout(ctx, drainTimeout)
	defer cancelDrain()
	if err := sched.Stop(drainCtx); err != nil {
		slog.ErrorContext(ctx, "scheduler did not stop in time", "error", err)
	}
	if err := tars.Orchestrator.Wait(drainCtx); err != nil {
		slog.ErrorContext(ctx, "in-flight run did not finish in time", "error", err)
	}

	if telemetry != nil {
		otelCtx, cancelOTel := context.WithTimeout(ctx, 10*time.Second)
		defer cancelOTel()
		if err := telemetry.Shutdown(otelCtx); err != nil {
			slog.ErrorContext(ctx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "shutdown complete")
}

func setupRouter(cfg config.Config, tars *app.App, commands *command.Dispatcher) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span, Recovery catches panics, Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, tars.Orchestrator, httprouter.RouterConfig{
		ServiceName:        cfg.OTel.ServiceName,
		MaxWindow:          cfg.SupportPal.MaxWindow,
		SlackSigningSecret: cfg.Slack.SigningSecret,
		Commands:           commands,
		StatusReader:       tars.StatusReader,
	})

	return router
}

const banner = `
████████╗ █████╗ ██████╗ ███████╗
╚══██╔══╝██╔══██╗██╔══██╗██╔════╝
   ██║   ███████║██████╔╝███████╗
   ██║   ██╔══██║██╔══██╗╚════██║
   ██║   ██║  ██║██║  ██║███████║
   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝
`
