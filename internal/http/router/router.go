package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/command"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/http/handler"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/status"
)

type RouterConfig struct {
	ServiceName        string
	MaxWindow          time.Duration
	SlackSigningSecret string              // slash command route is only mounted when set
	Commands           *command.Dispatcher // shared with Socket Mode; built from runs when nil
	StatusReader       status.Reader
	Gatherer           prometheus.Gatherer
}

func SetupRoutes(router *gin.Engine, runs handler.RunService, cfg RouterConfig) {
	healthHandler := handler.NewHealthHandler(runs, cfg.ServiceName)
	router.GET("/", healthHandler.Info)
	router.GET("/health", healthHandler.Health)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		runHandler := handler.NewRunHandler(runs, cfg.MaxWindow)
		streamHandler := handler.NewStatusStreamHandler(cfg.StatusReader)
		RunRouter(v1.Group("/runs"), runHandler, streamHandler)
	}

	if cfg.SlackSigningSecret != "" {
		commands := cfg.Commands
		if commands == nil {
			commands = command.NewDispatcher(runs, cfg.MaxWindow)
		}
		slackHandler := handler.NewSlackCommandHandler(commands, cfg.SlackSigningSecret)
		SlackRouter(router.Group("/slack"), slackHandler)
	}
}
