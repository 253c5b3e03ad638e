package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/config"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/logging"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/providers"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/tracing"
	"github.com/totegamma/concrnt-identity/internal/present/rest"
	restmiddleware "github.com/totegamma/concrnt-identity/internal/present/rest/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	conf, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(conf.Log.Level, conf.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     conf.Server.EnableTrace,
		Endpoint:    conf.Server.TraceEndpoint,
		ServiceName: conf.Service.Name,
		Version:     conf.Service.Version,
	})
	if err != nil {
		return err
	}

	container, err := providers.Build(ctx, conf, logger)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware(conf.Service.Name))
	}
	e.Use(restmiddleware.AccessLog(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler := rest.NewHandler(container.Registration, container.Account, container.Feed, container.Topic, logger)
	handler.RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", conf.Server.Listen),
			zap.String("domain", container.Registration.ProfileType()),
		)
		errCh <- e.Start(conf.Server.Listen)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 20*time.Second)
	defer cancel()

	if serr := e.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown failed", zap.Error(serr))
	}
	if cerr := container.Close(); cerr != nil {
		logger.Warn("failed to close resources", zap.Error(cerr))
	}
	if terr := shutdownTracing(shutdownCtx); terr != nil {
		logger.Warn("failed to flush traces", zap.Error(terr))
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("stopped")
	return nil
}
