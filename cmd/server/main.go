package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"torrentify/internal/app"
	"torrentify/internal/config"
	apphttp "torrentify/internal/http"
	"torrentify/internal/logging"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default: ./config.yaml)")
	flag.Parse()

	provider, err := config.NewProvider(*configFile)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	cfg := provider.Get()

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("setup logging: %v", err)
	}
	defer logCloser.Close()
	provider.Watch(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, provider, logger)
	if err != nil {
		logger.Fatalf("build application: %v", err)
	}
	defer a.Close()

	go a.Hub.Run(ctx)
	go a.RunJanitor(ctx)

	if err := a.Processor.Start(ctx); err != nil {
		logger.Fatalf("start processor: %v", err)
	}
	if len(cfg.MediaSources()) == 0 {
		logger.Warn("no media source configured; set media.<category> roots")
	}
	if len(cfg.TrackerList()) == 0 {
		logger.Warn("no tracker configured; torrents will not be created")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Options{
		Jobs:      a.Jobs,
		Processor: a.Processor,
		Inventory: a.Scanner,
		Observers: a.Hub,
		Auth:      a.Auth,
		TMDB:      a.TMDB,
		Exports:   exports(a),
		OutputDir: func() string { return provider.Get().Media.OutputDir },
		Logger:    logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	a.Processor.Shutdown()

	logger.Info("bye")
}

// exports keeps a missing exporter a nil interface.
func exports(a *app.App) apphttp.Exports {
	if a.Exporter == nil {
		return nil
	}
	return a.Exporter
}
