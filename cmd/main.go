package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomheat/internal/config"
	"roomheat/internal/handlers"
	"roomheat/internal/logger"
	"roomheat/internal/repository"
	"roomheat/internal/server"
	"roomheat/internal/service"
	"roomheat/internal/trv"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// load config.yml
	cfg, err := config.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(cfg.LogLevel)

	// open DB
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// connect the actuator command channel
	mqttClient, err := trv.NewClient(cfg.MQTTConn, log)
	if err != nil {
		log.Fatalw("failed to connect mqtt broker", "broker", cfg.MQTTConn.Broker, "err", err)
	}
	defer mqttClient.Close()

	// wire dependencies
	repos := repository.NewRepository(db)
	services := service.NewService(service.Deps{
		Repos:   repos,
		Cfg:     cfg,
		Log:     log,
		Channel: mqttClient,
		Waker:   trv.NewHTTPWaker(),
	})
	mqttClient.Start(services.Feed)
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// start the heating evaluation loop
	go services.Heating.Run(ctx, cfg.ScanInterval())

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, services, log)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop the evaluation loop and cancel in-flight command batches
	cancel()
	services.Heating.Wait()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
