package main

import (
	"context"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/lanchat/internal/server"
)

func main() {
	_ = godotenv.Load()

	config := server.NewConfigFromEnv()
	logger := server.NewLogger(config.Env)
	logger.Info("Starting LAN chat server...", "env", config.Env)

	srv, err := server.NewServer(*config, logger)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}
	srv.StartHub()

	httpServer := server.CreateServer(config.Port, srv.SetupRoutes())

	go func() {
		if err := server.StartServer(httpServer, logger); err != nil {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer, logger)
			},
			"hub": func(_ context.Context) error {
				return srv.Hub().Shutdown(config.ShutdownTimeout)
			},
		},
	)

	exitCode := <-wait
	logger.Info("Server exited", "code", exitCode)
	os.Exit(exitCode)
}
