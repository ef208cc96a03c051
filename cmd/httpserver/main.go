package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/shawnding/incubator-iceberg/cmd/flags"
	"github.com/shawnding/incubator-iceberg/httpserver"
	"github.com/shawnding/incubator-iceberg/storage"
)

func main() {
	app := &cli.App{
		Name:  "fileio-server",
		Usage: "Serve files from pluggable storage backends over HTTP",
		Flags: append(append(append([]cli.Flag{}, flags.StorageFlags...), flags.ServerFlags...), flags.LogFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			cfg, err := flags.LoadConfig(cCtx)
			if err != nil {
				logger.Error("Failed to load storage configuration", "err", err)
				return err
			}

			promRegistry := prometheus.NewRegistry()
			promRegistry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics, err := storage.NewMetrics(promRegistry)
			if err != nil {
				logger.Error("Failed to register storage metrics", "err", err)
				return err
			}

			registry, err := storage.NewBackendFactory(logger).BuildRegistry(cCtx.Context, cfg, metrics)
			if err != nil {
				logger.Error("Failed to build storage registry", "err", err)
				return err
			}
			defer func() {
				if err := registry.Close(); err != nil {
					logger.Error("Failed to close storage backends", "err", err)
				}
			}()

			handler := httpserver.NewHandler(storage.NewResolvingFileIO(registry, logger), logger)
			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler, promRegistry)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("Server is running, press Ctrl+C to stop")
			<-ctx.Done()
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
