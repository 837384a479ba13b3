package main

import (
	"log/slog"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/rtspcam/cmd"
	"github.com/smazurov/rtspcam/internal/config"
	"github.com/smazurov/rtspcam/internal/logging"
	"github.com/smazurov/rtspcam/internal/server"
	"github.com/smazurov/rtspcam/internal/version"
)

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Load configuration automatically, flags set on the command line win
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.Logging())
		logger := logging.GetLogger("main")

		var rt *server.Runtime

		hooks.OnStart(func() {
			logger.Info("Starting rtspcam", "version", version.String(), "config", opts.Config)

			var err error
			rt, err = server.New(*opts, server.Options{
				Command: cli.Root(),
				Watch:   true,
			})
			if err != nil {
				logger.Error("Invalid configuration", "error", err)
				os.Exit(1)
			}
			if err := rt.Start(); err != nil {
				logger.Error("Failed to start server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if rt == nil {
				return
			}
			logger.Info("Shutting down server")
			if err := rt.Stop(); err != nil {
				logger.Error("Error during shutdown", "error", err)
			}
		})
	})

	cli.Root().Use = "rtspcam"
	cli.Root().Short = "Serve a V4L2 camera over RTSP with a timestamp overlay"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateDescribeCmd())
	cli.Root().AddCommand(cmd.CreateProbeCmd())

	cli.Run()
}
