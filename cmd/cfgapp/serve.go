package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dimonb/cfgapp/internal/config"
	"github.com/dimonb/cfgapp/internal/fetch"
	"github.com/dimonb/cfgapp/internal/proxyconf"
	"github.com/dimonb/cfgapp/internal/server"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve templates and proxy subscriptions over HTTP.",
	Long: `Start the HTTP service. Unknown paths are forwarded to the origin host;
a 404 from the origin triggers a template lookup and expansion. The /sr and
/sub endpoints deliver proxy subscriptions when a proxy configuration file
is available.

The server shuts down gracefully on SIGINT or SIGTERM.
`,
	Run: func(cmd *cobra.Command, args []string) {
		listen, _ := cmd.Flags().GetString("listen")
		logFile, _ := cmd.Flags().GetString("log-file")

		settings, err := loadSettings()
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		logger := serveLogger(settings, logFile)

		conf := loadProxyConfig(settings, logger)

		addr := listen
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", settings.Host, settings.Port)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(settings, fetch.NewClient(), conf, logger)
		logger.Info("Starting cfgapp server",
			"addr", addr,
			"origin", settings.APIHost,
			"version", config.Version)

		if err := srv.Run(ctx, addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
		logger.Info("Server stopped")
	},
}

// serveLogger builds the server logger. Level comes from the settings unless
// --debug forces debug output; with --log-file the log also goes to a
// size-rotated file.
func serveLogger(settings *config.Settings, logFile string) *slog.Logger {
	level := settings.SlogLevel()
	if cliConfig.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if logFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, rotated)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadProxyConfig reads the proxy configuration named by the settings. The
// subscription endpoints stay disabled when no usable file is present.
func loadProxyConfig(settings *config.Settings, logger *slog.Logger) *proxyconf.Config {
	if settings.ProxyConfig == "" {
		logger.Warn("No proxy configuration path set, subscription endpoints disabled")
		return nil
	}
	conf, err := proxyconf.Load(settings.ProxyConfig)
	if err != nil {
		logger.Warn("Failed to load proxy configuration, subscription endpoints disabled",
			"path", settings.ProxyConfig,
			"error", err)
		return nil
	}
	logger.Info("Proxy configuration loaded",
		"path", settings.ProxyConfig,
		"users", len(conf.Users()),
		"subs", conf.Subs())
	return conf
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (host:port); defaults to the configured host and port")
	serveCmd.Flags().String("log-file", "", "Also write logs to this file with size-based rotation")
}
