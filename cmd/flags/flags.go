package flags

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/shawnding/incubator-iceberg/common"
	"github.com/shawnding/incubator-iceberg/config"
	"github.com/shawnding/incubator-iceberg/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// LoadConfig reads --config when given, or falls back to a local-only
// configuration. --root overrides the local backend's root directory.
func LoadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := cCtx.String(ConfigFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if root := cCtx.String(RootFlag.Name); root != "" {
		cfg.SetBackendOption("file", "root", root)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}
	return cfg, nil
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		MaxBodySize:              cCtx.Int64(MaxBodySizeFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             60 * time.Second,
	}
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	EnvVars: []string{"FILEIO_CONFIG"},
	Usage:   "YAML storage configuration file",
}
var RootFlag = &cli.StringFlag{
	Name:  "root",
	Usage: "confine the local backend to this directory",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to stay unready before shutting down",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}
var MaxBodySizeFlag = &cli.Int64Flag{
	Name:  "max-body-size",
	Value: 0,
	Usage: "maximum PUT body size in bytes, 0 for unlimited",
}

var GatewayFlag = &cli.StringFlag{
	Name:    "gateway",
	EnvVars: []string{"FILEIO_GATEWAY"},
	Usage:   "use the storage gateway at this address instead of local backends",
}
var GatewayTimeoutFlag = &cli.DurationFlag{
	Name:  "gateway-timeout",
	Value: 30 * time.Second,
	Usage: "timeout for each gateway request",
}

// LogFlags configure logging for every command.
var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

// StorageFlags select the storage configuration.
var StorageFlags = []cli.Flag{
	ConfigFlag,
	RootFlag,
}

// GatewayFlags route commands through a remote gateway.
var GatewayFlags = []cli.Flag{
	GatewayFlag,
	GatewayTimeoutFlag,
}

// ServerFlags configure the HTTP gateway.
var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	MaxBodySizeFlag,
}
