// Package flags holds the CLI flag definitions and logger setup shared by
// the command binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/cvmcloud/deployer/common"
	"github.com/cvmcloud/deployer/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJSONFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUIDFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var RPCAddrFlag = &cli.StringFlag{
	Name:  "rpc-addr",
	Value: "http://127.0.0.1:8545",
	Usage: "address to connect to RPC",
}

var RegistryContractFlag = &cli.StringFlag{
	Name:     "registry-contract",
	Required: true,
	Usage:    "App registry contract address. 40-char hex string",
}

var DelegateContractFlag = &cli.StringFlag{
	Name:     "delegate-contract",
	Required: true,
	Usage:    "Batch executor delegate contract address. 40-char hex string",
}

var StatusAPIFlag = &cli.StringFlag{
	Name:  "status-api",
	Value: "http://127.0.0.1:8080",
	Usage: "base URL of the status service",
}

var PrivateKeyFlag = &cli.StringFlag{
	Name:    "private-key",
	Usage:   "hex-encoded account private key used for signing",
	EnvVars: []string{"DEPLOYER_PRIVATE_KEY"},
}

var EncryptionKeyFlag = &cli.StringFlag{
	Name:     "encryption-key",
	Required: true,
	Usage:    "path to the PEM-encoded RSA public key private configuration is sealed under",
}

var ImageFlag = &cli.StringFlag{
	Name:     "image",
	Required: true,
	Usage:    "container image reference to deploy",
}

var EnvFileFlag = &cli.StringFlag{
	Name:  "env-file",
	Usage: "dotenv file with application configuration",
}

var InstanceTypeFlag = &cli.StringFlag{
	Name:  "instance-type",
	Value: "small",
	Usage: "machine type the application runs on",
}

var LogVisibilityFlag = &cli.StringFlag{
	Name:  "log-visibility",
	Value: "private",
	Usage: "application log visibility: public or private",
}

var LocalEngineFlag = &cli.BoolFlag{
	Name:  "local-engine",
	Value: false,
	Usage: "use the local Docker engine for single-platform image inspection",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

var CommonFlags = []cli.Flag{
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
}
