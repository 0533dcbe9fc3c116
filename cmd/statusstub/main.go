package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/cvmcloud/deployer/cmd/flags"
	"github.com/cvmcloud/deployer/httpserver"
	"github.com/cvmcloud/deployer/interfaces"
)

var statusStubServiceLogFlag = flags.LogServiceFlagFn("status-stub")

var listenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the status API",
}

var scriptFlag = &cli.StringFlag{
	Name:  "script",
	Usage: "JSON file mapping app addresses to status sequences",
}

var appFlag = &cli.StringFlag{
	Name:  "app",
	Usage: "app address to serve a canned deploy sequence for",
}

var ipFlag = &cli.StringFlag{
	Name:  "ip",
	Value: "10.0.0.1",
	Usage: "ip reported once the canned sequence reaches Running",
}

func main() {
	app := &cli.App{
		Name:  "status-stub",
		Usage: "Serve scripted application status responses for local development",
		Flags: append([]cli.Flag{
			listenAddrFlag,
			scriptFlag,
			appFlag,
			ipFlag,
			flags.PprofFlag,
			flags.DrainSecondsFlag,
			statusStubServiceLogFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			handler := httpserver.NewStubHandler()
			if path := cCtx.String(scriptFlag.Name); path != "" {
				if err := loadScripts(handler, path); err != nil {
					logger.Error("Failed to load script file", "err", err)
					return err
				}
			}
			if raw := cCtx.String(appFlag.Name); raw != "" {
				if !common.IsHexAddress(raw) {
					return &interfaces.ValidationError{Field: "app", Value: raw, Reason: "not a valid address"}
				}
				app := common.HexToAddress(raw)
				handler.Script(app, httpserver.AppScript{Steps: []interfaces.AppInfo{
					{App: app, Status: interfaces.AppStateCreated},
					{App: app, Status: interfaces.AppStateDeploying},
					{App: app, Status: interfaces.AppStateRunning, IP: cCtx.String(ipFlag.Name)},
				}})
			}

			srv := httpserver.New(flags.ConfigureServer(cCtx, logger, cCtx.String(listenAddrFlag.Name)), handler)
			srv.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			srv.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadScripts reads a JSON object mapping app addresses to step sequences:
//
//	{"0xabc...": {"steps": [{"status": "deploying"}, {"status": "running", "ip": "10.0.0.2"}]}}
func loadScripts(handler *httpserver.StubHandler, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var scripts map[string]httpserver.AppScript
	if err := json.Unmarshal(raw, &scripts); err != nil {
		return err
	}

	for addr, script := range scripts {
		if !common.IsHexAddress(addr) {
			return &interfaces.ValidationError{Field: "script", Value: addr, Reason: "not a valid address"}
		}
		app := common.HexToAddress(addr)
		for i := range script.Steps {
			script.Steps[i].App = app
		}
		handler.Script(app, script)
	}
	return nil
}
