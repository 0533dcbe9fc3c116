package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/docker/docker/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/cvmcloud/deployer/cmd/flags"
	"github.com/cvmcloud/deployer/cryptoutils"
	"github.com/cvmcloud/deployer/deployer"
	"github.com/cvmcloud/deployer/imageutils"
	"github.com/cvmcloud/deployer/interfaces"
	"github.com/cvmcloud/deployer/statusapi"
)

var deployerServiceLogFlag = flags.LogServiceFlagFn("deployer")

var appFlag = &cli.StringFlag{
	Name:     "app",
	Required: true,
	Usage:    "address of the application to upgrade. 40-char hex string",
}

func main() {
	deployFlags := []cli.Flag{
		flags.ImageFlag,
		flags.EnvFileFlag,
		flags.InstanceTypeFlag,
		flags.LogVisibilityFlag,
		flags.LocalEngineFlag,
	}

	app := &cli.App{
		Name:  "deployer",
		Usage: "Deploy and upgrade confidential applications",
		Flags: append([]cli.Flag{
			flags.RPCAddrFlag,
			flags.RegistryContractFlag,
			flags.DelegateContractFlag,
			flags.StatusAPIFlag,
			flags.PrivateKeyFlag,
			flags.EncryptionKeyFlag,
			deployerServiceLogFlag,
		}, flags.CommonFlags...),
		Commands: []*cli.Command{
			{
				Name:  "deploy",
				Usage: "Deploy a fresh application",
				Flags: deployFlags,
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)

					engine, err := buildEngine(cCtx, logger)
					if err != nil {
						return err
					}
					visibility, err := interfaces.ParseLogVisibility(cCtx.String(flags.LogVisibilityFlag.Name))
					if err != nil {
						return err
					}

					result, err := engine.Deploy(cCtx.Context, deployer.DeployParams{
						ImageRef:      cCtx.String(flags.ImageFlag.Name),
						EnvFile:       cCtx.String(flags.EnvFileFlag.Name),
						InstanceType:  cCtx.String(flags.InstanceTypeFlag.Name),
						LogVisibility: visibility,
					})
					if err != nil {
						return err
					}
					printResult(result)
					return nil
				},
			},
			{
				Name:  "upgrade",
				Usage: "Upgrade an existing application",
				Flags: append([]cli.Flag{appFlag}, deployFlags...),
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)

					appAddr := cCtx.String(appFlag.Name)
					if !common.IsHexAddress(appAddr) {
						return &interfaces.ValidationError{Field: "app", Value: appAddr, Reason: "not a valid address"}
					}

					engine, err := buildEngine(cCtx, logger)
					if err != nil {
						return err
					}
					visibility, err := interfaces.ParseLogVisibility(cCtx.String(flags.LogVisibilityFlag.Name))
					if err != nil {
						return err
					}

					result, err := engine.Upgrade(cCtx.Context, deployer.UpgradeParams{
						AppID:         common.HexToAddress(appAddr),
						ImageRef:      cCtx.String(flags.ImageFlag.Name),
						EnvFile:       cCtx.String(flags.EnvFileFlag.Name),
						InstanceType:  cCtx.String(flags.InstanceTypeFlag.Name),
						LogVisibility: visibility,
					})
					if err != nil {
						return err
					}
					printResult(result)
					return nil
				},
			},
			{
				Name:  "resolve-image",
				Usage: "Resolve an image reference to its content digest",
				Flags: []cli.Flag{flags.ImageFlag, flags.LocalEngineFlag},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)

					resolver, err := buildResolver(cCtx, logger)
					if err != nil {
						return err
					}
					resolved, err := resolver.Resolve(cCtx.Context, cCtx.String(flags.ImageFlag.Name))
					if err != nil {
						return err
					}
					fmt.Printf("digest:   %s\nregistry: %s\nplatform: %s\n",
						resolved.Digest, resolved.Registry, resolved.Platform)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func buildResolver(cCtx *cli.Context, logger *slog.Logger) (deployer.ImageResolver, error) {
	registry := &imageutils.RegistryClient{}
	if !cCtx.Bool(flags.LocalEngineFlag.Name) {
		return &imageutils.NetworkResolver{Registry: registry, Log: logger}, nil
	}

	engine, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("could not connect to the Docker engine: %w", err)
	}
	return &imageutils.Resolver{Engine: engine, Registry: registry, Log: logger}, nil
}

func buildEngine(cCtx *cli.Context, logger *slog.Logger) (*deployer.Engine, error) {
	rpcAddress := cCtx.String(flags.RPCAddrFlag.Name)
	logger.Info("Connecting to Ethereum RPC", "address", rpcAddress)
	ethClient, err := ethclient.DialContext(context.Background(), rpcAddress)
	if err != nil {
		logger.Error("Failed to dial RPC", "err", err)
		return nil, err
	}

	registryAddr := cCtx.String(flags.RegistryContractFlag.Name)
	if !common.IsHexAddress(registryAddr) {
		return nil, &interfaces.ValidationError{Field: "registry-contract", Value: registryAddr, Reason: "not a valid address"}
	}
	delegateAddr := cCtx.String(flags.DelegateContractFlag.Name)
	if !common.IsHexAddress(delegateAddr) {
		return nil, &interfaces.ValidationError{Field: "delegate-contract", Value: delegateAddr, Reason: "not a valid address"}
	}

	rawKey := cCtx.String(flags.PrivateKeyFlag.Name)
	if rawKey == "" {
		return nil, interfaces.ErrNoSigner
	}
	key, err := crypto.HexToECDSA(rawKey)
	if err != nil {
		return nil, &interfaces.ValidationError{Field: "private-key", Reason: "not a valid hex-encoded key"}
	}

	pemBytes, err := os.ReadFile(cCtx.String(flags.EncryptionKeyFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not read encryption key: %w", err)
	}
	encryptionKey, err := cryptoutils.ParseRSAPublicKey(pemBytes)
	if err != nil {
		return nil, err
	}

	resolver, err := buildResolver(cCtx, logger)
	if err != nil {
		return nil, err
	}

	return deployer.NewEngine(&deployer.EngineConfig{
		Backend:         ethClient,
		Key:             key,
		RegistryAddress: common.HexToAddress(registryAddr),
		DelegateAddress: common.HexToAddress(delegateAddr),
		EncryptionKey:   encryptionKey,
		Resolver:        resolver,
		Status:          &statusapi.Client{BaseURL: cCtx.String(flags.StatusAPIFlag.Name), Log: logger},
		Log:             logger,
	}), nil
}

func printResult(result *deployer.Result) {
	fmt.Printf("app:    %s\ntx:     %s\nip:     %s\n",
		result.AppID.Hex(), result.TxHash.Hex(), result.IP)
	if result.Gas != nil {
		fmt.Printf("max cost (ETH): %s\n", result.Gas.MaxCostEth)
	}
}
