package deployer

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cvmcloud/deployer/interfaces"
	"github.com/cvmcloud/deployer/onchain"
	"github.com/cvmcloud/deployer/release"
	"github.com/cvmcloud/deployer/statusapi"
)

// ImageResolver resolves a container reference to a content digest and
// canonical registry name.
type ImageResolver interface {
	Resolve(ctx context.Context, imageRef string) (*interfaces.ResolvedImage, error)
}

// EngineConfig carries everything the pipeline needs.
type EngineConfig struct {
	Backend         onchain.Backend
	Key             *ecdsa.PrivateKey
	RegistryAddress common.Address
	DelegateAddress common.Address
	EncryptionKey   *rsa.PublicKey
	Resolver        ImageResolver
	Status          *statusapi.Client

	// PollInterval overrides the status watcher's default when non-zero.
	PollInterval time.Duration

	Log *slog.Logger
}

// Engine runs the deploy and upgrade pipelines.
type Engine struct {
	cfg        *EngineConfig
	registry   *onchain.Registry
	planner    *onchain.Planner
	delegation *onchain.DelegationManager
	gas        *onchain.GasEstimator
	executor   *onchain.Executor
	builder    *release.Builder
	log        *slog.Logger
}

func NewEngine(cfg *EngineConfig) *Engine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		registry:   &onchain.Registry{Backend: cfg.Backend, Address: cfg.RegistryAddress, Log: log},
		planner:    &onchain.Planner{RegistryAddress: cfg.RegistryAddress},
		delegation: &onchain.DelegationManager{Backend: cfg.Backend, Key: cfg.Key, Log: log},
		gas:        &onchain.GasEstimator{Backend: cfg.Backend, Log: log},
		executor:   &onchain.Executor{Backend: cfg.Backend, Key: cfg.Key, Log: log},
		builder:    release.NewBuilder(cfg.EncryptionKey, log),
		log:        log,
	}
}

// DeployParams describes a fresh application deploy.
type DeployParams struct {
	ImageRef      string
	EnvFile       string
	InstanceType  string
	LogVisibility interfaces.LogVisibility
}

// UpgradeParams describes an upgrade of an existing application.
type UpgradeParams struct {
	AppID         common.Address
	ImageRef      string
	EnvFile       string
	InstanceType  string
	LogVisibility interfaces.LogVisibility
}

// Result is the outcome of a completed deploy or upgrade.
type Result struct {
	AppID  common.Address
	TxHash common.Hash
	IP     string
	Image  *interfaces.ResolvedImage
	Gas    *interfaces.GasEstimate
}

func (e *Engine) owner() (common.Address, error) {
	if e.cfg.Key == nil {
		return common.Address{}, interfaces.ErrNoSigner
	}
	return crypto.PubkeyToAddress(e.cfg.Key.PublicKey), nil
}

// Deploy runs the full deploy pipeline and blocks until the application
// reports Running with a reachable ip.
func (e *Engine) Deploy(ctx context.Context, params DeployParams) (*Result, error) {
	owner, err := e.owner()
	if err != nil {
		return nil, err
	}

	resolved, err := e.cfg.Resolver.Resolve(ctx, params.ImageRef)
	if err != nil {
		return nil, err
	}
	e.log.Info("Resolved image", "digest", resolved.Digest.String(), "registry", resolved.Registry)

	if err := e.checkQuota(ctx, owner); err != nil {
		return nil, err
	}

	salt, err := onchain.NewSalt()
	if err != nil {
		return nil, err
	}
	appID, err := e.registry.DeriveAppID(ctx, owner, salt)
	if err != nil {
		return nil, err
	}
	e.log.Info("Derived app id", "app", appID.Hex())

	rel, err := e.builder.Build(release.BuildParams{
		Digest:       resolved.Digest,
		Registry:     resolved.Registry,
		EnvFile:      params.EnvFile,
		InstanceType: params.InstanceType,
	})
	if err != nil {
		return nil, err
	}

	plan, err := e.planner.PlanDeploy(appID, salt, rel, params.LogVisibility.Public())
	if err != nil {
		return nil, err
	}

	txHash, gas, err := e.submit(ctx, owner, plan)
	if err != nil {
		return nil, err
	}

	ip, err := e.watcher(appID).WatchUntilRunning(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{AppID: appID, TxHash: txHash, IP: ip, Image: resolved, Gas: gas}, nil
}

// Upgrade runs the upgrade pipeline and blocks until the application
// reports the post-upgrade state.
func (e *Engine) Upgrade(ctx context.Context, params UpgradeParams) (*Result, error) {
	owner, err := e.owner()
	if err != nil {
		return nil, err
	}

	resolved, err := e.cfg.Resolver.Resolve(ctx, params.ImageRef)
	if err != nil {
		return nil, err
	}
	e.log.Info("Resolved image", "digest", resolved.Digest.String(), "registry", resolved.Registry)

	currentlyPublic, err := e.registry.LogVisibility(ctx, params.AppID)
	if err != nil {
		return nil, err
	}

	rel, err := e.builder.Build(release.BuildParams{
		Digest:       resolved.Digest,
		Registry:     resolved.Registry,
		EnvFile:      params.EnvFile,
		InstanceType: params.InstanceType,
		AppID:        &params.AppID,
	})
	if err != nil {
		return nil, err
	}

	plan, err := e.planner.PlanUpgrade(params.AppID, rel, params.LogVisibility.Public(), currentlyPublic)
	if err != nil {
		return nil, err
	}

	txHash, gas, err := e.submit(ctx, owner, plan)
	if err != nil {
		return nil, err
	}

	ip, err := e.watcher(params.AppID).WatchUntilUpgraded(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{AppID: params.AppID, TxHash: txHash, IP: ip, Image: resolved, Gas: gas}, nil
}

// checkQuota rejects a deploy before any write when the owner's active app
// count has reached the per-user quota.
func (e *Engine) checkQuota(ctx context.Context, owner common.Address) error {
	active, err := e.registry.ActiveAppCount(ctx, owner)
	if err != nil {
		return err
	}
	quota, err := e.registry.AppQuota(ctx, owner)
	if err != nil {
		return err
	}
	if active.Cmp(quota) >= 0 {
		return &interfaces.ValidationError{
			Field:  "quota",
			Value:  active.String(),
			Reason: fmt.Sprintf("active app count has reached the quota of %s", quota),
		}
	}
	return nil
}

// submit signs the delegation authorization when needed, estimates fees,
// and sends the batch in a single transaction.
func (e *Engine) submit(ctx context.Context, owner common.Address, plan interfaces.BatchPlan) (common.Hash, *interfaces.GasEstimate, error) {
	auth, err := e.delegation.EnsureAuthorization(ctx, owner, e.cfg.DelegateAddress)
	if err != nil {
		return common.Hash{}, nil, err
	}

	callData, err := onchain.PackBatch(plan)
	if err != nil {
		return common.Hash{}, nil, err
	}
	gas, err := e.gas.Estimate(ctx, owner, plan, callData, auth != nil)
	if err != nil {
		return common.Hash{}, nil, err
	}
	e.log.Info("Estimated transaction cost", "gasLimit", gas.GasLimit, "maxCostEth", gas.MaxCostEth)

	txHash, err := e.executor.Execute(ctx, plan, auth, gas)
	if err != nil {
		return common.Hash{}, nil, err
	}
	e.log.Info("Transaction confirmed", "tx", txHash.Hex())
	return txHash, gas, nil
}

func (e *Engine) watcher(app common.Address) *statusapi.Watcher {
	return &statusapi.Watcher{
		App: app,
		Poll: func(ctx context.Context) (interfaces.AppLifecycleState, string, error) {
			return e.cfg.Status.AppStatus(ctx, app)
		},
		Interval: e.cfg.PollInterval,
		Log:      e.log,
	}
}
