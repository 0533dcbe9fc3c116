package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cvmcloud/deployer/interfaces"
)

// Registry provides read-only views of the app registry contract.
type Registry struct {
	Backend Backend
	Address common.Address
	Log     *slog.Logger
}

func (r *Registry) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := appRegistryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s: %w", method, err)
	}

	output, err := r.Backend.CallContract(ctx, ethereum.CallMsg{To: &r.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	results, err := appRegistryABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s result: %w", method, err)
	}
	return results, nil
}

// DeriveAppID computes the deterministic app id for an owner/salt pair via a
// read-only contract call, so the id can be surfaced before any transaction
// is sent.
func (r *Registry) DeriveAppID(ctx context.Context, owner common.Address, salt [32]byte) (common.Address, error) {
	results, err := r.call(ctx, "calculateAppId", owner, salt)
	if err != nil {
		return common.Address{}, err
	}
	return results[0].(common.Address), nil
}

// ActiveAppCount returns the number of active applications owned by user.
func (r *Registry) ActiveAppCount(ctx context.Context, user common.Address) (*big.Int, error) {
	results, err := r.call(ctx, "activeAppCount", user)
	if err != nil {
		return nil, err
	}
	return results[0].(*big.Int), nil
}

// AppQuota returns the per-user application quota.
func (r *Registry) AppQuota(ctx context.Context, user common.Address) (*big.Int, error) {
	results, err := r.call(ctx, "appQuota", user)
	if err != nil {
		return nil, err
	}
	return results[0].(*big.Int), nil
}

// LogVisibility reports whether an application's logs are currently public.
func (r *Registry) LogVisibility(ctx context.Context, app common.Address) (bool, error) {
	results, err := r.call(ctx, "logVisibility", app)
	if err != nil {
		return false, err
	}
	return results[0].(bool), nil
}

// AppSummary returns the on-chain record for one application.
func (r *Registry) AppSummary(ctx context.Context, app common.Address) (*interfaces.AppSummary, error) {
	results, err := r.call(ctx, "getApp", app)
	if err != nil {
		return nil, err
	}
	return &interfaces.AppSummary{
		App:           app,
		Owner:         results[0].(common.Address),
		UpgradeByTime: results[1].(uint64),
		PublicLogs:    results[2].(bool),
	}, nil
}

// AppSummaries looks up several applications with one concurrent read per
// item. A failed item yields an absent result rather than aborting the
// batch.
func (r *Registry) AppSummaries(ctx context.Context, apps []common.Address) map[common.Address]*interfaces.AppSummary {
	var mu sync.Mutex
	var wg sync.WaitGroup
	summaries := make(map[common.Address]*interfaces.AppSummary, len(apps))

	for _, app := range apps {
		wg.Add(1)
		go func(app common.Address) {
			defer wg.Done()

			summary, err := r.AppSummary(ctx, app)
			if err != nil {
				if r.Log != nil {
					r.Log.Warn("app lookup failed", "app", app.Hex(), "err", err)
				}
				return
			}

			mu.Lock()
			summaries[app] = summary
			mu.Unlock()
		}(app)
	}

	wg.Wait()
	return summaries
}
