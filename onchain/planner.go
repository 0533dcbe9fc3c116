package onchain

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cvmcloud/deployer/interfaces"
)

// Planner turns a release plus visibility deltas into an ordered list of
// registry calls. Each release is consumed by exactly one plan.
type Planner struct {
	RegistryAddress common.Address
}

// NewSalt returns 32 cryptographically random bytes. A fresh salt is drawn
// per deploy; reusing one collides with the registry's uniqueness check.
func NewSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return [32]byte{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// PlanDeploy builds the batch for a fresh deploy: the creation call, the
// admin acceptance call, and a grant-permission call only when public logs
// were requested. The permission call is always last.
func (p *Planner) PlanDeploy(appID common.Address, salt [32]byte, rel *interfaces.Release, publicLogs bool) (interfaces.BatchPlan, error) {
	createData, err := appRegistryABI.Pack("createApp", salt, toABIRelease(rel))
	if err != nil {
		return nil, fmt.Errorf("could not encode createApp: %w", err)
	}
	acceptData, err := appRegistryABI.Pack("acceptAdmin", appID)
	if err != nil {
		return nil, fmt.Errorf("could not encode acceptAdmin: %w", err)
	}

	plan := interfaces.BatchPlan{
		{Target: p.RegistryAddress, CallData: createData},
		{Target: p.RegistryAddress, CallData: acceptData},
	}

	if publicLogs {
		grantData, err := appRegistryABI.Pack("grantPermission", appID, PublicLogsPermission)
		if err != nil {
			return nil, fmt.Errorf("could not encode grantPermission: %w", err)
		}
		plan = append(plan, interfaces.Execution{Target: p.RegistryAddress, CallData: grantData})
	}
	return plan, nil
}

// PlanUpgrade builds the batch for an upgrade: the upgrade call, followed by
// a grant- or revoke-permission call only when the requested visibility
// differs from the currently observed one. Redundant permission transactions
// are never issued.
func (p *Planner) PlanUpgrade(appID common.Address, rel *interfaces.Release, publicLogs, currentlyPublic bool) (interfaces.BatchPlan, error) {
	upgradeData, err := appRegistryABI.Pack("upgradeApp", appID, toABIRelease(rel))
	if err != nil {
		return nil, fmt.Errorf("could not encode upgradeApp: %w", err)
	}

	plan := interfaces.BatchPlan{
		{Target: p.RegistryAddress, CallData: upgradeData},
	}

	if publicLogs != currentlyPublic {
		method := "grantPermission"
		if !publicLogs {
			method = "revokePermission"
		}
		permData, err := appRegistryABI.Pack(method, appID, PublicLogsPermission)
		if err != nil {
			return nil, fmt.Errorf("could not encode %s: %w", method, err)
		}
		plan = append(plan, interfaces.Execution{Target: p.RegistryAddress, CallData: permData})
	}
	return plan, nil
}
