package onchain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cvmcloud/deployer/interfaces"
)

// appRegistryABIJSON is the surface of the app registry contract used by the
// engine, including its custom-error set for revert decoding.
const appRegistryABIJSON = `[
  {"type":"function","name":"calculateAppId","stateMutability":"view","inputs":[{"name":"deployer","type":"address"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"appId","type":"address"}]},
  {"type":"function","name":"createApp","stateMutability":"nonpayable","inputs":[{"name":"salt","type":"bytes32"},{"name":"release","type":"tuple","components":[{"name":"artifacts","type":"tuple[]","components":[{"name":"digest","type":"bytes32"},{"name":"registry","type":"string"}]},{"name":"upgradeByTime","type":"uint64"},{"name":"publicEnv","type":"bytes"},{"name":"encryptedEnv","type":"bytes"}]}],"outputs":[]},
  {"type":"function","name":"upgradeApp","stateMutability":"nonpayable","inputs":[{"name":"app","type":"address"},{"name":"release","type":"tuple","components":[{"name":"artifacts","type":"tuple[]","components":[{"name":"digest","type":"bytes32"},{"name":"registry","type":"string"}]},{"name":"upgradeByTime","type":"uint64"},{"name":"publicEnv","type":"bytes"},{"name":"encryptedEnv","type":"bytes"}]}],"outputs":[]},
  {"type":"function","name":"acceptAdmin","stateMutability":"nonpayable","inputs":[{"name":"app","type":"address"}],"outputs":[]},
  {"type":"function","name":"grantPermission","stateMutability":"nonpayable","inputs":[{"name":"app","type":"address"},{"name":"permission","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"revokePermission","stateMutability":"nonpayable","inputs":[{"name":"app","type":"address"},{"name":"permission","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"logVisibility","stateMutability":"view","inputs":[{"name":"app","type":"address"}],"outputs":[{"name":"isPublic","type":"bool"}]},
  {"type":"function","name":"activeAppCount","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"count","type":"uint256"}]},
  {"type":"function","name":"appQuota","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"quota","type":"uint256"}]},
  {"type":"function","name":"getApp","stateMutability":"view","inputs":[{"name":"app","type":"address"}],"outputs":[{"name":"owner","type":"address"},{"name":"upgradeByTime","type":"uint64"},{"name":"publicLogs","type":"bool"}]},
  {"type":"error","name":"QuotaExceeded","inputs":[{"name":"active","type":"uint256"},{"name":"quota","type":"uint256"}]},
  {"type":"error","name":"Unauthorized","inputs":[]},
  {"type":"error","name":"AppNotFound","inputs":[{"name":"app","type":"address"}]},
  {"type":"error","name":"SignatureExpired","inputs":[]},
  {"type":"error","name":"InvalidArtifact","inputs":[]},
  {"type":"error","name":"UpgradeDeadlinePassed","inputs":[{"name":"deadline","type":"uint64"}]}
]`

// batchExecutorABIJSON is the delegate contract interface the account adopts
// for batched self-calls.
const batchExecutorABIJSON = `[
  {"type":"function","name":"execute","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}]}],"outputs":[]}
]`

var (
	appRegistryABI   = mustParseABI(appRegistryABIJSON)
	batchExecutorABI = mustParseABI(batchExecutorABIJSON)
)

// PublicLogsPermission is the registry permission bit controlling public log
// access.
var PublicLogsPermission = crypto.Keccak256Hash([]byte("app.logs.public"))

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

// abiArtifact mirrors the registry's artifact tuple.
type abiArtifact struct {
	Digest   [32]byte
	Registry string
}

// abiRelease mirrors the registry's release tuple.
type abiRelease struct {
	Artifacts     []abiArtifact
	UpgradeByTime uint64
	PublicEnv     []byte
	EncryptedEnv  []byte
}

// abiCall mirrors the batch executor's call tuple.
type abiCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

func toABIRelease(rel *interfaces.Release) abiRelease {
	artifacts := make([]abiArtifact, 0, len(rel.Artifacts))
	for _, a := range rel.Artifacts {
		artifacts = append(artifacts, abiArtifact{Digest: a.Digest, Registry: a.Registry})
	}
	return abiRelease{
		Artifacts:     artifacts,
		UpgradeByTime: rel.UpgradeByTime,
		PublicEnv:     rel.PublicEnv,
		EncryptedEnv:  rel.EncryptedEnv,
	}
}

// PackBatch encodes a batch plan as the delegate executor's execute calldata.
func PackBatch(plan interfaces.BatchPlan) ([]byte, error) {
	calls := make([]abiCall, 0, len(plan))
	for _, e := range plan {
		value := e.Value
		if value == nil {
			value = new(big.Int)
		}
		calls = append(calls, abiCall{Target: e.Target, Value: value, Data: e.CallData})
	}
	return batchExecutorABI.Pack("execute", calls)
}
