package interfaces

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Digest is a 32-byte content hash identifying an immutable container image.
type Digest [32]byte

// NewDigestFromBytes creates a digest from a raw byte slice.
func NewDigestFromBytes(b []byte) (Digest, error) {
	if len(b) != 32 {
		return Digest{}, &ValidationError{Field: "digest", Value: hex.EncodeToString(b), Reason: "must be exactly 32 bytes"}
	}

	var d Digest
	copy(d[:], b)
	return d, nil
}

// NewDigestFromHex creates a digest from a hex string, accepting both the
// bare form and the "sha256:" prefixed form used by registries.
func NewDigestFromHex(s string) (Digest, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(s, "sha256:"), "0x")
	b, err := hex.DecodeString(clean)
	if err != nil {
		return Digest{}, &ValidationError{Field: "digest", Value: s, Reason: "invalid hex encoding"}
	}
	return NewDigestFromBytes(b)
}

// String returns the registry-style "sha256:<hex>" representation.
func (d Digest) String() string {
	return "sha256:" + hex.EncodeToString(d[:])
}

// Bytes returns the raw 32-byte digest.
func (d Digest) Bytes() []byte {
	return d[:]
}

// Artifact identifies one deployable image by content digest and canonical
// registry-qualified name.
type Artifact struct {
	Digest   Digest
	Registry string
}

// Release is the versioned record of a deployable artifact submitted
// on-chain. It is immutable once built.
type Release struct {
	// Artifacts carries exactly one entry; the constructor enforces this.
	Artifacts []Artifact

	// UpgradeByTime is the epoch-seconds deadline by which instances must
	// have picked up the release.
	UpgradeByTime uint64

	// PublicEnv is a JSON object of configuration visible on-chain.
	PublicEnv []byte

	// EncryptedEnv is the envelope ciphertext of a JSON object of private
	// configuration.
	EncryptedEnv []byte
}

// NewRelease composes a release, enforcing the single-artifact invariant.
func NewRelease(artifact Artifact, upgradeByTime uint64, publicEnv, encryptedEnv []byte) (*Release, error) {
	if artifact.Registry == "" {
		return nil, &ValidationError{Field: "registry", Reason: "must not be empty"}
	}
	if artifact.Digest == (Digest{}) {
		return nil, &ValidationError{Field: "digest", Reason: "must not be zero"}
	}

	return &Release{
		Artifacts:     []Artifact{artifact},
		UpgradeByTime: upgradeByTime,
		PublicEnv:     publicEnv,
		EncryptedEnv:  encryptedEnv,
	}, nil
}

// Execution is a single on-chain call within a batch.
type Execution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// BatchPlan is an ordered list of executions submitted atomically in one
// transaction. Order is load-bearing: the creation or upgrade call must
// precede any permission call.
type BatchPlan []Execution

// TotalValue sums the value carried by every execution in the plan.
func (p BatchPlan) TotalValue() *big.Int {
	total := new(big.Int)
	for _, e := range p {
		if e.Value != nil {
			total.Add(total, e.Value)
		}
	}
	return total
}

// DelegationAuthorization is a signed tuple permitting an account to adopt
// delegate code for batched self-calls. Present only when the account's
// on-chain code does not already carry the delegation marker.
type DelegationAuthorization struct {
	ChainID         *big.Int
	DelegateAddress common.Address
	Nonce           uint64
	R, S            *big.Int
	V               uint8
}

// GasEstimate is a conservative fee ceiling for a prepared batch.
type GasEstimate struct {
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	// MaxCostWei is GasLimit * MaxFeePerGas.
	MaxCostWei *big.Int

	// MaxCostEth is the human-readable rendering of MaxCostWei. A non-zero
	// cost never renders as "0"; below display precision it renders as a
	// "<" sentinel instead.
	MaxCostEth string
}

// AppLifecycleState is the remote platform's reported status for a deployed
// application. The engine only observes it.
type AppLifecycleState string

const (
	AppStateCreated     AppLifecycleState = "created"
	AppStateDeploying   AppLifecycleState = "deploying"
	AppStateUpgrading   AppLifecycleState = "upgrading"
	AppStateResuming    AppLifecycleState = "resuming"
	AppStateStopping    AppLifecycleState = "stopping"
	AppStateStopped     AppLifecycleState = "stopped"
	AppStateTerminating AppLifecycleState = "terminating"
	AppStateTerminated  AppLifecycleState = "terminated"
	AppStateSuspended   AppLifecycleState = "suspended"
	AppStateRunning     AppLifecycleState = "running"
	AppStateFailed      AppLifecycleState = "failed"
)

// String returns the wire representation of the state.
func (s AppLifecycleState) String() string {
	return string(s)
}

// LogVisibility controls whether application logs are publicly readable.
type LogVisibility string

const (
	LogVisibilityPublic  LogVisibility = "public"
	LogVisibilityPrivate LogVisibility = "private"
)

// ParseLogVisibility validates a user-supplied visibility string.
func ParseLogVisibility(s string) (LogVisibility, error) {
	switch LogVisibility(s) {
	case LogVisibilityPublic, LogVisibilityPrivate:
		return LogVisibility(s), nil
	default:
		return "", &ValidationError{Field: "log-visibility", Value: s, Reason: `must be "public" or "private"`}
	}
}

// Public reports whether logs should be publicly readable.
func (v LogVisibility) Public() bool {
	return v == LogVisibilityPublic
}

// ResolvedImage is the result of resolving a container reference against a
// registry: content digest, canonical registry-qualified name, and the
// platform the digest was selected for.
type ResolvedImage struct {
	Digest   Digest
	Registry string
	Platform string
}

// AppInfo is one per-application record returned by the status service.
type AppInfo struct {
	App         common.Address    `json:"app"`
	Status      AppLifecycleState `json:"status"`
	IP          string            `json:"ip"`
	MachineType string            `json:"machine_type,omitempty"`
	Uptime      string            `json:"uptime,omitempty"`
}

// AppSummary is the on-chain view of an application used by bulk lookups.
type AppSummary struct {
	App           common.Address
	Owner         common.Address
	UpgradeByTime uint64
	PublicLogs    bool
}

// ErrNoSigner is returned when a transaction or authorization is requested
// without key material configured.
var ErrNoSigner = errors.New("no signer key available")

// PublicEnvSuffix marks environment keys that are published in the clear.
const PublicEnvSuffix = "_PUBLIC"

// MnemonicEnvKey is never included in a release, public or encrypted.
const MnemonicEnvKey = "MNEMONIC"

// InstanceTypeEnvKey carries the machine-type selection in the public env.
const InstanceTypeEnvKey = "INSTANCE_TYPE"
