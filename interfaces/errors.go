package interfaces

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidationError reports a malformed input rejected before any network call.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// PlatformMismatchError reports that an image does not provide the required
// platform. It carries every platform found so the message can enumerate
// them, plus remediation text.
type PlatformMismatchError struct {
	Reference      string
	Required       string
	FoundPlatforms []string
}

func (e *PlatformMismatchError) Error() string {
	found := "none"
	if len(e.FoundPlatforms) > 0 {
		found = strings.Join(e.FoundPlatforms, ", ")
	}
	return fmt.Sprintf(
		"image %s does not provide platform %s (found: %s); rebuild with `docker buildx build --platform %s -t %s .` and push it before deploying",
		e.Reference, e.Required, found, e.Required, e.Reference)
}

// NetworkError wraps a remote-call failure. It is retried only for status
// polling and rate-limited HTTP, never for one-shot chain reads or writes.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ContractRevertError reports a reverted transaction with the decoded
// custom-error name mapped to friendly text, or the raw revert payload when
// undecodable. The transaction hash is always present: a revert raises even
// though a hash was produced.
type ContractRevertError struct {
	TxHash  common.Hash
	Name    string
	Message string
	RawData []byte
}

func (e *ContractRevertError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Message)
	}
	if len(e.RawData) > 0 {
		return fmt.Sprintf("transaction %s reverted with data 0x%x", e.TxHash.Hex(), e.RawData)
	}
	return fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
}

// LifecycleFailure reports that the remote platform marked the application
// Failed. It is fatal and never retried.
type LifecycleFailure struct {
	App    common.Address
	Status AppLifecycleState
}

func (e *LifecycleFailure) Error() string {
	return fmt.Sprintf("application %s entered terminal state %s", e.App.Hex(), e.Status)
}

// AuthorizationError reports missing or unusable signer or account material.
type AuthorizationError struct {
	Account common.Address
	Reason  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("account %s: %s", e.Account.Hex(), e.Reason)
}
