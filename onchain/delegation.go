package onchain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/cvmcloud/deployer/interfaces"
)

// delegationPrefix is the EIP-7702 delegation designator tag. An account
// delegated to addr carries the code 0xef0100 || addr.
var delegationPrefix = []byte{0xef, 0x01, 0x00}

// IsDelegated reports whether account code is the delegation designator for
// the given delegate. It is a pure code comparison, decoupled from signing.
func IsDelegated(code []byte, delegate common.Address) bool {
	if len(code) != len(delegationPrefix)+common.AddressLength {
		return false
	}
	if !bytes.HasPrefix(code, delegationPrefix) {
		return false
	}
	return bytes.Equal(code[len(delegationPrefix):], delegate.Bytes())
}

// DelegationManager decides whether the caller's account needs a one-time
// delegation authorization and signs it.
type DelegationManager struct {
	Backend Backend
	Key     *ecdsa.PrivateKey
	Log     *slog.Logger
}

// EnsureAuthorization returns nil when the account already carries the
// delegation designator for the expected delegate. Otherwise it builds and
// signs an authorization tuple with nonce = current transaction count + 1,
// since the authorization is checked against the nonce the account holds
// after the delegating transaction itself.
func (m *DelegationManager) EnsureAuthorization(ctx context.Context, account, delegate common.Address) (*interfaces.DelegationAuthorization, error) {
	code, err := m.Backend.CodeAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("could not read account code: %w", err)
	}
	if IsDelegated(code, delegate) {
		if m.Log != nil {
			m.Log.Debug("account already delegated", "account", account.Hex(), "delegate", delegate.Hex())
		}
		return nil, nil
	}

	if m.Key == nil {
		return nil, &interfaces.AuthorizationError{Account: account, Reason: "delegation required but no signer key available"}
	}

	nonce, err := m.Backend.PendingNonceAt(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("could not read transaction count: %w", err)
	}
	chainID, err := m.Backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read chain id: %w", err)
	}

	signed, err := types.SignSetCode(m.Key, types.SetCodeAuthorization{
		ChainID: *uint256.MustFromBig(chainID),
		Address: delegate,
		Nonce:   nonce + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("could not sign delegation authorization: %w", err)
	}

	if m.Log != nil {
		m.Log.Debug("signed delegation authorization",
			"account", account.Hex(), "delegate", delegate.Hex(), "nonce", nonce+1)
	}
	return &interfaces.DelegationAuthorization{
		ChainID:         chainID,
		DelegateAddress: delegate,
		Nonce:           signed.Nonce,
		V:               signed.V,
		R:               signed.R.ToBig(),
		S:               signed.S.ToBig(),
	}, nil
}

// setCodeAuthorization converts the domain tuple back to the wire type
// attached to the batch transaction.
func setCodeAuthorization(auth *interfaces.DelegationAuthorization) types.SetCodeAuthorization {
	return types.SetCodeAuthorization{
		ChainID: *uint256.MustFromBig(auth.ChainID),
		Address: auth.DelegateAddress,
		Nonce:   auth.Nonce,
		V:       auth.V,
		R:       *uint256.MustFromBig(auth.R),
		S:       *uint256.MustFromBig(auth.S),
	}
}
