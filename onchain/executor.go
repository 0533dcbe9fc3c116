package onchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/cvmcloud/deployer/interfaces"
)

// Executor submits prepared batches as a single transaction addressed to the
// caller's own account and awaits confirmation. Submission is not
// idempotent; a batch is sent exactly once and never automatically
// re-submitted.
type Executor struct {
	Backend Backend
	Key     *ecdsa.PrivateKey
	Log     *slog.Logger
}

// Execute signs and submits the batch, attaching the delegation
// authorization when present, and waits for inclusion. On revert it raises a
// ContractRevertError carrying the decoded reason and the transaction hash;
// the revert simulation runs only on this failure path.
func (x *Executor) Execute(ctx context.Context, plan interfaces.BatchPlan, auth *interfaces.DelegationAuthorization, gas *interfaces.GasEstimate) (common.Hash, error) {
	if x.Key == nil {
		return common.Hash{}, interfaces.ErrNoSigner
	}
	from := crypto.PubkeyToAddress(x.Key.PublicKey)

	callData, err := PackBatch(plan)
	if err != nil {
		return common.Hash{}, err
	}
	totalValue := plan.TotalValue()

	chainID, err := x.Backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not read chain id: %w", err)
	}
	nonce, err := x.Backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not read transaction count: %w", err)
	}

	if gas == nil {
		estimator := &GasEstimator{Backend: x.Backend, Log: x.Log}
		gas, err = estimator.Estimate(ctx, from, plan, callData, auth != nil)
		if err != nil {
			return common.Hash{}, err
		}
	}

	var txData types.TxData
	if auth != nil {
		txData = &types.SetCodeTx{
			ChainID:   uint256.MustFromBig(chainID),
			Nonce:     nonce,
			GasTipCap: uint256.MustFromBig(gas.MaxPriorityFeePerGas),
			GasFeeCap: uint256.MustFromBig(gas.MaxFeePerGas),
			Gas:       gas.GasLimit,
			To:        from,
			Value:     uint256.MustFromBig(totalValue),
			Data:      callData,
			AuthList:  []types.SetCodeAuthorization{setCodeAuthorization(auth)},
		}
	} else {
		txData = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: gas.MaxPriorityFeePerGas,
			GasFeeCap: gas.MaxFeePerGas,
			Gas:       gas.GasLimit,
			To:        &from,
			Value:     totalValue,
			Data:      callData,
		}
	}

	tx, err := types.SignNewTx(x.Key, types.LatestSignerForChainID(chainID), txData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not sign transaction: %w", err)
	}

	if err := x.Backend.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("could not submit transaction: %w", err)
	}
	if x.Log != nil {
		x.Log.Info("submitted batch transaction",
			"tx", tx.Hash().Hex(), "calls", len(plan), "delegating", auth != nil, "max_cost_eth", gas.MaxCostEth)
	}

	receipt, err := bind.WaitMined(ctx, x.Backend, tx)
	if err != nil {
		return tx.Hash(), fmt.Errorf("could not await transaction %s: %w", tx.Hash().Hex(), err)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return tx.Hash(), x.revertError(ctx, from, callData, totalValue, gas.GasLimit, tx.Hash(), receipt.BlockNumber)
	}
	return tx.Hash(), nil
}

// revertError re-issues the identical call as a read-only simulation to
// capture the revert payload and decodes it against the registry's known
// custom-error set.
func (x *Executor) revertError(ctx context.Context, from common.Address, callData []byte, value *big.Int, gasLimit uint64, txHash common.Hash, blockNumber *big.Int) error {
	msg := ethereum.CallMsg{
		From:  from,
		To:    &from,
		Gas:   gasLimit,
		Value: value,
		Data:  callData,
	}

	_, callErr := x.Backend.CallContract(ctx, msg, blockNumber)
	data := revertDataFromError(callErr)

	name, message := DecodeRevert(data)
	if x.Log != nil {
		x.Log.Error("batch transaction reverted", "tx", txHash.Hex(), "error_name", name, "reason", message)
	}
	return &interfaces.ContractRevertError{
		TxHash:  txHash,
		Name:    name,
		Message: message,
		RawData: data,
	}
}

// revertDataFromError extracts the raw revert payload carried by an RPC call
// error, when the node reports one.
func revertDataFromError(err error) []byte {
	if err == nil {
		return nil
	}
	de, ok := err.(rpc.DataError)
	if !ok {
		return nil
	}
	hexData, ok := de.ErrorData().(string)
	if !ok {
		return nil
	}
	data, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil {
		return nil
	}
	return data
}
