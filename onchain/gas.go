package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cvmcloud/deployer/interfaces"
)

// Fixed safety multipliers applied to raw estimates.
const (
	gasLimitMultiplierNum = 120
	gasLimitMultiplierDen = 100
	feeCeilingMultiplier  = 2

	// Coarse fallback when no live simulation is available.
	coarseGasBase    = 100_000
	coarseGasPerCall = 50_000

	// costDisplayDecimals bounds the rendered cost precision; anything
	// smaller renders as the "<" sentinel rather than "0".
	costDisplayDecimals = 6
)

var weiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FeeSnapshot is one observation of the fee market.
type FeeSnapshot struct {
	BaseFee     *big.Int
	PriorityFee *big.Int
}

// GasEstimator computes conservative fee ceilings for prepared batches.
type GasEstimator struct {
	Backend Backend
	Log     *slog.Logger
}

// Estimate fetches a fee snapshot and a raw gas estimate concurrently and
// applies the safety multipliers. When the simulation fails the coarse
// per-call formula is used instead; fee snapshot failures are fatal.
//
// A pending delegation forces the coarse formula: the simulation runs
// against the account's current (empty) code and cannot see the delegate
// code the transaction will install, so its result reflects a plain
// value transfer rather than the batch execution.
func (e *GasEstimator) Estimate(ctx context.Context, from common.Address, plan interfaces.BatchPlan, callData []byte, delegationPending bool) (*interfaces.GasEstimate, error) {
	var (
		wg             sync.WaitGroup
		baseFee, tip   *big.Int
		rawGas         uint64
		headerErr      error
		tipErr, gasErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		header, err := e.Backend.HeaderByNumber(ctx, nil)
		if err != nil {
			headerErr = err
			return
		}
		baseFee = header.BaseFee
	}()
	go func() {
		defer wg.Done()
		tip, tipErr = e.Backend.SuggestGasTipCap(ctx)
	}()
	if !delegationPending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rawGas, gasErr = e.Backend.EstimateGas(ctx, ethereum.CallMsg{
				From:  from,
				To:    &from,
				Value: plan.TotalValue(),
				Data:  callData,
			})
		}()
	}
	wg.Wait()

	if headerErr != nil {
		return nil, fmt.Errorf("could not read fee snapshot: %w", headerErr)
	}
	if tipErr != nil {
		return nil, fmt.Errorf("could not read priority fee: %w", tipErr)
	}
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	if gasErr != nil {
		if e.Log != nil {
			e.Log.Warn("gas simulation unavailable, using coarse estimate", "err", gasErr)
		}
		rawGas = 0
	}

	return Compute(FeeSnapshot{BaseFee: baseFee, PriorityFee: tip}, rawGas, len(plan)), nil
}

// Compute applies the fixed safety multipliers to a fee snapshot and raw gas
// estimate. A zero rawGas selects the coarse per-call formula.
func Compute(snapshot FeeSnapshot, rawGas uint64, executionCount int) *interfaces.GasEstimate {
	if rawGas == 0 {
		rawGas = coarseGasBase + coarseGasPerCall*uint64(executionCount)
	}
	gasLimit := rawGas * gasLimitMultiplierNum / gasLimitMultiplierDen

	if snapshot.BaseFee == nil {
		snapshot.BaseFee = new(big.Int)
	}
	if snapshot.PriorityFee == nil {
		snapshot.PriorityFee = new(big.Int)
	}
	maxFee := new(big.Int).Add(snapshot.BaseFee, snapshot.PriorityFee)
	maxFee.Mul(maxFee, big.NewInt(feeCeilingMultiplier))

	maxCost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), maxFee)

	return &interfaces.GasEstimate{
		GasLimit:             gasLimit,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: new(big.Int).Set(snapshot.PriorityFee),
		MaxCostWei:           maxCost,
		MaxCostEth:           FormatEthCost(maxCost),
	}
}

// FormatEthCost renders a wei amount as a decimal ETH string with trailing
// zeros trimmed. A non-zero amount below display precision renders as a "<"
// sentinel instead of "0" to avoid implying a free transaction.
func FormatEthCost(wei *big.Int) string {
	if wei.Sign() == 0 {
		return "0"
	}

	whole := new(big.Int).Div(wei, weiPerEth)
	frac := new(big.Int).Mod(wei, weiPerEth)

	// Truncate the fraction to display precision.
	truncator := new(big.Int).Exp(big.NewInt(10), big.NewInt(18-costDisplayDecimals), nil)
	fracDisplay := new(big.Int).Div(frac, truncator)

	if whole.Sign() == 0 && fracDisplay.Sign() == 0 {
		return fmt.Sprintf("<0.%0*d", costDisplayDecimals, 1)
	}

	s := fmt.Sprintf("%s.%0*d", whole.String(), costDisplayDecimals, fracDisplay)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s
}
