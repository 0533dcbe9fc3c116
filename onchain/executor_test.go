package onchain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cvmcloud/deployer/interfaces"
)

// fakeDataError mimics the RPC error shape that carries revert data.
type fakeDataError struct {
	data string
}

func (e *fakeDataError) Error() string          { return "execution reverted" }
func (e *fakeDataError) ErrorData() interface{} { return e.data }

func testGasEstimate() *interfaces.GasEstimate {
	return &interfaces.GasEstimate{
		GasLimit:             200_000,
		MaxFeePerGas:         gwei(20),
		MaxPriorityFeePerGas: gwei(1),
		MaxCostWei:           big.NewInt(0),
		MaxCostEth:           "0",
	}
}

func packCustomError(t *testing.T, name string, args ...interface{}) []byte {
	t.Helper()
	abiErr, ok := appRegistryABI.Errors[name]
	require.True(t, ok, name)
	packed, err := abiErr.Inputs.Pack(args...)
	require.NoError(t, err)
	return append(abiErr.ID.Bytes()[:4], packed...)
}

func TestExecuteSuccessSkipsSimulation(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	plan := interfaces.BatchPlan{{Target: testRegistry, CallData: []byte{0x01}}}

	backend := new(MockBackend)
	backend.On("ChainID").Return(big.NewInt(1337), nil)
	backend.On("PendingNonceAt", mock.Anything).Return(uint64(3), nil)
	backend.On("SendTransaction", mock.Anything).Return(nil)
	backend.On("TransactionReceipt", mock.Anything).Return(&types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
	}, nil)

	executor := &Executor{Backend: backend, Key: key}
	hash, err := executor.Execute(context.Background(), plan, nil, testGasEstimate())
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	// The success path never pays for a revert simulation.
	backend.AssertNotCalled(t, "CallContract", mock.Anything, mock.Anything)
}

func TestExecuteAttachesDelegation(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := crypto.PubkeyToAddress(key.PublicKey)

	auth := &interfaces.DelegationAuthorization{
		ChainID:         big.NewInt(1337),
		DelegateAddress: testDelegate,
		Nonce:           4,
		V:               0,
		R:               big.NewInt(1),
		S:               big.NewInt(1),
	}

	var submitted *types.Transaction
	backend := new(MockBackend)
	backend.On("ChainID").Return(big.NewInt(1337), nil)
	backend.On("PendingNonceAt", account).Return(uint64(3), nil)
	backend.On("SendTransaction", mock.Anything).Run(func(args mock.Arguments) {
		submitted = args.Get(0).(*types.Transaction)
	}).Return(nil)
	backend.On("TransactionReceipt", mock.Anything).Return(&types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
	}, nil)

	executor := &Executor{Backend: backend, Key: key}
	plan := interfaces.BatchPlan{{Target: testRegistry, CallData: []byte{0x01}}}
	_, err = executor.Execute(context.Background(), plan, auth, testGasEstimate())
	require.NoError(t, err)

	require.NotNil(t, submitted)
	assert.Equal(t, uint8(types.SetCodeTxType), submitted.Type())
	require.Len(t, submitted.SetCodeAuthorizations(), 1)
	assert.Equal(t, testDelegate, submitted.SetCodeAuthorizations()[0].Address)
	// Self-call pattern: the transaction targets the sender's own account.
	assert.Equal(t, account, *submitted.To())
}

func TestExecuteRevertDecodesCustomError(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	payload := packCustomError(t, "QuotaExceeded", big.NewInt(5), big.NewInt(5))

	backend := new(MockBackend)
	backend.On("ChainID").Return(big.NewInt(1337), nil)
	backend.On("PendingNonceAt", mock.Anything).Return(uint64(3), nil)
	backend.On("SendTransaction", mock.Anything).Return(nil)
	backend.On("TransactionReceipt", mock.Anything).Return(&types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(100),
	}, nil)
	backend.On("CallContract", mock.Anything, big.NewInt(100)).
		Return(nil, &fakeDataError{data: hexutil.Encode(payload)})

	executor := &Executor{Backend: backend, Key: key}
	plan := interfaces.BatchPlan{{Target: testRegistry, CallData: []byte{0x01}}}
	hash, err := executor.Execute(context.Background(), plan, nil, testGasEstimate())

	var revertErr *interfaces.ContractRevertError
	require.ErrorAs(t, err, &revertErr)
	assert.Equal(t, hash, revertErr.TxHash, "a revert still carries the transaction hash")
	assert.Equal(t, "QuotaExceeded", revertErr.Name)
	assert.Contains(t, revertErr.Message, "quota exceeded")
	assert.Equal(t, payload, revertErr.RawData)
}

func TestExecuteRevertWithUndecodableData(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := new(MockBackend)
	backend.On("ChainID").Return(big.NewInt(1337), nil)
	backend.On("PendingNonceAt", mock.Anything).Return(uint64(3), nil)
	backend.On("SendTransaction", mock.Anything).Return(nil)
	backend.On("TransactionReceipt", mock.Anything).Return(&types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(100),
	}, nil)
	backend.On("CallContract", mock.Anything, big.NewInt(100)).
		Return(nil, &fakeDataError{data: "0xdeadbeef00"})

	executor := &Executor{Backend: backend, Key: key}
	plan := interfaces.BatchPlan{{Target: testRegistry, CallData: []byte{0x01}}}
	_, err = executor.Execute(context.Background(), plan, nil, testGasEstimate())

	var revertErr *interfaces.ContractRevertError
	require.ErrorAs(t, err, &revertErr)
	assert.Empty(t, revertErr.Name)
	assert.Contains(t, revertErr.Error(), "0xdeadbeef00")
}

func TestDecodeRevert(t *testing.T) {
	t.Run("each known custom error", func(t *testing.T) {
		testCases := []struct {
			payload []byte
			name    string
		}{
			{packCustomError(t, "QuotaExceeded", big.NewInt(3), big.NewInt(3)), "QuotaExceeded"},
			{packCustomError(t, "Unauthorized"), "Unauthorized"},
			{packCustomError(t, "AppNotFound", testAppID), "AppNotFound"},
			{packCustomError(t, "SignatureExpired"), "SignatureExpired"},
			{packCustomError(t, "InvalidArtifact"), "InvalidArtifact"},
			{packCustomError(t, "UpgradeDeadlinePassed", uint64(1717243200)), "UpgradeDeadlinePassed"},
		}

		for _, tc := range testCases {
			name, message := DecodeRevert(tc.payload)
			assert.Equal(t, tc.name, name)
			assert.NotEmpty(t, message)
		}
	})

	t.Run("standard Error(string)", func(t *testing.T) {
		stringType, err := abi.NewType("string", "", nil)
		require.NoError(t, err)
		packed, err := abi.Arguments{{Type: stringType}}.Pack("out of gas budget")
		require.NoError(t, err)

		name, message := DecodeRevert(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
		assert.Equal(t, "Error", name)
		assert.Equal(t, "out of gas budget", message)
	})

	t.Run("unknown payloads", func(t *testing.T) {
		for _, payload := range [][]byte{nil, {0x01}, {0xde, 0xad, 0xbe, 0xef}} {
			name, message := DecodeRevert(payload)
			assert.Empty(t, name)
			assert.Empty(t, message)
		}
	})
}
