package onchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

// MockBackend mocks the Backend interface for tests.
type MockBackend struct {
	mock.Mock
}

// ChainID mocks the ChainID method.
func (m *MockBackend) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called()
	return args.Get(0).(*big.Int), args.Error(1)
}

// CodeAt mocks the CodeAt method.
func (m *MockBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(account, blockNumber)
	return args.Get(0).([]byte), args.Error(1)
}

// CallContract mocks the CallContract method.
func (m *MockBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(call, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// PendingNonceAt mocks the PendingNonceAt method.
func (m *MockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(account)
	return args.Get(0).(uint64), args.Error(1)
}

// HeaderByNumber mocks the HeaderByNumber method.
func (m *MockBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	args := m.Called(number)
	return args.Get(0).(*types.Header), args.Error(1)
}

// SuggestGasTipCap mocks the SuggestGasTipCap method.
func (m *MockBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	args := m.Called()
	return args.Get(0).(*big.Int), args.Error(1)
}

// EstimateGas mocks the EstimateGas method.
func (m *MockBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	args := m.Called(call)
	return args.Get(0).(uint64), args.Error(1)
}

// SendTransaction mocks the SendTransaction method.
func (m *MockBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	args := m.Called(tx)
	return args.Error(0)
}

// TransactionReceipt mocks the TransactionReceipt method.
func (m *MockBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}
