package onchain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvmcloud/deployer/interfaces"
)

var testDelegate = common.HexToAddress("0x00000000000000000000000000000000000000DD")

func delegationCode(delegate common.Address) []byte {
	return append([]byte{0xef, 0x01, 0x00}, delegate.Bytes()...)
}

func TestIsDelegated(t *testing.T) {
	other := common.HexToAddress("0x00000000000000000000000000000000000000EE")

	assert.True(t, IsDelegated(delegationCode(testDelegate), testDelegate))
	assert.False(t, IsDelegated(delegationCode(other), testDelegate), "wrong delegate")
	assert.False(t, IsDelegated(nil, testDelegate), "empty code")
	assert.False(t, IsDelegated([]byte{0xef, 0x01, 0x01}, testDelegate), "wrong prefix")
	assert.False(t, IsDelegated(append(delegationCode(testDelegate), 0x00), testDelegate), "wrong length")
}

func TestEnsureAuthorizationAlreadyDelegated(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := crypto.PubkeyToAddress(key.PublicKey)

	backend := new(MockBackend)
	backend.On("CodeAt", account, (*big.Int)(nil)).Return(delegationCode(testDelegate), nil)

	manager := &DelegationManager{Backend: backend, Key: key}
	auth, err := manager.EnsureAuthorization(context.Background(), account, testDelegate)
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestEnsureAuthorizationSignsTuple(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := crypto.PubkeyToAddress(key.PublicKey)

	backend := new(MockBackend)
	backend.On("CodeAt", account, (*big.Int)(nil)).Return([]byte{}, nil)
	backend.On("PendingNonceAt", account).Return(uint64(7), nil)
	backend.On("ChainID").Return(big.NewInt(1337), nil)

	manager := &DelegationManager{Backend: backend, Key: key}
	auth, err := manager.EnsureAuthorization(context.Background(), account, testDelegate)
	require.NoError(t, err)
	require.NotNil(t, auth)

	// Valid against the nonce the account holds after the delegating
	// transaction itself.
	assert.Equal(t, uint64(8), auth.Nonce)
	assert.Equal(t, testDelegate, auth.DelegateAddress)
	assert.Equal(t, big.NewInt(1337), auth.ChainID)

	wire := setCodeAuthorization(auth)
	authority, err := wire.Authority()
	require.NoError(t, err)
	assert.Equal(t, account, authority)
}

func TestEnsureAuthorizationWithoutKey(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000FF")

	backend := new(MockBackend)
	backend.On("CodeAt", account, (*big.Int)(nil)).Return([]byte{}, nil)

	manager := &DelegationManager{Backend: backend}
	_, err := manager.EnsureAuthorization(context.Background(), account, testDelegate)

	var authErr *interfaces.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}
