package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fixedBalance is a minimal balanceSource stand-in so the pool can be
// tested without a real Chain.
type fixedBalance map[string]float64

func (f fixedBalance) GetBalance(pubKeyHex string) float64 { return f[pubKeyHex] }

func signedPayment(t *testing.T, sender, receiver string, amount float64) (Transaction, KeyPair) {
	t.Helper()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	tx, err := CreatePayment(kp.PrivateKeyHex, kp.PublicKeyHex, receiver, amount)
	require.NoError(t, err)
	return tx, kp
}

func TestPoolAddRejectsOverspend(t *testing.T) {
	tx, kp := signedPayment(t, "", "receiver", 10)
	balances := fixedBalance{kp.PublicKeyHex: 5}
	pool := NewTransactionPool(balances)

	require.False(t, pool.Add(tx))
	require.Empty(t, pool.Pool())
}

func TestPoolAddAcceptsSufficientBalance(t *testing.T) {
	tx, kp := signedPayment(t, "", "receiver", 5)
	balances := fixedBalance{kp.PublicKeyHex: 10}
	pool := NewTransactionPool(balances)

	require.True(t, pool.Add(tx))
	require.Len(t, pool.Pool(), 1)
}

func TestPoolAddRejectsDuplicateID(t *testing.T) {
	tx, kp := signedPayment(t, "", "receiver", 5)
	balances := fixedBalance{kp.PublicKeyHex: 10}
	pool := NewTransactionPool(balances)

	require.True(t, pool.Add(tx))
	require.False(t, pool.Add(tx))
	require.Len(t, pool.Pool(), 1)
}

func TestCheckForOverspendingAccountsForPendingPoolDebits(t *testing.T) {
	txA, kp := signedPayment(t, "", "r1", 6)
	balances := fixedBalance{kp.PublicKeyHex: 10}
	pool := NewTransactionPool(balances)
	require.True(t, pool.Add(txA))

	txB, err := CreatePayment(kp.PrivateKeyHex, kp.PublicKeyHex, "r2", 6)
	require.NoError(t, err)

	require.False(t, pool.CheckForOverspending(txB))
}

func TestUpdatePoolMovesConfirmedTransactionsToUnconfirmedPool(t *testing.T) {
	tx, kp := signedPayment(t, "", "receiver", 5)
	balances := fixedBalance{kp.PublicKeyHex: 10}
	pool := NewTransactionPool(balances)
	require.True(t, pool.Add(tx))

	block := Block{Height: 1, Transactions: []Transaction{tx}}
	pool.UpdatePool([]Block{block})

	require.Empty(t, pool.Pool())
	require.Len(t, pool.UnconfirmedPool(), 1)
}

func TestUpdatePoolBuriesTransactionAfterFiveConfirmations(t *testing.T) {
	tx, kp := signedPayment(t, "", "receiver", 5)
	balances := fixedBalance{kp.PublicKeyHex: 10}
	pool := NewTransactionPool(balances)
	require.True(t, pool.Add(tx))

	containingBlock := Block{Height: 1, Transactions: []Transaction{tx}}
	blocks := []Block{containingBlock}
	pool.UpdatePool(blocks)
	require.Len(t, pool.UnconfirmedPool(), 1)

	for h := uint64(2); h <= 5; h++ {
		blocks = append(blocks, Block{Height: h})
		pool.UpdatePool(blocks)
	}

	require.Empty(t, pool.UnconfirmedPool())
}

func TestGetPendingExcludesAlreadyConfirmedTransactions(t *testing.T) {
	tx, kp := signedPayment(t, "", "receiver", 5)
	balances := fixedBalance{kp.PublicKeyHex: 10}
	pool := NewTransactionPool(balances)
	require.True(t, pool.Add(tx))

	require.Len(t, pool.GetPending(nil), 1)
	require.Empty(t, pool.GetPending([]Transaction{tx}))
}
