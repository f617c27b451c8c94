package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreatePaymentRoundTrips(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	tx, err := CreatePayment(kp.PrivateKeyHex, kp.PublicKeyHex, "receiver-pub", 1.5)
	require.NoError(t, err)

	require.Equal(t, TxPayment, tx.Type)
	require.Equal(t, kp.PublicKeyHex, tx.Sender)
	require.True(t, validatePaymentShape(tx))
}

func TestCreatePaymentSignatureRejectsTamperedAmount(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	tx, err := CreatePayment(kp.PrivateKeyHex, kp.PublicKeyHex, "receiver-pub", 1.5)
	require.NoError(t, err)

	tx.Amount = Num(1000)
	require.False(t, validatePaymentShape(tx))
}

func TestCreateCoinbaseHasNoSignature(t *testing.T) {
	tx, err := CreateCoinbase("receiver-pub", 5.0)
	require.NoError(t, err)

	require.Equal(t, TxCoinbase, tx.Type)
	require.Equal(t, coinbaseSender, tx.Sender)
	require.Empty(t, tx.Signature)
	require.NotEmpty(t, tx.ID)
}

func TestComputeIDIsDeterministic(t *testing.T) {
	u := unsignedTx{Amount: 3, Receiver: "r", Sender: "s", Timestamp: 100, Type: TxPayment}
	id1, err := computeID(u)
	require.NoError(t, err)
	id2, err := computeID(u)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}
