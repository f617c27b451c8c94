package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumMarshalShortestRoundTrip(t *testing.T) {
	n := Num(0.1 + 0.2)
	data, err := json.Marshal(n)
	require.NoError(t, err)

	var back Num
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, n, back)
}

func TestCanonicalJSONFieldOrderStable(t *testing.T) {
	tx := Transaction{Amount: 1, ID: "a", Receiver: "r", Sender: "s", Timestamp: 1, Type: TxPayment}
	first, err := CanonicalJSON(tx)
	require.NoError(t, err)
	second, err := CanonicalJSON(tx)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestHashHexIsSHA256Hex(t *testing.T) {
	h := HashHex([]byte("hello"))
	require.Len(t, h, 64)
}
