package core

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewChainCreatesGenesis(t *testing.T) {
	c, err := NewChain("test-net", true, "")
	require.NoError(t, err)

	height, ok := c.Height()
	require.True(t, ok)
	require.Equal(t, uint64(0), height)

	tip, ok := c.Tip()
	require.True(t, ok)
	require.Nil(t, tip.PreviousHash)
	require.Equal(t, genesisTarget, tip.Target)
}

func TestMakeBlockProducesCoinbaseOnlyCandidate(t *testing.T) {
	c, err := NewChain("test-net", true, "")
	require.NoError(t, err)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	block, err := c.MakeBlock(kp.PublicKeyHex)
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Height)
	require.Len(t, block.Transactions, 1)
	require.Equal(t, TxCoinbase, block.Transactions[0].Type)
	require.Equal(t, BlockReward(1), float64(block.Transactions[0].Amount))
}

func TestAddRejectsDuplicateBlock(t *testing.T) {
	c, err := NewChain("test-net", true, "")
	require.NoError(t, err)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	block, err := c.MakeBlock(kp.PublicKeyHex)
	require.NoError(t, err)
	require.True(t, validPoW(block.Hash, block.Target))

	require.True(t, c.Add(block, false))
	require.False(t, c.Add(block, false))
}

func TestValidateRejectsFutureTimestamp(t *testing.T) {
	c, err := NewChain("test-net", true, "")
	require.NoError(t, err)

	coinbase, err := CreateCoinbase("pub", BlockReward(1))
	require.NoError(t, err)
	tip, _ := c.Tip()
	tipHash := tip.Hash

	b := Block{
		BlockchainID: "test-net",
		Height:       1,
		PreviousHash: &tipHash,
		Target:       genesisTarget,
		Time:         Num(float64(time.Now().Add(1*time.Hour).UnixNano()) / 1e9),
		Transactions: []Transaction{coinbase},
	}
	hash, err := computeHash(b)
	require.NoError(t, err)
	b.Hash = hash

	require.False(t, c.Validate(b, false))
}

func TestGetBalanceSumsConfirmedTransactions(t *testing.T) {
	c, err := NewChain("test-net", true, "")
	require.NoError(t, err)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.Equal(t, 0.0, c.GetBalance(kp.PublicKeyHex))

	block, err := c.MakeBlock(kp.PublicKeyHex)
	require.NoError(t, err)
	require.True(t, c.Add(block, false))
	require.Equal(t, BlockReward(1), c.GetBalance(kp.PublicKeyHex))
}

func TestRetargetHalvesTargetWhenBlocksComeInTwiceAsFast(t *testing.T) {
	c, err := NewChain("test-net", false, "")
	require.NoError(t, err)

	// retargetInterval blocks is exactly enough for the first legitimate
	// retarget, anchored at c.blocks[len-retargetInterval] (index 0 here)
	// through the tip (index retargetInterval-1). Only those two blocks'
	// timestamps matter to retargetLocked; the span between them is set
	// to exactly half of the expected retargetSpanSecs*retargetInterval,
	// i.e. blocks arrived twice as fast as targeted.
	const blockCount = retargetInterval
	expectedSpan := float64(retargetSpanSecs * retargetInterval)
	base := time.Now().Add(-time.Duration(expectedSpan) * time.Second)
	var prevHash *string
	for h := uint64(0); h < blockCount; h++ {
		elapsed := expectedSpan / 2 * float64(h) / float64(blockCount-1)
		b := Block{
			BlockchainID: "test-net",
			Height:       h,
			PreviousHash: prevHash,
			Target:       genesisTarget,
			Time:         Num(float64(base.Unix()) + elapsed),
		}
		hash, err := computeHash(b)
		require.NoError(t, err)
		b.Hash = hash
		c.blocks = append(c.blocks, b)
		c.hashIndex[b.Hash] = int(h)
		hc := b.Hash
		prevHash = &hc
	}

	oldTarget := c.target
	oldTargetInt, ok := new(big.Int).SetString(oldTarget, 16)
	require.True(t, ok)
	wantFloat := new(big.Float).Mul(new(big.Float).SetInt(oldTargetInt), big.NewFloat(0.5))
	wantTargetInt, _ := wantFloat.Int(nil)
	wantTarget := fmt.Sprintf("%064x", wantTargetInt)

	changed := c.retargetLocked()
	require.True(t, changed)
	require.Equal(t, wantTarget, c.target)
}
