package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMinerFullnodeAppendsMinedBlocksLocally(t *testing.T) {
	chain, err := NewChain("test-net", true, "")
	require.NoError(t, err)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	peers := NewPeerPool(NewPeerClient(), "self", "test-net", "1.0.0", "1.0.0", false, 0)
	miner := NewMiner(chain, peers, NewPeerClient(), NewSyncStatus(), kp.PublicKeyHex, true)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	miner.Run(ctx)

	height, ok := chain.Height()
	require.True(t, ok)
	require.Greater(t, height, uint64(0))
	require.Greater(t, chain.GetBalance(kp.PublicKeyHex), 0.0)
}

func TestMinerWorkerStopsOnContextCancellation(t *testing.T) {
	chain, err := NewChain("test-net", true, "")
	require.NoError(t, err)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	peers := NewPeerPool(NewPeerClient(), "self", "test-net", "1.0.0", "1.0.0", false, 0)
	miner := NewMiner(chain, peers, NewPeerClient(), NewSyncStatus(), kp.PublicKeyHex, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		miner.worker(ctx, 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not return promptly after context cancellation")
	}
}
