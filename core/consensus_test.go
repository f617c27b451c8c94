package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// mineEasyBlock mines one accepted block onto c using a near-maximal
// target so the call never has to search for a valid nonce.
func mineEasyBlock(t *testing.T, c *Chain, walletPub string) Block {
	t.Helper()
	block, err := c.MakeBlock(walletPub)
	require.NoError(t, err)
	require.True(t, c.Add(block, false))
	return block
}

// chainSharingGenesis builds an empty chain that starts from src's exact
// genesis block, so the two chains agree on a common ancestor the way
// two real nodes on the same network would.
func chainSharingGenesis(t *testing.T, src *Chain) *Chain {
	t.Helper()
	c, err := NewChain(src.blockchainID, false, "")
	require.NoError(t, err)
	genesis := src.Blocks()[0]
	c.blocks = append(c.blocks, genesis)
	c.hashIndex[genesis.Hash] = 0
	return c
}

// chainServer serves the subset of the HTTP surface Consensus's
// PeerClient calls against a live *Chain.
func chainServer(t *testing.T, c *Chain, blockHeight uint64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PeerInfoResponse{
			NodeID:            "remote",
			BlockchainID:      "test-net",
			ProtocolVersion:   "1.0.0",
			NetworkingVersion: "1.0.0",
			BlockHeight:       blockHeight,
		})
	})
	mux.HandleFunc("/latest-block", func(w http.ResponseWriter, r *http.Request) {
		tip, _ := c.Tip()
		_ = json.NewEncoder(w).Encode(tip)
	})
	mux.HandleFunc("/blockinv", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(c.BlockInv())
	})
	mux.HandleFunc("/block/", func(w http.ResponseWriter, r *http.Request) {
		hash := strings.TrimPrefix(r.URL.Path, "/block/")
		block, ok := c.GetBlockFromHash(hash)
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(block)
	})
	mux.HandleFunc("/pending-transactions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(c.Mempool().Pool())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBestPeerPicksHighestReportedHeight(t *testing.T) {
	low, err := NewChain("test-net", true, "")
	require.NoError(t, err)
	high, err := NewChain("test-net", true, "")
	require.NoError(t, err)

	lowSrv := chainServer(t, low, 1)
	highSrv := chainServer(t, high, 5)

	pool := NewPeerPool(NewPeerClient(), "self", "test-net", "1.0.0", "1.0.0", false, 0)
	pool.active[lowSrv.URL] = PeerInfo{Address: lowSrv.URL, NodeID: "low"}
	pool.active[highSrv.URL] = PeerInfo{Address: highSrv.URL, NodeID: "high"}

	cs := NewConsensus(low, pool, NewPeerClient(), NewSyncStatus())
	addr, height, ok := cs.bestPeer()

	require.True(t, ok)
	require.Equal(t, highSrv.URL, addr)
	require.Equal(t, uint64(5), height)
}

func TestChainConsensusStepFetchesSingleBlockWhenOneBehind(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	remote, err := NewChain("test-net", true, "")
	require.NoError(t, err)
	local := chainSharingGenesis(t, remote)

	mineEasyBlock(t, remote, kp.PublicKeyHex)
	remoteHeight, _ := remote.Height()

	srv := chainServer(t, remote, remoteHeight)
	pool := NewPeerPool(NewPeerClient(), "self", "test-net", "1.0.0", "1.0.0", false, 0)
	pool.active[srv.URL] = PeerInfo{Address: srv.URL, NodeID: "remote"}

	cs := NewConsensus(local, pool, NewPeerClient(), NewSyncStatus())
	cs.chainConsensusStep()

	localHeight, ok := local.Height()
	require.True(t, ok)
	require.Equal(t, remoteHeight, localHeight)
}

func TestForkDecisionAdoptsStrictlyLongerFork(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	local, err := NewChain("test-net", true, "")
	require.NoError(t, err)
	mineEasyBlock(t, local, kp.PublicKeyHex)

	remote, err := NewChain("test-net", true, "")
	require.NoError(t, err)
	mineEasyBlock(t, remote, kp.PublicKeyHex)
	mineEasyBlock(t, remote, kp.PublicKeyHex)
	mineEasyBlock(t, remote, kp.PublicKeyHex)

	remoteHeight, _ := remote.Height()
	srv := chainServer(t, remote, remoteHeight)
	pool := NewPeerPool(NewPeerClient(), "self", "test-net", "1.0.0", "1.0.0", false, 0)
	pool.active[srv.URL] = PeerInfo{Address: srv.URL, NodeID: "remote"}

	cs := NewConsensus(local, pool, NewPeerClient(), NewSyncStatus())
	blockinv, err := cs.client.GetBlockInv(srv.URL)
	require.NoError(t, err)

	cs.forkDecision(srv.URL, blockinv, remoteHeight)

	localHeight, ok := local.Height()
	require.True(t, ok)
	require.Equal(t, remoteHeight, localHeight)
	tip, _ := local.Tip()
	remoteTip, _ := remote.Tip()
	require.Equal(t, remoteTip.Hash, tip.Hash)
}
