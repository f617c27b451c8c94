package core

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

const blockAcceptanceWait = 5 * time.Second

// Miner runs one nonce-search worker per CPU core against a shared
// chain, peer pool and sync status. Workers self-cancel whenever the
// chain advances past the height they started on, or ctx is cancelled.
type Miner struct {
	chain      *Chain
	peers      *PeerPool
	client     *PeerClient
	status     *SyncStatus
	fullnode   bool
	walletPub  string
	log        *logrus.Entry
}

// NewMiner builds a miner that mints coinbase rewards to walletPub. When
// fullnode is true, mined blocks are appended locally; otherwise they
// are broadcast to peers on the same fork.
func NewMiner(chain *Chain, peers *PeerPool, client *PeerClient, status *SyncStatus, walletPub string, fullnode bool) *Miner {
	return &Miner{
		chain:     chain,
		peers:     peers,
		client:    client,
		status:    status,
		fullnode:  fullnode,
		walletPub: walletPub,
		log:       logrus.WithField("component", "miner"),
	}
}

// Run spawns one worker per CPU and blocks until ctx is cancelled.
func (m *Miner) Run(ctx context.Context) {
	workers := runtime.NumCPU()
	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func(id int) {
			m.worker(ctx, id)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < workers; i++ {
		<-done
	}
}

func (m *Miner) worker(ctx context.Context, id int) {
	log := m.log.WithField("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for m.status.Snapshot().Syncing {
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		}

		height, _ := m.chain.Height()
		targetHeight := height + 1

		candidate, err := m.chain.MakeBlock(m.walletPub)
		if err != nil {
			log.WithError(err).Warn("failed to build candidate block")
			continue
		}

		if h, _ := m.chain.Height(); h+1 != targetHeight {
			// chain advanced while we were building; restart against the new tip
			continue
		}
		if !validPoW(candidate.Hash, candidate.Target) {
			continue
		}

		m.submit(ctx, candidate, targetHeight, log)
	}
}

// submit appends or broadcasts a successfully mined block, then waits
// for it to land in the chain before the worker resumes searching.
func (m *Miner) submit(ctx context.Context, block Block, targetHeight uint64, log *logrus.Entry) {
	if m.fullnode {
		m.chain.Add(block, true)
	} else {
		for _, peer := range m.peers.PeersWithBlockhash(func() string {
			tip, _ := m.chain.Tip()
			return tip.Hash
		}(), maxActivePeers) {
			_ = m.client.PostBlock(peer, block)
		}
	}

	deadline := time.After(blockAcceptanceWait)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			log.WithField("height", targetHeight).Info("mined block was not accepted, resuming search")
			return
		case <-ticker.C:
			if m.chain.ContainsHash(block.Hash) {
				return
			}
			if h, _ := m.chain.Height(); h >= targetHeight {
				return
			}
		}
	}
}
