package core

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	syncBatchSize        = 50
	chainConsensusPeriod = 2 * time.Second
	txConsensusPeriod    = 5 * time.Second
	peerHealthPeriod     = 30 * time.Second
)

// Consensus runs the long-lived chain-consensus, transaction-consensus
// and peer-discovery loops against a shared Chain and PeerPool.
type Consensus struct {
	chain  *Chain
	peers  *PeerPool
	client *PeerClient
	status *SyncStatus
	log    *logrus.Entry
}

// NewConsensus wires a consensus engine to its collaborators.
func NewConsensus(chain *Chain, peers *PeerPool, client *PeerClient, status *SyncStatus) *Consensus {
	return &Consensus{
		chain:  chain,
		peers:  peers,
		client: client,
		status: status,
		log:    logrus.WithField("component", "consensus"),
	}
}

// Run blocks until ctx is cancelled, driving the three background loops
// concurrently.
func (cs *Consensus) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		cs.chainConsensusLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		cs.transactionConsensusLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		cs.peerHealthLoop(ctx)
	}()

	wg.Wait()
}

func (cs *Consensus) peerHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(peerHealthPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.peers.HealthCheck()
		}
	}
}

// bestPeer identifies the active peer reporting the greatest block
// height, returning its address, its reported height and whether any
// active peer answered.
func (cs *Consensus) bestPeer() (addr string, height uint64, ok bool) {
	var bestAddr string
	var bestHeight uint64
	found := false

	for _, p := range cs.peers.Active() {
		info, err := cs.client.GetInfo(p)
		if err != nil {
			continue
		}
		if !found || info.BlockHeight > bestHeight {
			bestAddr = p
			bestHeight = info.BlockHeight
			found = true
		}
	}
	return bestAddr, bestHeight, found
}

func (cs *Consensus) chainConsensusLoop(ctx context.Context) {
	ticker := time.NewTicker(chainConsensusPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.chainConsensusStep()
		}
	}
}

func (cs *Consensus) chainConsensusStep() {
	peer, bestHeight, ok := cs.bestPeer()
	if !ok {
		return
	}

	localHeight, hasTip := cs.chain.Height()
	if !hasTip {
		localHeight = 0
	}
	if bestHeight <= localHeight {
		return
	}
	delta := bestHeight - localHeight
	if !hasTip {
		delta = bestHeight + 1
	}

	if delta == 1 {
		block, err := cs.client.GetLatestBlock(peer)
		if err == nil && cs.chain.Add(block, true) {
			return
		}
	}

	blockinv, err := cs.client.GetBlockInv(peer)
	if err != nil {
		return
	}
	if uint64(len(blockinv)) < bestHeight {
		return
	}

	cs.forkDecision(peer, blockinv, bestHeight)
}

// forkDecision implements the fork-adoption rule: if the peer's
// inventory is an extension of our own chain, sync it live; otherwise
// build a disconnected shadow chain and only adopt it if it ends up
// strictly longer than the one we already have.
func (cs *Consensus) forkDecision(peer string, blockinv []string, bestHeight uint64) {
	localBlocks := cs.chain.BlockInv()
	tip, hasTip := cs.chain.Tip()

	extendsOurs := false
	if len(blockinv) > 0 && len(localBlocks) > 0 && blockinv[0] == localBlocks[0] && hasTip {
		for _, h := range blockinv {
			if h == tip.Hash {
				extendsOurs = true
				break
			}
		}
	}

	if extendsOurs {
		localHeight, _ := cs.chain.Height()
		suffix := blockinv[localHeight+1:]
		cs.syncBlockchain(cs.chain, suffix, peer, bestHeight)
		return
	}

	shadow, err := NewChain(cs.chain.blockchainID, false, "")
	if err != nil {
		cs.log.WithError(err).Warn("could not build shadow chain")
		return
	}
	cs.syncBlockchain(shadow, blockinv, peer, bestHeight)

	shadowHeight, shadowHasTip := shadow.Height()
	if !shadowHasTip {
		return
	}
	if shadowHasTip && !hasTip {
		cs.adoptShadow(shadow)
		return
	}
	if hasTip {
		localHeight, _ := cs.chain.Height()
		if shadowHeight <= localHeight {
			return
		}
	}
	cs.adoptShadow(shadow)
}

// adoptShadow clears the live chain and replays the shadow's blocks
// into it. Any replay failure leaves the live chain at genesis only,
// since there is no good chain left to fall back to.
func (cs *Consensus) adoptShadow(shadow *Chain) {
	cs.log.Info("adopting longer fork from peer")
	if err := cs.chain.Clear(false); err != nil {
		cs.log.WithError(err).Warn("failed to clear chain before fork adoption")
		return
	}
	for _, b := range shadow.Blocks() {
		if !cs.chain.Add(b, true) {
			cs.log.Warn("fork replay failed, resetting to genesis")
			_ = cs.chain.Clear(true)
			return
		}
	}
}

// syncBlockchain downloads blockinv in batches of syncBatchSize,
// fetching unknown hashes in parallel within each batch and appending
// them to chain in order. Autosave is disabled for the duration and
// checkpointed every 10 batches.
func (cs *Consensus) syncBlockchain(chain *Chain, blockinv []string, peer string, bestHeight uint64) {
	if len(blockinv) == 0 {
		return
	}

	chain.SetAutosave(false)
	defer chain.SetAutosave(true)

	height, _ := chain.Height()
	cs.status.BeginSync(peer, height, bestHeight)
	defer cs.status.EndSync()

	batchCount := 0
	for start := 0; start < len(blockinv); start += syncBatchSize {
		end := start + syncBatchSize
		if end > len(blockinv) {
			end = len(blockinv)
		}
		batch := blockinv[start:end]

		batchStart := time.Now()
		blocks := cs.fetchBatch(chain, peer, batch)

		for _, b := range blocks {
			if !chain.Add(b, true) {
				return
			}
			h, _ := chain.Height()
			cs.status.UpdateProgress(h+1, 0)
		}

		elapsed := time.Since(batchStart).Seconds()
		if len(batch) > 0 {
			speed := (elapsed / float64(len(batch))) * 100
			h, _ := chain.Height()
			cs.status.UpdateProgress(h+1, speed)
		}

		batchCount++
		if batchCount%10 == 0 {
			if err := chain.Save(); err != nil {
				cs.log.WithError(err).Warn("checkpoint save failed during sync")
			}
		}
	}

	if err := chain.Save(); err != nil {
		cs.log.WithError(err).Warn("final save failed after sync")
	}
}

// fetchBatch retrieves every hash in batch not already present in
// chain, one goroutine per hash, with a single retry on failure.
func (cs *Consensus) fetchBatch(chain *Chain, peer string, batch []string) []Block {
	type result struct {
		idx   int
		block Block
		ok    bool
	}

	results := make([]result, len(batch))
	var wg sync.WaitGroup

	for i, hash := range batch {
		if chain.ContainsHash(hash) {
			continue
		}
		wg.Add(1)
		go func(i int, hash string) {
			defer wg.Done()
			block, err := cs.client.GetBlockByHash(peer, hash)
			if err != nil {
				block, err = cs.client.GetBlockByHash(peer, hash)
			}
			if err != nil {
				return
			}
			results[i] = result{idx: i, block: block, ok: true}
		}(i, hash)
	}
	wg.Wait()

	out := make([]Block, 0, len(batch))
	for _, r := range results {
		if r.ok {
			out = append(out, r.block)
		}
	}
	return out
}

func (cs *Consensus) transactionConsensusLoop(ctx context.Context) {
	ticker := time.NewTicker(txConsensusPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.transactionConsensusStep()
		}
	}
}

func (cs *Consensus) transactionConsensusStep() {
	tip, hasTip := cs.chain.Tip()
	if !hasTip {
		return
	}

	for _, peer := range cs.peers.Active() {
		latest, err := cs.client.GetLatestBlock(peer)
		if err != nil || latest.Hash != tip.Hash {
			continue
		}
		pending, err := cs.client.GetPendingTransactions(peer)
		if err != nil {
			continue
		}
		for _, tx := range pending {
			cs.chain.Mempool().Add(tx)
		}
	}
}
