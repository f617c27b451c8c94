package core

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	retargetInterval   = 40      // blocks between difficulty retargets
	retargetSpanSecs   = 60      // expected seconds per block
	rewardHalvingEvery = 100_000 // blocks between coinbase reward halvings
	initialReward      = 5.0     // coins
	requiredConfirms   = 5       // blocks before a transaction leaves the unconfirmed pool
	retargetClampLow   = 0.25    // floor on a single retarget adjustment
	retargetClampHigh  = 4.0     // ceiling on a single retarget adjustment
)

// genesisTarget is the constant PoW target a genesis block is born with:
// five hex zeros followed by hex f's out to 64 characters.
var genesisTarget = "00000" + strings.Repeat("f", 59)

// Chain is the node's single linear block sequence. Read accessors and
// balance queries take the read lock. Validate takes the write lock
// briefly to apply a pending retarget and snapshot the tip, then checks
// the block outside it. Add appends under the write lock only if the tip
// is still the block's parent; Clear empties the chain under the write
// lock and appends a fresh genesis block, if asked, under a second
// acquisition.
type Chain struct {
	mu sync.RWMutex

	blockchainID string
	blocks       []Block
	target       string
	hashIndex    map[string]int

	mempool *TransactionPool

	path     string
	autosave bool

	log *logrus.Entry
}

// NewChain constructs a chain for blockchainID. If createGenesis is true
// a genesis block is appended immediately.
func NewChain(blockchainID string, createGenesis bool, persistPath string) (*Chain, error) {
	c := &Chain{
		blockchainID: blockchainID,
		target:       genesisTarget,
		hashIndex:    make(map[string]int),
		path:         persistPath,
		autosave:     true,
		log:          logrus.WithField("component", "chain"),
	}
	c.mempool = NewTransactionPool(c)

	if createGenesis {
		genesis, err := newBlock(0, blockchainID, nil, nil, c.target)
		if err != nil {
			return nil, err
		}
		c.blocks = append(c.blocks, genesis)
		c.hashIndex[genesis.Hash] = 0
	}

	return c, nil
}

// Mempool returns the chain's transaction pool.
func (c *Chain) Mempool() *TransactionPool { return c.mempool }

// SetAutosave toggles per-append persistence (disabled during bulk sync).
func (c *Chain) SetAutosave(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autosave = on
}

// Height returns the tip's height and true, or (0, false) if the chain is
// empty (no genesis yet).
func (c *Chain) Height() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heightLocked()
}

func (c *Chain) heightLocked() (uint64, bool) {
	if len(c.blocks) == 0 {
		return 0, false
	}
	return c.blocks[len(c.blocks)-1].Height, true
}

// Tip returns the last block and true, or a zero Block and false if
// empty.
func (c *Chain) Tip() (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return Block{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

// Blocks returns a copy of the full chain.
func (c *Chain) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// BlockInv returns block hashes genesis-to-tip.
func (c *Chain) BlockInv() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Hash
	}
	return out
}

// TransactionInv returns every confirmed transaction, in chain order.
func (c *Chain) TransactionInv() []Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Transaction
	for _, b := range c.blocks {
		out = append(out, b.Transactions...)
	}
	return out
}

// ContainsHash reports whether hash is already in the chain, amortised
// O(1) via hashIndex.
func (c *Chain) ContainsHash(hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.hashIndex[hash]
	return ok
}

// GetBlockFromHash returns the block with the given hash, if any.
func (c *Chain) GetBlockFromHash(hash string) (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.hashIndex[hash]
	if !ok {
		return Block{}, false
	}
	return c.blocks[idx], true
}

// BlockReward is 5 coins, halving every 100,000 blocks (integer
// division), deterministic across peers.
func BlockReward(height uint64) float64 {
	halvings := height / rewardHalvingEvery
	return initialReward / math.Pow(2, float64(halvings))
}

// GetBalance sums confirmed credits/debits to pubKeyHex across the whole
// chain.
func (c *Chain) GetBalance(pubKeyHex string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balanceLocked(pubKeyHex, len(c.blocks))
}

func (c *Chain) balanceLocked(pubKeyHex string, throughBlockExclusive int) float64 {
	return balanceFromBlocks(c.blocks[:throughBlockExclusive], pubKeyHex)
}

// balanceFromBlocks sums confirmed credits/debits to pubKeyHex across
// blocks. Pure function of its argument: safe to call without holding
// any lock as long as the caller owns a stable slice header (e.g. a
// snapshot taken under a read lock).
func balanceFromBlocks(blocks []Block, pubKeyHex string) float64 {
	var balance float64
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			if tx.Receiver == pubKeyHex {
				balance += float64(tx.Amount)
			}
			if tx.Sender == pubKeyHex {
				balance -= float64(tx.Amount)
			}
		}
	}
	return balance
}

// getBalanceFromBlock walks block's transactions in order, applying
// credits/debits to pubKey, stopping after (and including) the
// transaction whose id equals stopAtTxID if non-empty.
func getBalanceFromBlock(b Block, pubKey, stopAtTxID string) float64 {
	var balance float64
	for _, tx := range b.Transactions {
		if tx.Receiver == pubKey {
			balance += float64(tx.Amount)
		}
		if tx.Sender == pubKey {
			balance -= float64(tx.Amount)
		}
		if stopAtTxID != "" && tx.ID == stopAtTxID {
			return balance
		}
	}
	return balance
}

// MakeBlock assembles a new candidate block: coinbase to walletPub at
// index 0, followed by pending mempool transactions not yet confirmed.
func (c *Chain) MakeBlock(walletPub string) (Block, error) {
	c.mu.RLock()
	height, _ := c.heightLocked()
	nextHeight := height + 1
	if len(c.blocks) == 0 {
		nextHeight = 0
	}
	var previousHash *string
	if len(c.blocks) > 0 {
		h := c.blocks[len(c.blocks)-1].Hash
		previousHash = &h
	}
	target := c.target
	confirmedInv := make([]Transaction, 0)
	for _, b := range c.blocks {
		confirmedInv = append(confirmedInv, b.Transactions...)
	}
	c.mu.RUnlock()

	coinbase, err := CreateCoinbase(walletPub, BlockReward(nextHeight))
	if err != nil {
		return Block{}, err
	}

	pending := c.mempool.GetPending(confirmedInv)
	txs := append([]Transaction{coinbase}, pending...)

	return newBlock(nextHeight, c.blockchainID, txs, previousHash, target)
}

// validPoW reports whether block.Hash, read as a big-endian hex integer,
// is strictly less than target.
func validPoW(hash, target string) bool {
	h, ok1 := new(big.Int).SetString(hash, 16)
	t, ok2 := new(big.Int).SetString(target, 16)
	if !ok1 || !ok2 {
		return false
	}
	return h.Cmp(t) < 0
}

// Validate runs the full ordered acceptance check for a candidate block.
// verbose logs a diagnostic on failure.
func (c *Chain) Validate(block Block, verbose bool) bool {
	c.mu.Lock()
	c.retargetLocked()
	target := c.target
	tip, hasTip := c.lastBlockLocked()
	blocksSnapshot := c.blocks
	c.mu.Unlock()

	fail := func(reason string) bool {
		if verbose {
			c.log.WithField("height", block.Height).Warnf("block invalid: %s", reason)
		}
		return false
	}

	if block.BlockchainID != c.blockchainID {
		return fail("wrong blockchain id")
	}

	if c.ContainsHash(block.Hash) {
		return fail("already in chain")
	}

	tipHash := (*string)(nil)
	if hasTip {
		h := tip.Hash
		tipHash = &h
	}
	if !samePreviousHash(block.PreviousHash, tipHash) {
		return fail("previous hash is incorrect")
	}

	if block.Height == 0 {
		if hasTip {
			return fail("genesis block already added")
		}
		return true
	}

	if !hasTip {
		return fail("genesis block has to be added first")
	}
	if block.Height != tip.Height+1 {
		return fail("height is incorrect")
	}

	if !c.validateBlockTransactions(blocksSnapshot, block) {
		return fail("invalid transactions detected")
	}

	if float64(block.Time) < float64(tip.Time) {
		return fail("timestamp is in the past")
	}
	if float64(block.Time) > float64(time.Now().UnixNano())/1e9 {
		return fail("timestamp is in the future")
	}

	wantHash, err := computeHash(block)
	if err != nil || wantHash != block.Hash {
		return fail("hash is invalid")
	}

	if !validPoW(block.Hash, target) {
		return fail("proof of work is invalid")
	}

	return true
}

func samePreviousHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (c *Chain) lastBlockLocked() (Block, bool) {
	if len(c.blocks) == 0 {
		return Block{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

// validateBlockTransactions checks coinbase placement and amount, then
// every payment transaction's balance and shape, against the given
// chain snapshot.
func (c *Chain) validateBlockTransactions(blocks []Block, block Block) bool {
	if len(block.Transactions) < 1 {
		return false
	}
	if block.Transactions[0].Type != TxCoinbase {
		return false
	}
	for _, tx := range block.Transactions[1:] {
		if tx.Type == TxCoinbase {
			return false
		}
	}
	if float64(block.Transactions[0].Amount) != BlockReward(block.Height) {
		return false
	}

	if !checkForOverspentTransactions(blocks, block) {
		return false
	}

	for _, tx := range block.Transactions[1:] {
		if !c.mempool.ValidateTransaction(tx) {
			return false
		}
	}

	return true
}

// checkForOverspentTransactions walks each transaction in block against
// its sender's confirmed balance plus the running in-block balance via
// getBalanceFromBlock, against a chain snapshot taken before block was
// appended.
func checkForOverspentTransactions(blocks []Block, block Block) bool {
	for _, tx := range block.Transactions {
		if tx.Type == TxCoinbase {
			continue
		}
		balance := balanceFromBlocks(blocks, tx.Sender) + getBalanceFromBlock(block, tx.Sender, tx.ID)
		if balance < 0 {
			return false
		}
	}
	return true
}

// Add validates block, appends it if the tip has not moved since
// validation, updates the mempool and persists.
func (c *Chain) Add(block Block, verbose bool) bool {
	if !c.Validate(block, verbose) {
		return false
	}

	c.mu.Lock()
	tip, hasTip := c.lastBlockLocked()
	var tipHash *string
	if hasTip {
		h := tip.Hash
		tipHash = &h
	}
	if _, dup := c.hashIndex[block.Hash]; dup || !samePreviousHash(block.PreviousHash, tipHash) {
		c.mu.Unlock()
		return false
	}
	c.blocks = append(c.blocks, block)
	c.hashIndex[block.Hash] = len(c.blocks) - 1
	blocksSnapshot := make([]Block, len(c.blocks))
	copy(blocksSnapshot, c.blocks)
	autosave := c.autosave
	c.mu.Unlock()

	c.mempool.UpdatePool(blocksSnapshot)

	if autosave {
		if err := c.Save(); err != nil {
			c.log.WithError(err).Warn("failed to persist chain")
		}
	}

	return true
}

// retargetLocked recalculates the PoW target once every retargetInterval
// blocks, performed lazily whenever Validate runs. Caller must hold c.mu
// (write lock).
func (c *Chain) retargetLocked() bool {
	height, ok := c.heightLocked()
	if !ok || height == 0 {
		return false
	}

	tip := c.blocks[len(c.blocks)-1]
	if c.target != tip.Target {
		// already retargeted for this tip
		return false
	}

	if (height+1)%retargetInterval != 0 {
		return false
	}

	expected := float64(retargetSpanSecs * retargetInterval)
	actual := float64(c.blocks[len(c.blocks)-1].Time) - float64(c.blocks[len(c.blocks)-retargetInterval].Time)
	ratio := actual / expected

	if ratio < retargetClampLow {
		ratio = retargetClampLow
	}
	if ratio > retargetClampHigh {
		ratio = retargetClampHigh
	}

	curTarget, ok := new(big.Int).SetString(c.target, 16)
	if !ok {
		return false
	}
	newTargetFloat := new(big.Float).Mul(new(big.Float).SetInt(curTarget), big.NewFloat(ratio))
	newTarget, _ := newTargetFloat.Int(nil)

	c.target = fmt.Sprintf("%064x", newTarget)
	c.log.WithField("target", c.target).Info("retargeted difficulty")
	return true
}

// Clear reinitialises the chain, optionally with a fresh genesis block.
func (c *Chain) Clear(createGenesis bool) error {
	c.mu.Lock()
	c.blocks = nil
	c.hashIndex = make(map[string]int)
	c.target = genesisTarget
	c.mu.Unlock()

	c.mempool = NewTransactionPool(c)

	if createGenesis {
		genesis, err := newBlock(0, c.blockchainID, nil, nil, genesisTarget)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.blocks = append(c.blocks, genesis)
		c.hashIndex[genesis.Hash] = 0
		c.mu.Unlock()
	}
	return nil
}

// Save persists the chain as a canonical-JSON array of blocks.
func (c *Chain) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	blocks := make([]Block, len(c.blocks))
	copy(blocks, c.blocks)
	c.mu.RUnlock()

	data, err := json.Marshal(blocks)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// Load reads a previously persisted chain, replacing the in-memory chain
// only if the file holds more blocks. Read errors and malformed files
// are tolerated: the in-memory chain is kept.
func (c *Chain) Load() bool {
	if c.path == "" {
		return false
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return false
	}

	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		c.log.WithError(err).Warn("could not parse blockchain file, keeping in-memory chain")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(blocks) <= len(c.blocks) {
		return false
	}

	c.blocks = blocks
	c.hashIndex = make(map[string]int, len(blocks))
	for i, b := range blocks {
		c.hashIndex[b.Hash] = i
	}
	c.target = blocks[len(blocks)-1].Target
	c.retargetLocked()
	c.log.Info("loaded blockchain from disk")
	return true
}
