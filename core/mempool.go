package core

import "sync"

// balanceSource is the view of the chain the mempool needs: confirmed
// balances. Declared as an interface rather than importing *Chain
// directly so TransactionPool stays unit-testable without a real Chain.
type balanceSource interface {
	GetBalance(pubKeyHex string) float64
}

// TransactionPool is the mempool: validated payment transactions not yet
// in any block (Pool), plus transactions that were in a recent block but
// have not yet been buried under 5 confirmations (UnconfirmedPool).
// Guarded by its own mutex, independent of the chain's lock.
type TransactionPool struct {
	mu               sync.Mutex
	pool             []Transaction
	unconfirmedPool  []Transaction
	chain            balanceSource
}

// NewTransactionPool creates an empty pool backed by chain for balance
// lookups.
func NewTransactionPool(chain balanceSource) *TransactionPool {
	return &TransactionPool{chain: chain}
}

// Pool returns a snapshot of the pending payment transactions.
func (p *TransactionPool) Pool() []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Transaction, len(p.pool))
	copy(out, p.pool)
	return out
}

// UnconfirmedPool returns a snapshot of the unconfirmed transactions.
func (p *TransactionPool) UnconfirmedPool() []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Transaction, len(p.unconfirmedPool))
	copy(out, p.unconfirmedPool)
	return out
}

func containsID(txs []Transaction, id string) bool {
	for _, t := range txs {
		if t.ID == id {
			return true
		}
	}
	return false
}

// ValidateTransaction checks sufficient confirmed balance plus a
// recomputed id and signature, all over the unsigned body.
func (p *TransactionPool) ValidateTransaction(tx Transaction) bool {
	if tx.Amount > Num(p.chain.GetBalance(tx.Sender)) {
		return false
	}
	return validatePaymentShape(tx)
}

// balanceFromPoolLocked sums credits/debits to pubKey from pending pool
// transactions. Caller must hold p.mu.
func (p *TransactionPool) balanceFromPoolLocked(pubKey string) float64 {
	var balance float64
	for _, tx := range p.pool {
		if tx.Sender == pubKey {
			balance -= float64(tx.Amount)
		}
		if tx.Receiver == pubKey {
			balance += float64(tx.Amount)
		}
	}
	return balance
}

// CheckForOverspending computes effective balance as confirmed balance
// plus pool credits/debits; it must not go negative after tx.Amount is
// subtracted.
func (p *TransactionPool) CheckForOverspending(tx Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	balance := p.chain.GetBalance(tx.Sender) + p.balanceFromPoolLocked(tx.Sender)
	balance -= float64(tx.Amount)
	return balance >= 0
}

// Add validates tx, then, atomically under the pool's lock, rejects
// duplicates across both pools, enforces no-overspend and appends to
// Pool.
func (p *TransactionPool) Add(tx Transaction) bool {
	if !p.ValidateTransaction(tx) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if containsID(p.pool, tx.ID) || containsID(p.unconfirmedPool, tx.ID) {
		return false
	}

	balance := p.chain.GetBalance(tx.Sender) + p.balanceFromPoolLocked(tx.Sender) - float64(tx.Amount)
	if balance < 0 {
		return false
	}

	p.pool = append(p.pool, tx)
	return true
}

// GetPending returns pool members whose id is not already confirmed —
// used to populate a new block.
func (p *TransactionPool) GetPending(confirmedInv []Transaction) []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	confirmed := make(map[string]struct{}, len(confirmedInv))
	for _, t := range confirmedInv {
		confirmed[t.ID] = struct{}{}
	}

	pending := make([]Transaction, 0, len(p.pool))
	for _, tx := range p.pool {
		if _, ok := confirmed[tx.ID]; !ok {
			pending = append(pending, tx)
		}
	}
	return pending
}

// UpdatePool moves transactions referenced by the newest block from
// pool to unconfirmedPool; once the chain is at least 5 blocks long,
// transactions referenced by the block 5-from-tip are dropped from
// unconfirmedPool entirely. Chain.Add calls it after appending the block
// and releasing the chain's write lock; UpdatePool takes only the pool's
// own lock, so a reader can briefly see the new block in the chain while
// its transactions are still in Pool.
func (p *TransactionPool) UpdatePool(blocks []Block) {
	if len(blocks) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	latest := blocks[len(blocks)-1]
	for _, tx := range latest.Transactions {
		if idx := indexOfID(p.pool, tx.ID); idx >= 0 {
			p.pool = append(p.pool[:idx], p.pool[idx+1:]...)
			p.unconfirmedPool = append(p.unconfirmedPool, tx)
		}
	}

	if len(blocks) < 5 {
		return
	}

	buried := blocks[len(blocks)-5]
	buriedIDs := make(map[string]struct{}, len(buried.Transactions))
	for _, tx := range buried.Transactions {
		buriedIDs[tx.ID] = struct{}{}
	}

	kept := p.unconfirmedPool[:0:0]
	for _, tx := range p.unconfirmedPool {
		if _, ok := buriedIDs[tx.ID]; !ok {
			kept = append(kept, tx)
		}
	}
	p.unconfirmedPool = kept
}

func indexOfID(txs []Transaction, id string) int {
	for i, t := range txs {
		if t.ID == id {
			return i
		}
	}
	return -1
}
