package core

import "time"

// Block is immutable once hashed. Field order is alphabetical by JSON tag
// so both the full block and CanonicalJSON(blockWithoutHash) are stable
// across encodings of the same logical block.
type Block struct {
	BlockchainID string `json:"blockchain_id"`

	// Hash is excluded from the preimage by preimage below; json tag
	// kept so the full block still round-trips over the wire.
	Hash string `json:"hash"`

	Height       uint64        `json:"height"`
	Nonce        string        `json:"nonce"`
	PreviousHash *string       `json:"previous_hash"`
	Target       string        `json:"target"`
	Time         Num           `json:"time"`
	Transactions []Transaction `json:"transactions"`
}

// blockPreimage mirrors Block but omits Hash; this is exactly what gets
// canonical-JSON-encoded and hashed to produce Block.Hash.
type blockPreimage struct {
	BlockchainID string        `json:"blockchain_id"`
	Height       uint64        `json:"height"`
	Nonce        string        `json:"nonce"`
	PreviousHash *string       `json:"previous_hash"`
	Target       string        `json:"target"`
	Time         Num           `json:"time"`
	Transactions []Transaction `json:"transactions"`
}

func (b Block) preimage() blockPreimage {
	return blockPreimage{
		BlockchainID: b.BlockchainID,
		Height:       b.Height,
		Nonce:        b.Nonce,
		PreviousHash: b.PreviousHash,
		Target:       b.Target,
		Time:         b.Time,
		Transactions: b.Transactions,
	}
}

// computeHash returns sha256(CanonicalJSON(block without hash)) as lower
// hex.
func computeHash(b Block) (string, error) {
	body, err := CanonicalJSON(b.preimage())
	if err != nil {
		return "", err
	}
	return HashHex(body), nil
}

// newBlock finalises height/time/target/previous hash/transactions into a
// hashed Block with a fresh random nonce.
func newBlock(height uint64, blockchainID string, txs []Transaction, previousHash *string, target string) (Block, error) {
	nonce, err := randomNonceHex()
	if err != nil {
		return Block{}, err
	}
	b := Block{
		BlockchainID: blockchainID,
		Height:       height,
		Nonce:        nonce,
		PreviousHash: previousHash,
		Target:       target,
		Time:         Num(float64(time.Now().UnixNano()) / 1e9),
		Transactions: txs,
	}
	hash, err := computeHash(b)
	if err != nil {
		return Block{}, err
	}
	b.Hash = hash
	return b, nil
}
