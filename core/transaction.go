package core

import (
	"time"
)

const coinbaseSender = "coinbase"

// Transaction types.
const (
	TxPayment  = "payment"
	TxCoinbase = "coinbase"
)

// Transaction is the single wire struct carrying both payment and
// coinbase variants; Type discriminates them and Signature is left empty
// (and omitted from JSON) for coinbase. Field order here is alphabetical
// by JSON tag so CanonicalJSON is stable across encodings of the same
// logical transaction.
type Transaction struct {
	Amount    Num    `json:"amount"`
	ID        string `json:"id"`
	Receiver  string `json:"receiver"`
	Sender    string `json:"sender"`
	Signature string `json:"signature,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

// unsignedTx is the body hashed for a transaction's id and signed for its
// signature: every Transaction field except id and signature.
type unsignedTx struct {
	Amount    Num    `json:"amount"`
	Receiver  string `json:"receiver"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

func (t Transaction) unsigned() unsignedTx {
	return unsignedTx{
		Amount:    t.Amount,
		Receiver:  t.Receiver,
		Sender:    t.Sender,
		Timestamp: t.Timestamp,
		Type:      t.Type,
	}
}

// computeID hashes the unsigned body of the transaction.
func computeID(u unsignedTx) (string, error) {
	b, err := CanonicalJSON(u)
	if err != nil {
		return "", err
	}
	return HashHex(b), nil
}

// CreatePayment builds, ids and signs a payment transaction.
func CreatePayment(privHex, senderPub, receiver string, amount float64) (Transaction, error) {
	tx := Transaction{
		Type:      TxPayment,
		Sender:    senderPub,
		Receiver:  receiver,
		Amount:    Num(amount),
		Timestamp: time.Now().Unix(),
	}

	u := tx.unsigned()
	id, err := computeID(u)
	if err != nil {
		return Transaction{}, err
	}
	tx.ID = id

	body, err := CanonicalJSON(u)
	if err != nil {
		return Transaction{}, err
	}
	sig, err := sign(privHex, body)
	if err != nil {
		return Transaction{}, err
	}
	tx.Signature = sig

	return tx, nil
}

// CreateCoinbase builds a coinbase transaction: no signature, sender is
// the literal string "coinbase".
func CreateCoinbase(receiver string, amount float64) (Transaction, error) {
	tx := Transaction{
		Type:      TxCoinbase,
		Sender:    coinbaseSender,
		Receiver:  receiver,
		Amount:    Num(amount),
		Timestamp: time.Now().Unix(),
	}
	id, err := computeID(tx.unsigned())
	if err != nil {
		return Transaction{}, err
	}
	tx.ID = id
	return tx, nil
}

// validatePaymentShape checks id and signature against the unsigned body,
// independent of balance. It does not touch chain or mempool state.
func validatePaymentShape(tx Transaction) bool {
	if tx.Type != TxPayment {
		return false
	}
	u := tx.unsigned()
	body, err := CanonicalJSON(u)
	if err != nil {
		return false
	}
	wantID, err := computeID(u)
	if err != nil || wantID != tx.ID {
		return false
	}
	return verify(tx.Sender, body, tx.Signature)
}
