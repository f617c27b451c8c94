package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// Num is a float64 that always marshals to its shortest round-trip decimal
// form. Block and transaction hashes are computed over this exact byte
// form, so the representation has to be stable across encode/decode
// cycles rather than merely "close enough" for a human reader.
type Num float64

// MarshalJSON implements json.Marshaler using the shortest round-trip
// representation (strconv's 'g' format, -1 precision).
func (n Num) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(n), 'g', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Num) UnmarshalJSON(data []byte) error {
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*n = Num(f)
	return nil
}

// CanonicalJSON marshals v the same way on every call: encoding/json
// already orders struct fields in declaration order, and every struct this
// package hashes, signs or persists (Block, blockPreimage, Transaction,
// unsignedTx) declares its fields in the alphabetical order of its JSON
// tag, so two encodings of logically equal values always produce
// identical bytes. This is the exact byte sequence hashed and signed
// throughout the package.
func CanonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// HashHex returns the lowercase hex SHA-256 digest of b.
func HashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
