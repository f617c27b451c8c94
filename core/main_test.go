package core

import (
	"strings"
	"testing"
)

// TestMain relaxes the genesis proof-of-work target for the whole test
// binary. Tests exercise chain/consensus/mining logic, not how long it
// takes to grind a nonce, so every chain in this package is born able to
// accept almost any hash.
func TestMain(m *testing.M) {
	genesisTarget = strings.Repeat("f", 64)
	m.Run()
}
