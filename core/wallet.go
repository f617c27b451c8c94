package core

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"

	bip39 "github.com/tyler-smith/go-bip39"
)

// Wallet is the minimal boundary collaborator the chain/transaction
// engine needs: a single Ed25519 key pair persisted as wallet.json.
// Wallet-file encryption, multiple accounts and derivation paths are
// out of scope here.
type Wallet struct {
	KeyPair
}

// NewWallet generates 128 bits of entropy as a BIP-39 mnemonic, derives
// an Ed25519 seed from it, and returns the wallet alongside the
// mnemonic so the caller can display it once for backup.
func NewWallet() (Wallet, string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return Wallet{}, "", err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return Wallet{}, "", err
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	pub := priv.Public().(ed25519.PublicKey)

	return Wallet{KeyPair{
		PrivateKeyHex: hex.EncodeToString(priv),
		PublicKeyHex:  hex.EncodeToString(pub),
	}}, mnemonic, nil
}

// WalletFromMnemonic rebuilds a wallet deterministically from a
// previously recorded mnemonic.
func WalletFromMnemonic(mnemonic string) (Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Wallet{}, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	pub := priv.Public().(ed25519.PublicKey)
	return Wallet{KeyPair{
		PrivateKeyHex: hex.EncodeToString(priv),
		PublicKeyHex:  hex.EncodeToString(pub),
	}}, nil
}

// LoadWallet reads a previously saved wallet.json.
func LoadWallet(path string) (Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Wallet{}, err
	}
	var w Wallet
	if err := json.Unmarshal(data, &w.KeyPair); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Save persists the wallet as {"private_key", "public_key"} hex strings.
func (w Wallet) Save(path string) error {
	data, err := json.MarshalIndent(w.KeyPair, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Sign signs msg with the wallet's private key, returning detached
// lowercase hex, with the same signing routine CreatePayment uses.
func (w Wallet) Sign(msg []byte) (string, error) {
	return sign(w.PrivateKeyHex, msg)
}
