package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// KeyPair is a hex-encoded Ed25519 signing key pair. Both fields are
// lowercase hex (an Ed25519 public key is 32 bytes -> 64 hex chars).
type KeyPair struct {
	PrivateKeyHex string `json:"private_key"`
	PublicKeyHex  string `json:"public_key"`
}

// GenerateKeyPair creates a fresh Ed25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return KeyPair{
		PrivateKeyHex: hex.EncodeToString(priv),
		PublicKeyHex:  hex.EncodeToString(pub),
	}, nil
}

// sign produces a detached 64-byte Ed25519 signature over msg under
// privHex, returned as lowercase hex.
func sign(privHex string, msg []byte) (string, error) {
	priv, err := hex.DecodeString(privHex)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return "", errors.New("invalid private key size")
	}
	sig := ed25519.Sign(ed25519.PrivateKey(priv), msg)
	return hex.EncodeToString(sig), nil
}

// verify checks a detached Ed25519 signature over msg under pubHex.
func verify(pubHex string, msg []byte, sigHex string) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// randomNonceHex returns a random 64-bit value formatted as lowercase hex.
func randomNonceHex() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	v := binary.BigEndian.Uint64(b[:])
	return fmt.Sprintf("%x", v), nil
}
