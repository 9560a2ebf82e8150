// Package session provides the wallet session and the encryption-subsystem
// bootstrap that gates the encrypt and decrypt workflows.
package session

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// WalletSession holds the acting account for this process. A session without
// a key is disconnected: workflows that write to the ledger refuse to run.
type WalletSession struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewWalletSession derives the actor address from a hex-encoded private key.
// An empty key yields a disconnected (read-only) session.
func NewWalletSession(privateKeyHex string) (*WalletSession, error) {
	if privateKeyHex == "" {
		return &WalletSession{}, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &WalletSession{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// IsConnected reports whether an acting account is available
func (s *WalletSession) IsConnected() bool {
	return s.key != nil
}

// ActorAddress returns the acting account address, empty when disconnected
func (s *WalletSession) ActorAddress() string {
	return s.address
}

// PrivateKey exposes the signing key for the ledger write gateway
func (s *WalletSession) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}
