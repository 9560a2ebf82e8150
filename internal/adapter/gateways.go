// Package adapter provides the gateway implementations the orchestrator runs
// against: the EVM ledger (read and write) and the FHE relayer (encryption
// and decryption proofs).
package adapter

import (
	"context"
	"math/big"
)

// BusinessData is the raw per-record payload returned by the ledger contract.
// Fields arrive as chain-native types and may be nil on partial responses;
// normalization into a typed Record happens in the registry.
type BusinessData struct {
	Name           string
	Timestamp      *big.Int
	Creator        string
	PublicValue1   *big.Int
	PublicValue2   *big.Int
	IsVerified     bool
	DecryptedValue *big.Int
}

// EncryptedInput is the encrypted payload plus input proof produced by the
// encryption gateway for one cleartext value.
type EncryptedInput struct {
	Data  []byte
	Proof []byte
}

// PendingTx represents a submitted ledger write awaiting confirmation
type PendingTx interface {
	// Hash returns the transaction hash as a 0x-prefixed hex string
	Hash() string
	// AwaitConfirmation blocks until the transaction is mined, returning an
	// error if it reverted or the wait failed
	AwaitConfirmation(ctx context.Context) error
}

// ProofSubmitter submits ABI-encoded clear values and a decryption proof
// back on-chain for verification. Supplied by the workflow to the oracle.
type ProofSubmitter func(ctx context.Context, encodedClearValues, proof []byte) (PendingTx, error)
