package adapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/carbon-tracker/internal/logging"
)

// carbonRegistryABI is the application binary interface of the confidential
// carbon registry contract.
const carbonRegistryABI = `[
	{"type":"function","name":"getAllBusinessIds","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string[]"}]},
	{"type":"function","name":"getBusinessData","stateMutability":"view","inputs":[{"name":"businessId","type":"string"}],"outputs":[{"name":"name","type":"string"},{"name":"timestamp","type":"uint256"},{"name":"creator","type":"address"},{"name":"publicValue1","type":"uint256"},{"name":"publicValue2","type":"uint256"},{"name":"isVerified","type":"bool"},{"name":"decryptedValue","type":"uint256"}]},
	{"type":"function","name":"getEncryptedValue","stateMutability":"view","inputs":[{"name":"businessId","type":"string"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"isAvailable","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"createBusinessData","stateMutability":"nonpayable","inputs":[{"name":"businessId","type":"string"},{"name":"name","type":"string"},{"name":"encryptedValue","type":"bytes32"},{"name":"inputProof","type":"bytes"},{"name":"publicValue1","type":"uint256"},{"name":"publicValue2","type":"uint256"},{"name":"description","type":"string"}],"outputs":[]},
	{"type":"function","name":"verifyDecryption","stateMutability":"nonpayable","inputs":[{"name":"businessId","type":"string"},{"name":"clearValues","type":"bytes"},{"name":"decryptionProof","type":"bytes"}],"outputs":[]}
]`

// EVMLedgerConfig holds configuration for creating an EVMLedger
type EVMLedgerConfig struct {
	// RPCURL is the JSON-RPC endpoint of the chain. Required.
	RPCURL string

	// ContractAddress is the deployed carbon registry contract. Required.
	ContractAddress string

	// ChainID is the EIP-155 chain identifier. Required for writes.
	ChainID int64

	// PrivateKey signs ledger writes. Optional; without it the ledger is
	// read-only and write methods fail.
	PrivateKey *ecdsa.PrivateKey

	// RequestsPerSecond limits outbound RPC calls. Zero disables limiting.
	RequestsPerSecond float64
}

// EVMLedger is the ledger gateway backed by an EVM chain. It implements both
// the read surface (business ids, per-record data, encrypted handles,
// availability) and the signer-capable write surface (record creation and
// decryption-proof submission).
type EVMLedger struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	address  common.Address
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	limiter  *rate.Limiter
	logger   *logging.Logger

	mu sync.Mutex // serializes nonce assignment across writes
}

// NewEVMLedger dials the RPC endpoint and binds the registry contract
func NewEVMLedger(cfg *EVMLedgerConfig) (*EVMLedger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL cannot be empty")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(carbonRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &EVMLedger{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		address:  address,
		chainID:  big.NewInt(cfg.ChainID),
		key:      cfg.PrivateKey,
		limiter:  limiter,
		logger:   logging.GetGlobalLogger().WithField("component", "evm_ledger"),
	}, nil
}

// ContractAddress returns the registry contract address as hex
func (l *EVMLedger) ContractAddress() string {
	return l.address.Hex()
}

// ListBusinessIDs fetches all business identifiers known to the registry
func (l *EVMLedger) ListBusinessIDs(ctx context.Context) ([]string, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}

	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAllBusinessIds"); err != nil {
		return nil, fmt.Errorf("getAllBusinessIds: %w", err)
	}

	ids, ok := out[0].([]string)
	if !ok {
		return nil, fmt.Errorf("getAllBusinessIds: unexpected result type %T", out[0])
	}
	return ids, nil
}

// GetBusinessData fetches the raw per-record payload for one business key
func (l *EVMLedger) GetBusinessData(ctx context.Context, businessKey string) (*BusinessData, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}

	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getBusinessData", businessKey); err != nil {
		return nil, fmt.Errorf("getBusinessData(%s): %w", businessKey, err)
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("getBusinessData(%s): unexpected result arity %d", businessKey, len(out))
	}

	data := &BusinessData{}
	data.Name, _ = out[0].(string)
	data.Timestamp, _ = out[1].(*big.Int)
	if creator, ok := out[2].(common.Address); ok {
		data.Creator = creator.Hex()
	}
	data.PublicValue1, _ = out[3].(*big.Int)
	data.PublicValue2, _ = out[4].(*big.Int)
	data.IsVerified, _ = out[5].(bool)
	data.DecryptedValue, _ = out[6].(*big.Int)

	return data, nil
}

// GetEncryptedValueHandle fetches the ciphertext handle for a record's
// confidential value, as a 0x-prefixed hex string
func (l *EVMLedger) GetEncryptedValueHandle(ctx context.Context, businessKey string) (string, error) {
	if err := l.wait(ctx); err != nil {
		return "", err
	}

	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getEncryptedValue", businessKey); err != nil {
		return "", fmt.Errorf("getEncryptedValue(%s): %w", businessKey, err)
	}

	handle, ok := out[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("getEncryptedValue(%s): unexpected result type %T", businessKey, out[0])
	}
	return common.BytesToHash(handle[:]).Hex(), nil
}

// IsAvailable probes the registry contract
func (l *EVMLedger) IsAvailable(ctx context.Context) (bool, error) {
	if err := l.wait(ctx); err != nil {
		return false, err
	}

	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isAvailable"); err != nil {
		return false, fmt.Errorf("isAvailable: %w", err)
	}

	available, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isAvailable: unexpected result type %T", out[0])
	}
	return available, nil
}

// CreateRecord submits a ledger write carrying the encrypted payload
func (l *EVMLedger) CreateRecord(ctx context.Context, businessKey, name string, input *EncryptedInput, pub1, pub2 int64, description string) (PendingTx, error) {
	if input == nil {
		return nil, fmt.Errorf("encrypted input cannot be nil")
	}

	var handle [32]byte
	copy(handle[:], input.Data)

	tx, err := l.transact(ctx, "createBusinessData",
		businessKey, name, handle, input.Proof,
		big.NewInt(pub1), big.NewInt(pub2), description)
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(map[string]interface{}{
		"businessKey": businessKey,
		"tx":          tx.Hash().Hex(),
	}).Info("Submitted record creation")

	return &evmPendingTx{client: l.client, tx: tx}, nil
}

// SubmitDecryptionProof submits ABI-encoded clear values and a decryption
// proof for on-chain verification
func (l *EVMLedger) SubmitDecryptionProof(ctx context.Context, businessKey string, encodedClearValues, proof []byte) (PendingTx, error) {
	tx, err := l.transact(ctx, "verifyDecryption", businessKey, encodedClearValues, proof)
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(map[string]interface{}{
		"businessKey": businessKey,
		"tx":          tx.Hash().Hex(),
	}).Info("Submitted decryption proof")

	return &evmPendingTx{client: l.client, tx: tx}, nil
}

// Close releases the underlying RPC connection
func (l *EVMLedger) Close() {
	l.client.Close()
}

func (l *EVMLedger) transact(ctx context.Context, method string, params ...interface{}) (*ethtypes.Transaction, error) {
	if l.key == nil {
		return nil, fmt.Errorf("ledger is read-only: no signing key configured")
	}
	if err := l.wait(ctx); err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(l.key, l.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.contract.Transact(opts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return tx, nil
}

func (l *EVMLedger) wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// evmPendingTx wraps a submitted transaction for confirmation waiting
type evmPendingTx struct {
	client *ethclient.Client
	tx     *ethtypes.Transaction
}

func (p *evmPendingTx) Hash() string {
	return p.tx.Hash().Hex()
}

func (p *evmPendingTx) AwaitConfirmation(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, p.client, p.tx)
	if err != nil {
		return fmt.Errorf("waiting for confirmation of %s: %w", p.tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", p.tx.Hash().Hex())
	}
	return nil
}
