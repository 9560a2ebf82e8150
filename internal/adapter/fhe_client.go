package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/carbon-tracker/internal/logging"
)

const defaultRelayerTimeout = 60 * time.Second

// FHEClient talks to the FHE relayer that owns the homomorphic-encryption
// engine. It implements the encryption gateway (producing ciphertext plus
// input proof for a cleartext value) and the decryption-proof gateway
// (producing clear values plus a proof verifiable on-chain).
type FHEClient struct {
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

// FHEClientConfig holds configuration for the relayer client
type FHEClientConfig struct {
	// BaseURL is the relayer endpoint, e.g. https://relayer.example.org. Required.
	BaseURL string

	// Timeout bounds each relayer request. Proof generation is slow, so the
	// default is generous.
	Timeout time.Duration
}

// NewFHEClient creates a relayer client
func NewFHEClient(cfg *FHEClientConfig) (*FHEClient, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("relayer base URL cannot be empty")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRelayerTimeout
	}

	return &FHEClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.GetGlobalLogger().WithField("component", "fhe_client"),
	}, nil
}

// Initialize fetches the public encryption parameters from the relayer.
// Called once per connected session by the session bootstrap before any
// encrypt or decrypt workflow runs.
func (c *FHEClient) Initialize(ctx context.Context) error {
	var resp struct {
		KeyID string `json:"keyId"`
	}
	if err := c.get(ctx, "/v1/keys", &resp); err != nil {
		return fmt.Errorf("fetching encryption parameters: %w", err)
	}
	if resp.KeyID == "" {
		return fmt.Errorf("relayer returned empty key id")
	}

	c.logger.WithField("keyId", resp.KeyID).Info("Encryption parameters loaded")
	return nil
}

type encryptRequest struct {
	ContractAddress string `json:"contractAddress"`
	UserAddress     string `json:"userAddress"`
	Value           uint64 `json:"value"`
}

type encryptResponse struct {
	EncryptedData string `json:"encryptedData"`
	Proof         string `json:"proof"`
}

// Encrypt encrypts a cleartext carbon value under the target contract's
// public parameters, bound to the acting address
func (c *FHEClient) Encrypt(ctx context.Context, targetContract, actorAddress string, clearValue uint64) (*EncryptedInput, error) {
	req := encryptRequest{
		ContractAddress: targetContract,
		UserAddress:     actorAddress,
		Value:           clearValue,
	}

	var resp encryptResponse
	if err := c.post(ctx, "/v1/encrypt", req, &resp); err != nil {
		return nil, err
	}

	data, err := hexutil.Decode(resp.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("decoding encrypted data: %w", err)
	}
	proof, err := hexutil.Decode(resp.Proof)
	if err != nil {
		return nil, fmt.Errorf("decoding input proof: %w", err)
	}

	return &EncryptedInput{Data: data, Proof: proof}, nil
}

type decryptRequest struct {
	Handles         []string `json:"handles"`
	ContractAddress string   `json:"contractAddress"`
}

type decryptResponse struct {
	ClearValues           map[string]uint64 `json:"clearValues"`
	ABIEncodedClearValues string            `json:"abiEncodedClearValues"`
	DecryptionProof       string            `json:"decryptionProof"`
}

// RequestProof asks the relayer to decrypt the given ciphertext handles and
// produce an on-chain-verifiable proof, then submits the proof through the
// supplied callback and awaits the submission's confirmation. The returned
// map holds the clear value for each requested handle.
func (c *FHEClient) RequestProof(ctx context.Context, handles []string, targetContract string, submit ProofSubmitter) (map[string]uint64, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("no ciphertext handles requested")
	}
	if submit == nil {
		return nil, fmt.Errorf("proof submitter cannot be nil")
	}

	req := decryptRequest{Handles: handles, ContractAddress: targetContract}

	var resp decryptResponse
	if err := c.post(ctx, "/v1/public-decrypt", req, &resp); err != nil {
		return nil, err
	}

	encoded, err := hexutil.Decode(resp.ABIEncodedClearValues)
	if err != nil {
		return nil, fmt.Errorf("decoding clear values: %w", err)
	}
	proof, err := hexutil.Decode(resp.DecryptionProof)
	if err != nil {
		return nil, fmt.Errorf("decoding decryption proof: %w", err)
	}

	tx, err := submit(ctx, encoded, proof)
	if err != nil {
		return nil, err
	}
	if err := tx.AwaitConfirmation(ctx); err != nil {
		return nil, err
	}

	return resp.ClearValues, nil
}

func (c *FHEClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *FHEClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding relayer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *FHEClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("relayer request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading relayer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("relayer error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("relayer error (%d)", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding relayer response: %w", err)
	}
	return nil
}
