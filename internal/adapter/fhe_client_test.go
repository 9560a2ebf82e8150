package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPendingTx struct {
	confirmErr error
}

func (s *stubPendingTx) Hash() string { return "0xabc" }

func (s *stubPendingTx) AwaitConfirmation(ctx context.Context) error { return s.confirmErr }

func newTestRelayer(t *testing.T, handler http.HandlerFunc) *FHEClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewFHEClient(&FHEClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	return client
}

func TestFHEClient_Encrypt(t *testing.T) {
	client := newTestRelayer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/encrypt", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req encryptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint64(42), req.Value)

		_ = json.NewEncoder(w).Encode(encryptResponse{
			EncryptedData: "0x45",
			Proof:         "0x50",
		})
	})

	input, err := client.Encrypt(context.Background(), "0xContract", "0xActor", 42)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x45}, input.Data)
	assert.Equal(t, []byte{0x50}, input.Proof)
}

func TestFHEClient_Encrypt_RelayerError(t *testing.T) {
	client := newTestRelayer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "coprocessor unavailable"})
	})

	_, err := client.Encrypt(context.Background(), "0xContract", "0xActor", 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coprocessor unavailable")
}

func TestFHEClient_RequestProof_SubmitsAndAwaits(t *testing.T) {
	client := newTestRelayer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/public-decrypt", r.URL.Path)

		var req decryptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Handles, 1)

		_ = json.NewEncoder(w).Encode(decryptResponse{
			ClearValues:           map[string]uint64{req.Handles[0]: 37},
			ABIEncodedClearValues: "0x25",
			DecryptionProof:       "0xff",
		})
	})

	var submittedEncoded, submittedProof []byte
	submit := func(ctx context.Context, encoded, proof []byte) (PendingTx, error) {
		submittedEncoded = encoded
		submittedProof = proof
		return &stubPendingTx{}, nil
	}

	clear, err := client.RequestProof(context.Background(), []string{"0x01"}, "0xContract", submit)
	require.NoError(t, err)
	assert.Equal(t, uint64(37), clear["0x01"])
	assert.Equal(t, []byte{0x25}, submittedEncoded)
	assert.Equal(t, []byte{0xff}, submittedProof)
}

func TestFHEClient_RequestProof_NoHandles(t *testing.T) {
	client := newTestRelayer(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.RequestProof(context.Background(), nil, "0xContract", func(ctx context.Context, encoded, proof []byte) (PendingTx, error) {
		return &stubPendingTx{}, nil
	})
	assert.Error(t, err)
}

func TestFHEClient_Initialize(t *testing.T) {
	client := newTestRelayer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/keys", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"keyId": "key-1"})
	})

	assert.NoError(t, client.Initialize(context.Background()))
}
