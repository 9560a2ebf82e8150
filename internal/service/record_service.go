// Package service implements the confidential-record lifecycle workflows:
// creating an encrypted record on the ledger and decrypting one through an
// on-chain-verified proof.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carbon-tracker/internal/adapter"
	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/notify"
	"github.com/carbon-tracker/internal/registry"
	"github.com/carbon-tracker/internal/session"
	"github.com/carbon-tracker/internal/types"
)

// Session exposes the current wallet connection state
type Session interface {
	IsConnected() bool
	ActorAddress() string
}

// LedgerReader is the read surface of the ledger gateway the workflows need
type LedgerReader interface {
	GetBusinessData(ctx context.Context, businessKey string) (*adapter.BusinessData, error)
	GetEncryptedValueHandle(ctx context.Context, businessKey string) (string, error)
	IsAvailable(ctx context.Context) (bool, error)
	ContractAddress() string
}

// LedgerWriter is the signer-capable write surface of the ledger gateway
type LedgerWriter interface {
	CreateRecord(ctx context.Context, businessKey, name string, input *adapter.EncryptedInput, pub1, pub2 int64, description string) (adapter.PendingTx, error)
	SubmitDecryptionProof(ctx context.Context, businessKey string, encodedClearValues, proof []byte) (adapter.PendingTx, error)
}

// Encryptor encrypts a cleartext value under the target contract's public
// parameters
type Encryptor interface {
	Encrypt(ctx context.Context, targetContract, actorAddress string, clearValue uint64) (*adapter.EncryptedInput, error)
}

// DecryptionOracle produces clear values plus an on-chain-verifiable proof
// for ciphertext handles, submitting the proof through the supplied callback
type DecryptionOracle interface {
	RequestProof(ctx context.Context, handles []string, targetContract string, submit adapter.ProofSubmitter) (map[string]uint64, error)
}

// RecordService orchestrates the record lifecycle workflows. Both workflows
// report through the notifier and history log; neither mutates the other's
// state.
type RecordService struct {
	session   Session
	bootstrap *session.Bootstrap
	reader    LedgerReader
	writer    LedgerWriter
	encryptor Encryptor
	oracle    DecryptionOracle
	registry  *registry.Registry
	notifier  *notify.Notifier
	history   *notify.HistoryLog
	logger    *logging.Logger

	// newBusinessKey is injectable for deterministic tests
	newBusinessKey func() string

	guardMu    sync.Mutex
	decrypting bool
}

// RecordServiceConfig holds the collaborators of a RecordService
type RecordServiceConfig struct {
	Session   Session
	Bootstrap *session.Bootstrap
	Reader    LedgerReader
	Writer    LedgerWriter
	Encryptor Encryptor
	Oracle    DecryptionOracle
	Registry  *registry.Registry
	Notifier  *notify.Notifier
	History   *notify.HistoryLog
}

// NewRecordService creates the workflow orchestrator
func NewRecordService(cfg *RecordServiceConfig) (*RecordService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if cfg.Bootstrap == nil {
		return nil, fmt.Errorf("bootstrap cannot be nil")
	}
	if cfg.Reader == nil || cfg.Writer == nil {
		return nil, fmt.Errorf("ledger gateways cannot be nil")
	}
	if cfg.Encryptor == nil || cfg.Oracle == nil {
		return nil, fmt.Errorf("encryption gateways cannot be nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if cfg.Notifier == nil || cfg.History == nil {
		return nil, fmt.Errorf("notifier and history cannot be nil")
	}

	return &RecordService{
		session:        cfg.Session,
		bootstrap:      cfg.Bootstrap,
		reader:         cfg.Reader,
		writer:         cfg.Writer,
		encryptor:      cfg.Encryptor,
		oracle:         cfg.Oracle,
		registry:       cfg.Registry,
		notifier:       cfg.Notifier,
		history:        cfg.History,
		logger:         logging.GetGlobalLogger().WithField("component", "record_service"),
		newBusinessKey: NewBusinessKey,
	}, nil
}

// NewBusinessKey mints a fresh ledger business key. The millisecond timestamp
// keeps keys ordered; the uuid suffix closes the collision window of a purely
// time-derived key.
func NewBusinessKey() string {
	return fmt.Sprintf("%s%d-%s", registry.BusinessKeyPrefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// CreateRecordInput is the creation form payload
type CreateRecordInput struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	CarbonValue uint64 `json:"carbonValue"`
}

// CreateRecord runs the creation workflow: encrypt, submit, confirm. The
// record is either fully created or, from the caller's point of view, not
// present at all; the first failing step aborts the rest and surfaces a
// typed error as a transient status.
func (s *RecordService) CreateRecord(ctx context.Context, input *CreateRecordInput) error {
	if !s.session.IsConnected() || s.session.ActorAddress() == "" {
		s.notifier.Error("Please connect wallet first")
		return apperrors.NewNotConnectedError()
	}
	if !s.bootstrap.Ready() {
		s.notifier.Error("Please connect wallet first")
		return apperrors.NewNotReadyError()
	}

	if input == nil || input.Name == "" {
		s.notifier.Error("Record name is required")
		return apperrors.NewInvalidInputError("name", "cannot be empty")
	}
	category, err := types.ParseCategory(input.Category)
	if err != nil {
		s.notifier.Error("Unknown record category")
		return apperrors.NewInvalidInputError("category", err.Error())
	}

	s.notifier.Pending("Creating carbon record with FHE encryption...")

	businessKey := s.newBusinessKey()

	encrypted, err := s.encryptor.Encrypt(ctx, s.reader.ContractAddress(), s.session.ActorAddress(), input.CarbonValue)
	if err != nil {
		s.logger.WithError(err).Error("Encryption failed")
		s.notifier.Error("Encryption failed: " + err.Error())
		return apperrors.NewEncryptionFailedError(err)
	}

	description := "Carbon footprint: " + string(category)
	tx, err := s.writer.CreateRecord(ctx, businessKey, input.Name, encrypted, 0, 0, description)
	if err != nil {
		if apperrors.IsUserRejection(err) {
			s.notifier.Error("Transaction rejected by user")
			return apperrors.NewSubmissionRejectedError(err)
		}
		s.logger.WithError(err).Error("Record submission failed")
		s.notifier.Error("Submission failed: " + err.Error())
		return apperrors.NewSubmissionFailedError(err)
	}

	s.notifier.Pending("Waiting for transaction confirmation...")
	if err := tx.AwaitConfirmation(ctx); err != nil {
		s.logger.WithError(err).Error("Record confirmation failed")
		s.notifier.Error("Transaction confirmation failed: " + err.Error())
		return apperrors.NewConfirmationFailedError(err)
	}

	s.notifier.Success("Carbon record created successfully!")
	s.history.Append("Created record: " + input.Name)

	if _, err := s.registry.Refresh(ctx); err != nil {
		// The write is confirmed; a failed follow-up refresh only delays
		// visibility until the next load.
		s.logger.WithError(err).Warn("Post-creation refresh failed")
	}

	return nil
}

// DecryptRecord runs the decryption/verification workflow for one record.
// The returned value is nil when no new cleartext was produced: the record
// was already verified, or another actor won the verification race. A
// process-wide single-flight guard rejects concurrent decryptions.
func (s *RecordService) DecryptRecord(ctx context.Context, businessKey string) (*uint64, error) {
	if !s.session.IsConnected() || s.session.ActorAddress() == "" {
		s.notifier.Error("Please connect wallet first")
		return nil, apperrors.NewNotConnectedError()
	}
	if !s.bootstrap.Ready() {
		s.notifier.Error("Please connect wallet first")
		return nil, apperrors.NewNotReadyError()
	}

	s.guardMu.Lock()
	if s.decrypting {
		s.guardMu.Unlock()
		return nil, apperrors.NewDecryptionBusyError()
	}
	s.decrypting = true
	s.guardMu.Unlock()

	defer func() {
		s.guardMu.Lock()
		s.decrypting = false
		s.guardMu.Unlock()
	}()

	data, err := s.reader.GetBusinessData(ctx, businessKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read record state")
		s.notifier.Error("Decryption failed: " + err.Error())
		return nil, apperrors.NewDecryptionFailedError(err)
	}

	if data.IsVerified {
		// Verified on-chain: the stored cleartext is already trustworthy.
		stored := uint64(0)
		if data.DecryptedValue != nil && data.DecryptedValue.IsUint64() {
			stored = data.DecryptedValue.Uint64()
		}
		s.registry.ApplyLocalDecryption(businessKey, stored)
		s.notifier.Success("Data already verified on-chain")
		return nil, nil
	}

	handle, err := s.reader.GetEncryptedValueHandle(ctx, businessKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch ciphertext handle")
		s.notifier.Error("Decryption failed: " + err.Error())
		return nil, apperrors.NewDecryptionFailedError(err)
	}

	// The pending status appears once the proof exists and the on-chain
	// verification transaction goes out, not while the oracle is still working.
	submit := func(ctx context.Context, encodedClearValues, proof []byte) (adapter.PendingTx, error) {
		s.notifier.Pending("Verifying decryption on-chain...")
		return s.writer.SubmitDecryptionProof(ctx, businessKey, encodedClearValues, proof)
	}

	clearValues, err := s.oracle.RequestProof(ctx, []string{handle}, s.reader.ContractAddress(), submit)
	if err != nil {
		if apperrors.IsAlreadyVerified(err) {
			// Another actor verified this record between our on-chain check
			// and the proof submission. Success-equivalent outcome.
			if _, refreshErr := s.registry.Refresh(ctx); refreshErr != nil {
				s.logger.WithError(refreshErr).Warn("Refresh after verification race failed")
			}
			s.notifier.Success("Data is already verified on-chain")
			return nil, nil
		}
		s.logger.WithError(err).Error("Decryption failed")
		s.notifier.Error("Decryption failed: " + err.Error())
		return nil, apperrors.NewDecryptionFailedError(err)
	}

	clearValue, ok := clearValues[handle]
	if !ok {
		err := fmt.Errorf("no clear value returned for handle %s", handle)
		s.notifier.Error("Decryption failed: " + err.Error())
		return nil, apperrors.NewDecryptionFailedError(err)
	}

	if _, err := s.registry.Refresh(ctx); err != nil {
		s.logger.WithError(err).Warn("Post-decryption refresh failed")
	}
	s.registry.ApplyLocalDecryption(businessKey, clearValue)
	s.history.Append(fmt.Sprintf("Decrypted carbon value: %d", clearValue))
	s.notifier.Success("Carbon data decrypted successfully!")

	return &clearValue, nil
}

// CheckAvailability probes the registry contract and reports the outcome
func (s *RecordService) CheckAvailability(ctx context.Context) error {
	available, err := s.reader.IsAvailable(ctx)
	if err != nil || !available {
		if err == nil {
			err = fmt.Errorf("contract reported unavailable")
		}
		s.notifier.Error("Contract test failed")
		return apperrors.NewLoadFailedError(err)
	}

	s.notifier.Success("Contract is available and working!")
	s.history.Append("Tested contract availability - Success")
	return nil
}
