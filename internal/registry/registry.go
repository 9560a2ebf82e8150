package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carbon-tracker/internal/adapter"
	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/notify"
	"github.com/carbon-tracker/internal/retry"
	"github.com/carbon-tracker/internal/types"
)

// LedgerReader is the slice of the ledger gateway the registry needs
type LedgerReader interface {
	ListBusinessIDs(ctx context.Context) ([]string, error)
	GetBusinessData(ctx context.Context, businessKey string) (*adapter.BusinessData, error)
}

// SnapshotStore caches the last good snapshot across restarts. Optional.
type SnapshotStore interface {
	Store(ctx context.Context, records []*models.Record) error
	Load(ctx context.Context) ([]*models.Record, bool, error)
}

// Registry holds the authoritative record snapshot. Refresh replaces the
// snapshot wholesale and readers receive copies, so they never observe a torn
// or concurrently mutated view.
type Registry struct {
	ledger   LedgerReader
	store    SnapshotStore
	notifier *notify.Notifier
	history  *notify.HistoryLog
	logger   *logging.Logger
	retryCfg *retry.Config
	now      func() time.Time

	mu      sync.RWMutex
	records []*models.Record
	byKey   map[string]*models.Record
	stats   models.Stats

	guardMu    sync.Mutex
	refreshing bool
}

// NewRegistry creates a registry over the given ledger reader. The snapshot
// store may be nil.
func NewRegistry(ledger LedgerReader, store SnapshotStore, notifier *notify.Notifier, history *notify.HistoryLog) (*Registry, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger reader cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if history == nil {
		return nil, fmt.Errorf("history log cannot be nil")
	}

	return &Registry{
		ledger:   ledger,
		store:    store,
		notifier: notifier,
		history:  history,
		logger:   logging.GetGlobalLogger().WithField("component", "registry"),
		retryCfg: retry.DefaultConfig(),
		now:      time.Now,
		byKey:    make(map[string]*models.Record),
	}, nil
}

// Refresh loads all records from the ledger and atomically replaces the
// snapshot. A refresh requested while one is in flight is a no-op returning
// the current snapshot. If the identifier-list fetch fails, the previous
// snapshot is retained unchanged and a LoadFailed error is returned;
// individual per-record failures only skip that record.
func (r *Registry) Refresh(ctx context.Context) ([]*models.Record, error) {
	r.guardMu.Lock()
	if r.refreshing {
		r.guardMu.Unlock()
		return r.Records(), nil
	}
	r.refreshing = true
	r.guardMu.Unlock()

	defer func() {
		r.guardMu.Lock()
		r.refreshing = false
		r.guardMu.Unlock()
	}()

	ids, err := r.ledger.ListBusinessIDs(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list business ids")
		r.notifier.Error("Failed to load data")
		return nil, apperrors.NewLoadFailedError(err)
	}

	records := make([]*models.Record, 0, len(ids))
	for _, id := range ids {
		var raw *adapter.BusinessData
		fetchErr := retry.Do(ctx, r.retryCfg, func(ctx context.Context) error {
			var err error
			raw, err = r.ledger.GetBusinessData(ctx, id)
			return err
		})
		if fetchErr != nil {
			// A cancelled context fails every remaining fetch; that is an
			// operation-level failure, not a run of bad records, and must not
			// replace the snapshot.
			if ctx.Err() != nil {
				r.logger.WithError(ctx.Err()).Error("Refresh aborted")
				r.notifier.Error("Failed to load data")
				return nil, apperrors.NewLoadFailedError(ctx.Err())
			}
			r.logger.WithError(fetchErr).WithField("businessKey", id).Warn("Skipping record: fetch failed")
			continue
		}

		record, normErr := NormalizeRecord(id, raw)
		if normErr != nil {
			r.logger.WithError(normErr).WithField("businessKey", id).Warn("Skipping record: malformed payload")
			continue
		}
		records = append(records, record)
	}

	r.swap(records)
	r.history.Append(fmt.Sprintf("Loaded %d carbon records", len(records)))

	if r.store != nil {
		if err := r.store.Store(ctx, records); err != nil {
			r.logger.WithError(err).Warn("Failed to cache record snapshot")
		}
	}

	return r.Records(), nil
}

// Prime seeds an empty registry from the snapshot store so a restarted client
// has data before the first chain refresh completes. Best effort.
func (r *Registry) Prime(ctx context.Context) {
	if r.store == nil {
		return
	}

	r.mu.RLock()
	empty := len(r.records) == 0
	r.mu.RUnlock()
	if !empty {
		return
	}

	cached, found, err := r.store.Load(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to load cached snapshot")
		return
	}
	if !found {
		return
	}

	r.swap(cached)
	r.logger.WithField("count", len(cached)).Info("Primed registry from cached snapshot")
}

// Records returns a copy of the current snapshot. The records themselves are
// copies too, so callers can read them without holding the registry lock even
// while a decryption updates the live snapshot.
func (r *Registry) Records() []*models.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Record, len(r.records))
	for i, record := range r.records {
		clone := *record
		out[i] = &clone
	}
	return out
}

// Get returns a copy of the record for a business key, if present
func (r *Registry) Get(businessKey string) (*models.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.byKey[businessKey]
	if !ok {
		return nil, false
	}
	clone := *record
	return &clone, true
}

// Stats returns the statistics derived on the last successful load
func (r *Registry) Stats() models.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// ApplyLocalDecryption records a just-decrypted cleartext value for a record,
// recomputing its level. Held in session memory only; the next refresh brings
// the on-chain verified state.
func (r *Registry) ApplyLocalDecryption(businessKey string, clearValue uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byKey[businessKey]
	if !ok {
		return
	}
	record.DecryptedValue = int64(clearValue)
	record.Level = types.ClassifyCarbonLevel(record.DecryptedValue)
	r.stats = ComputeStats(r.records, r.now())
}

func (r *Registry) swap(records []*models.Record) {
	byKey := make(map[string]*models.Record, len(records))
	for _, record := range records {
		byKey[record.BusinessKey] = record
	}

	r.mu.Lock()
	r.records = records
	r.byKey = byKey
	r.stats = ComputeStats(records, r.now())
	r.mu.Unlock()
}
