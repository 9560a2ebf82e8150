package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbon-tracker/internal/adapter"
	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/notify"
	"github.com/carbon-tracker/internal/retry"
)

// mockLedgerReader serves canned per-key payloads
type mockLedgerReader struct {
	mu        sync.Mutex
	ids       []string
	data      map[string]*adapter.BusinessData
	listErr   error
	failKeys  map[string]error
	listGate  chan struct{} // when set, ListBusinessIDs blocks until closed
	listCalls int
}

func (m *mockLedgerReader) ListBusinessIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	m.listCalls++
	gate := m.listGate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.ids, nil
}

func (m *mockLedgerReader) GetBusinessData(ctx context.Context, key string) (*adapter.BusinessData, error) {
	if err, ok := m.failKeys[key]; ok {
		return nil, err
	}
	data, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("no data for %s", key)
	}
	return data, nil
}

func fastRetry() *retry.Config {
	return &retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}
}

func newTestRegistry(t *testing.T, ledger LedgerReader) (*Registry, *notify.HistoryLog) {
	t.Helper()

	history := notify.NewHistoryLog()
	reg, err := NewRegistry(ledger, nil, notify.NewNotifierWithDelays(time.Hour, time.Hour), history)
	require.NoError(t, err)
	reg.retryCfg = fastRetry()
	return reg, history
}

func businessData(name string, verified bool, value int64) *adapter.BusinessData {
	return &adapter.BusinessData{
		Name:           name,
		Timestamp:      big.NewInt(time.Now().Unix()),
		Creator:        "0x1111111111111111111111111111111111111111",
		PublicValue1:   big.NewInt(0),
		PublicValue2:   big.NewInt(0),
		IsVerified:     verified,
		DecryptedValue: big.NewInt(value),
	}
}

func TestRefresh_LoadsAndComputesStats(t *testing.T) {
	ledger := &mockLedgerReader{
		ids: []string{"carbon-1", "carbon-2"},
		data: map[string]*adapter.BusinessData{
			"carbon-1": businessData("Commute", true, 12),
			"carbon-2": businessData("Heating", false, 0),
		},
	}
	reg, history := newTestRegistry(t, ledger)

	records, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	stats := reg.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.VerifiedCount)

	entries := history.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "Loaded 2 carbon records", entries[0].Text)
}

func TestRefresh_ListFailurePreservesSnapshot(t *testing.T) {
	ledger := &mockLedgerReader{
		ids:  []string{"carbon-1"},
		data: map[string]*adapter.BusinessData{"carbon-1": businessData("Commute", false, 0)},
	}
	reg, _ := newTestRegistry(t, ledger)

	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	before := reg.Records()
	require.Len(t, before, 1)

	ledger.listErr = errors.New("rpc down")
	_, err = reg.Refresh(context.Background())
	require.Error(t, err)

	wfErr := apperrors.Categorize(err)
	assert.Equal(t, "LOAD_FAILED", wfErr.Code)

	after := reg.Records()
	require.Len(t, after, 1)
	assert.Equal(t, before[0].BusinessKey, after[0].BusinessKey)
}

func TestRefresh_PerRecordFailureSkipsRecord(t *testing.T) {
	ledger := &mockLedgerReader{
		ids: []string{"carbon-1", "carbon-2", "carbon-3"},
		data: map[string]*adapter.BusinessData{
			"carbon-1": businessData("A", true, 5),
			"carbon-3": businessData("C", true, 15),
		},
		failKeys: map[string]error{"carbon-2": errors.New("corrupt entry")},
	}
	reg, _ := newTestRegistry(t, ledger)

	records, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	stats := reg.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 2, stats.VerifiedCount)
}

func TestRefresh_WhileRefreshingIsNoOp(t *testing.T) {
	gate := make(chan struct{})
	ledger := &mockLedgerReader{
		ids:      []string{"carbon-1"},
		data:     map[string]*adapter.BusinessData{"carbon-1": businessData("A", false, 0)},
		listGate: gate,
	}
	reg, _ := newTestRegistry(t, ledger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = reg.Refresh(context.Background())
	}()

	// Wait until the first refresh is inside the ledger call.
	require.Eventually(t, func() bool {
		ledger.mu.Lock()
		defer ledger.mu.Unlock()
		return ledger.listCalls == 1
	}, time.Second, time.Millisecond)

	// Second refresh must return immediately without touching the ledger.
	records, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	ledger.mu.Lock()
	assert.Equal(t, 1, ledger.listCalls)
	ledger.mu.Unlock()

	close(gate)
	<-done
}

func TestApplyLocalDecryption(t *testing.T) {
	ledger := &mockLedgerReader{
		ids:  []string{"carbon-1"},
		data: map[string]*adapter.BusinessData{"carbon-1": businessData("A", false, 0)},
	}
	reg, _ := newTestRegistry(t, ledger)

	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	reg.ApplyLocalDecryption("carbon-1", 37)

	record, ok := reg.Get("carbon-1")
	require.True(t, ok)
	assert.Equal(t, int64(37), record.DecryptedValue)
	assert.Equal(t, "High", string(record.Level))

	// Unknown keys are ignored.
	reg.ApplyLocalDecryption("carbon-missing", 1)
}

func TestRefresh_ListFailurePublishesErrorStatus(t *testing.T) {
	ledger := &mockLedgerReader{listErr: errors.New("rpc down")}
	notifier := notify.NewNotifierWithDelays(time.Hour, time.Hour)
	reg, err := NewRegistry(ledger, nil, notifier, notify.NewHistoryLog())
	require.NoError(t, err)
	reg.retryCfg = fastRetry()

	_, err = reg.Refresh(context.Background())
	require.Error(t, err)

	status := notifier.Current()
	assert.True(t, status.Visible)
	assert.Equal(t, "error", string(status.Kind))
	assert.Equal(t, "Failed to load data", status.Message)
}

func TestRefresh_CancelledContextPreservesSnapshot(t *testing.T) {
	ledger := &mockLedgerReader{
		ids: []string{"carbon-1", "carbon-2"},
		data: map[string]*adapter.BusinessData{
			"carbon-1": businessData("A", false, 0),
			"carbon-2": businessData("B", false, 0),
		},
	}
	reg, _ := newTestRegistry(t, ledger)

	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, reg.Records(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = reg.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, "LOAD_FAILED", apperrors.Categorize(err).Code)

	// An aborted refresh must not commit the shrunken record set.
	assert.Len(t, reg.Records(), 2)
}

func TestRecordsAndGetReturnCopies(t *testing.T) {
	ledger := &mockLedgerReader{
		ids:  []string{"carbon-1"},
		data: map[string]*adapter.BusinessData{"carbon-1": businessData("A", false, 0)},
	}
	reg, _ := newTestRegistry(t, ledger)

	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	record, ok := reg.Get("carbon-1")
	require.True(t, ok)
	record.Name = "mutated"

	fresh, ok := reg.Get("carbon-1")
	require.True(t, ok)
	assert.Equal(t, "A", fresh.Name)

	reg.Records()[0].DecryptedValue = 999
	assert.Equal(t, int64(0), reg.Records()[0].DecryptedValue)
}

func TestConcurrentReadersDuringLocalDecryption(t *testing.T) {
	ledger := &mockLedgerReader{
		ids:  []string{"carbon-1"},
		data: map[string]*adapter.BusinessData{"carbon-1": businessData("A", false, 0)},
	}
	reg, _ := newTestRegistry(t, ledger)

	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, record := range reg.Records() {
				_ = record.DecryptedValue
				_ = record.Level
			}
			if record, ok := reg.Get("carbon-1"); ok {
				_ = record.IsVerified
			}
		}
	}()

	for i := 0; i < 200; i++ {
		reg.ApplyLocalDecryption("carbon-1", uint64(i))
	}

	close(stop)
	wg.Wait()

	record, ok := reg.Get("carbon-1")
	require.True(t, ok)
	assert.Equal(t, int64(199), record.DecryptedValue)
}

type mockSnapshotStore struct {
	mu      sync.Mutex
	records []*models.Record
	stored  int
}

func (m *mockSnapshotStore) Store(ctx context.Context, records []*models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	m.stored++
	return nil
}

func (m *mockSnapshotStore) Load(ctx context.Context) ([]*models.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		return nil, false, nil
	}
	return m.records, true, nil
}

func TestPrime_SeedsFromStore(t *testing.T) {
	store := &mockSnapshotStore{records: []*models.Record{{BusinessKey: "carbon-1", Name: "Cached"}}}

	ledger := &mockLedgerReader{}
	history := notify.NewHistoryLog()
	reg, err := NewRegistry(ledger, store, notify.NewNotifier(), history)
	require.NoError(t, err)

	reg.Prime(context.Background())

	records := reg.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Cached", records[0].Name)
}

func TestRefresh_WritesSnapshotToStore(t *testing.T) {
	store := &mockSnapshotStore{}
	ledger := &mockLedgerReader{
		ids:  []string{"carbon-1"},
		data: map[string]*adapter.BusinessData{"carbon-1": businessData("A", false, 0)},
	}
	history := notify.NewHistoryLog()
	reg, err := NewRegistry(ledger, store, notify.NewNotifier(), history)
	require.NoError(t, err)
	reg.retryCfg = fastRetry()

	_, err = reg.Refresh(context.Background())
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.stored)
	require.Len(t, store.records, 1)
}
