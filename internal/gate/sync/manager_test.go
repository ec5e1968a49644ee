package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allowgate/internal/gate/models"
	"allowgate/internal/gate/notify"
	"allowgate/internal/gate/rotation"
	"allowgate/internal/gate/store/allowlist"
)

func testConfig() Config {
	return Config{
		TargetFalsePositiveRate: 0.01,
		ExpectedItemsFloor:      100,
		GrowthMargin:            1.5,
		FalsePositiveCeiling:    0.02,
		RebuildInterval:         time.Hour,
		SyncInterval:            10 * time.Millisecond,
		PageSize:                10,
		BackoffMin:              time.Millisecond,
		BackoffMax:              10 * time.Millisecond,
	}
}

// flakyStore wraps the memory store and fails reads while failing is set,
// simulating a store outage during sync passes.
type flakyStore struct {
	*allowlist.MemoryStore
	mu      sync.Mutex
	failing bool
}

func (s *flakyStore) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *flakyStore) fail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failing
}

func (s *flakyStore) Count(ctx context.Context) (int64, error) {
	if s.fail() {
		return 0, fmt.Errorf("store unavailable")
	}
	return s.MemoryStore.Count(ctx)
}

func (s *flakyStore) ScanSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.AllowlistEntry, error) {
	if s.fail() {
		return nil, fmt.Errorf("store unavailable")
	}
	return s.MemoryStore.ScanSince(ctx, cursor, limit)
}

func seedStore(t *testing.T, store *allowlist.MemoryStore, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := store.InsertAddress(ctx, models.WalletAddress(fmt.Sprintf("0xseed%05d", i)))
		require.NoError(t, err)
	}
}

func TestInitialLoadPopulatesAndActivates(t *testing.T) {
	store := allowlist.NewMemory()
	seedStore(t, store, 25)
	ctl := rotation.New(nil)

	mgr, err := New(store, ctl, testConfig())
	require.NoError(t, err)
	require.NoError(t, mgr.InitialLoad(context.Background()))

	active := ctl.Active()
	require.NotNil(t, active)
	assert.Equal(t, uint64(25), active.Items())
	for i := 0; i < 25; i++ {
		assert.True(t, active.Test(fmt.Sprintf("0xseed%05d", i)))
	}

	// Cursor sits at the last scanned entry, so the next incremental pass
	// starts past the bulk load.
	entries, err := store.ScanSince(context.Background(), mgr.Cursor(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInitialLoadRetriesUntilStoreRecovers(t *testing.T) {
	store := &flakyStore{MemoryStore: allowlist.NewMemory()}
	seedStore(t, store.MemoryStore, 5)
	store.setFailing(true)
	ctl := rotation.New(nil)

	mgr, err := New(store, ctl, testConfig())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		store.setFailing(false)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.InitialLoad(ctx))
	require.NotNil(t, ctl.Active())
	assert.Equal(t, uint64(5), ctl.Active().Items())
}

func TestIncrementalPassAppliesNewEntriesOnce(t *testing.T) {
	store := allowlist.NewMemory()
	seedStore(t, store, 10)
	ctl := rotation.New(nil)

	mgr, err := New(store, ctl, testConfig())
	require.NoError(t, err)
	require.NoError(t, mgr.InitialLoad(context.Background()))

	ctx := context.Background()
	_, err = store.InsertAddress(ctx, "0xlatecomer")
	require.NoError(t, err)

	mgr.incrementalPass(ctx)
	active := ctl.Active()
	assert.True(t, active.Test("0xlatecomer"))
	assert.Equal(t, uint64(11), active.Items())

	// A second pass over the same cursor must not reprocess anything.
	cursorBefore := mgr.Cursor()
	mgr.incrementalPass(ctx)
	assert.Equal(t, cursorBefore, mgr.Cursor())
	assert.Equal(t, uint64(11), active.Items())
}

func TestRebuildFailureLeavesActiveFilterUntouched(t *testing.T) {
	store := &flakyStore{MemoryStore: allowlist.NewMemory()}
	seedStore(t, store.MemoryStore, 10)
	ctl := rotation.New(nil)

	mgr, err := New(store, ctl, testConfig())
	require.NoError(t, err)
	require.NoError(t, mgr.InitialLoad(context.Background()))

	before := ctl.Active()
	cursorBefore := mgr.Cursor()

	store.setFailing(true)
	err = mgr.rebuild(context.Background())
	require.Error(t, err)

	assert.Same(t, before, ctl.Active(), "failed rebuild must not reach readers")
	assert.Equal(t, cursorBefore, mgr.Cursor())
}

func TestRunAppliesAddNotification(t *testing.T) {
	store := allowlist.NewMemory()
	seedStore(t, store, 5)
	ctl := rotation.New(nil)
	notifier := notify.NewMemory()

	cfg := testConfig()
	cfg.SyncInterval = time.Hour // only notifications can wake the loop
	mgr, err := New(store, ctl, cfg, WithNotifier(notifier))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.InitialLoad(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mgr.Run(ctx)
	}()

	// Give Run a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	_, err = store.InsertAddress(ctx, "0xnotified")
	require.NoError(t, err)
	require.NoError(t, notifier.Publish(ctx, models.Change{Kind: models.ChangeAdded, Address: "0xnotified"}))

	assert.Eventually(t, func() bool {
		return ctl.Active().Test("0xnotified")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRunRebuildsOnRemovalNotification(t *testing.T) {
	store := allowlist.NewMemory()
	seedStore(t, store, 5)
	ctl := rotation.New(nil)
	notifier := notify.NewMemory()

	cfg := testConfig()
	cfg.SyncInterval = time.Hour
	mgr, err := New(store, ctl, cfg, WithNotifier(notifier))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.InitialLoad(ctx))
	before := ctl.Active()
	require.True(t, before.Test("0xseed00000"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mgr.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.RemoveAddress(ctx, "0xseed00000"))
	require.NoError(t, notifier.Publish(ctx, models.Change{Kind: models.ChangeRemoved, Address: "0xseed00000"}))

	// The rebuild drops the removed address's bits entirely.
	assert.Eventually(t, func() bool {
		active := ctl.Active()
		return active != before && !active.Test("0xseed00000")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRunRebuildsWhenFalsePositiveRateExceedsCeiling(t *testing.T) {
	store := allowlist.NewMemory()
	seedStore(t, store, 10)
	ctl := rotation.New(nil)

	cfg := testConfig()
	cfg.ExpectedItemsFloor = 10 // initial filter sized for 15 items
	mgr, err := New(store, ctl, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.InitialLoad(ctx))
	small := ctl.Active()

	// Overfill the store well past the filter's capacity; incremental sync
	// degrades the estimate past the ceiling and forces a rebuild sized for
	// the new row count.
	seedStoreFrom(t, store, 100, 200)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mgr.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		active := ctl.Active()
		return active != small &&
			active.Params().ExpectedItems > small.Params().ExpectedItems &&
			active.EstimatedFalsePositiveRate() <= cfg.FalsePositiveCeiling
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func seedStoreFrom(t *testing.T, store *allowlist.MemoryStore, start, n int) {
	t.Helper()
	ctx := context.Background()
	for i := start; i < start+n; i++ {
		_, err := store.InsertAddress(ctx, models.WalletAddress(fmt.Sprintf("0xextra%05d", i)))
		require.NoError(t, err)
	}
}

func TestNewValidation(t *testing.T) {
	ctl := rotation.New(nil)
	store := allowlist.NewMemory()

	_, err := New(nil, ctl, testConfig())
	assert.ErrorContains(t, err, "store is required")

	_, err = New(store, nil, testConfig())
	assert.ErrorContains(t, err, "rotation controller is required")

	cfg := testConfig()
	cfg.PageSize = 0
	_, err = New(store, ctl, cfg)
	assert.ErrorContains(t, err, "page size")

	cfg = testConfig()
	cfg.GrowthMargin = 0.5
	_, err = New(store, ctl, cfg)
	assert.ErrorContains(t, err, "growth margin")
}
