package reliability

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/holdings/internal/domain"
)

func derivedErr(op, txID string) *domain.DerivedStateError {
	return &domain.DerivedStateError{
		Operation:     op,
		Key:           domain.PositionKey{PortfolioID: "p1", TradingAccountID: "a1", AssetID: "x1"},
		TransactionID: txID,
		Err:           errors.New("database is locked"),
	}
}

func TestStalenessTracker_Empty(t *testing.T) {
	snap := NewStalenessTracker().Snapshot()
	assert.Zero(t, snap.Total)
	assert.Empty(t, snap.ByOperation)
	assert.Nil(t, snap.LastAt)
}

func TestStalenessTracker_Record(t *testing.T) {
	tracker := NewStalenessTracker()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return fixed }

	tracker.RecordDerivedStateError(derivedErr("create", "tx-1"))
	tracker.RecordDerivedStateError(derivedErr("create", "tx-2"))
	tracker.RecordDerivedStateError(derivedErr("delete", "tx-3"))
	tracker.RecordDerivedStateError(nil)

	snap := tracker.Snapshot()
	assert.Equal(t, int64(3), snap.Total)
	assert.Equal(t, map[string]int64{"create": 2, "delete": 1}, snap.ByOperation)
	require.NotNil(t, snap.LastAt)
	assert.Equal(t, fixed, *snap.LastAt)
	assert.Contains(t, snap.LastError, "tx-3")
	assert.Equal(t, "p1/a1/x1", snap.LastKey)

	// Snapshot is a copy
	snap.ByOperation["create"] = 99
	assert.Equal(t, int64(2), tracker.Snapshot().ByOperation["create"])
}

func TestStalenessTracker_Concurrent(t *testing.T) {
	tracker := NewStalenessTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.RecordDerivedStateError(derivedErr("import", "tx"))
			_ = tracker.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), tracker.Snapshot().Total)
}

func TestLogDerivedStateError(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	LogDerivedStateError(log, derivedErr("update", "tx-9"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, true, entry["derived_state_error"])
	assert.Equal(t, "update", entry["op"])
	assert.Equal(t, "p1", entry["portfolio_id"])
	assert.Equal(t, "a1", entry["trading_account_id"])
	assert.Equal(t, "x1", entry["asset_id"])
	assert.Equal(t, "tx-9", entry["transaction_id"])
	assert.Equal(t, "database is locked", entry["error"])
}

func TestStalenessTracker_StalePortfolios(t *testing.T) {
	tracker := NewStalenessTracker()

	other := derivedErr("import", "tx-2")
	other.Key.PortfolioID = "p0"

	tracker.RecordDerivedStateError(derivedErr("create", "tx-1"))
	tracker.RecordDerivedStateError(other)
	tracker.RecordDerivedStateError(derivedErr("update", "tx-3"))

	assert.Equal(t, []string{"p0", "p1"}, tracker.StalePortfolios())

	assert.Equal(t, int64(2), tracker.StaleFailures("p1"))
	assert.False(t, tracker.MarkRepaired("p1", 1), "a failure newer than the rebuild keeps the mark")
	assert.True(t, tracker.MarkRepaired("p1", 2))
	assert.Equal(t, int64(0), tracker.StaleFailures("p1"))

	snap := tracker.Snapshot()
	assert.Equal(t, []string{"p0"}, snap.StalePortfolios)
	assert.Equal(t, int64(3), snap.Total, "counters are cumulative")
}
