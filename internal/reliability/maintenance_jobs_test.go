package reliability

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/domain"
	testutil "github.com/aristath/holdings/internal/testing"
)

type fakeRebuilder struct {
	failing map[string]bool
	during  func(portfolioID string)
	calls   []string
}

func (f *fakeRebuilder) RebuildPortfolio(_ context.Context, portfolioID string) ([]domain.Position, error) {
	f.calls = append(f.calls, portfolioID)
	if f.during != nil {
		f.during(portfolioID)
	}
	if f.failing[portfolioID] {
		return nil, errors.New("ledger unavailable")
	}
	return []domain.Position{{PortfolioID: portfolioID}}, nil
}

func freeSpace(free uint64) func(string) (*disk.UsageStat, error) {
	return func(path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Free: free, UsedPercent: 42}, nil
	}
}

func newMaintenanceJob(t *testing.T, tracker *StalenessTracker, rebuilder PortfolioRebuilder) *DailyMaintenanceJob {
	t.Helper()

	ledgerDB, cleanupLedger := testutil.NewTestDB(t, "ledger")
	t.Cleanup(cleanupLedger)
	portfolioDB, cleanupPortfolio := testutil.NewTestDB(t, "portfolio")
	t.Cleanup(cleanupPortfolio)

	job := NewDailyMaintenanceJob(
		map[string]*database.DB{"ledger": ledgerDB, "portfolio": portfolioDB},
		t.TempDir(),
		tracker,
		rebuilder,
		zerolog.Nop(),
	)
	job.diskUsage = freeSpace(50 * 1024 * 1024 * 1024)
	return job
}

func TestDailyMaintenanceJob_Run(t *testing.T) {
	tracker := NewStalenessTracker()
	failed := derivedErr("import", "tx-1")
	failed.Key.PortfolioID = "p2"
	tracker.RecordDerivedStateError(derivedErr("create", "tx-1"))
	tracker.RecordDerivedStateError(failed)

	rebuilder := &fakeRebuilder{failing: map[string]bool{"p2": true}}
	job := newMaintenanceJob(t, tracker, rebuilder)

	report, err := job.RunReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "daily_maintenance", job.Name())
	assert.Equal(t, []string{"ledger", "portfolio"}, report.Checked)
	assert.Equal(t, []string{"ledger", "portfolio"}, report.Checkpointed)
	assert.Equal(t, []string{"p1"}, report.Repaired)
	assert.Equal(t, []string{"p2"}, report.RepairFailed)
	assert.Equal(t, []string{"p1", "p2"}, rebuilder.calls)
	assert.Equal(t, []string{"p2"}, tracker.StalePortfolios(), "failed rebuilds stay stale")
}

func TestDailyMaintenanceJob_FailureDuringRebuildKeepsPortfolioStale(t *testing.T) {
	tracker := NewStalenessTracker()
	tracker.RecordDerivedStateError(derivedErr("create", "tx-1"))

	rebuilder := &fakeRebuilder{during: func(portfolioID string) {
		racing := derivedErr("update", "tx-2")
		racing.Key.PortfolioID = portfolioID
		tracker.RecordDerivedStateError(racing)
	}}
	job := newMaintenanceJob(t, tracker, rebuilder)

	report, err := job.RunReport(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Repaired)
	assert.Equal(t, []string{"p1"}, report.RepairFailed)
	assert.Equal(t, []string{"p1"}, tracker.StalePortfolios())
	assert.Equal(t, int64(2), tracker.StaleFailures("p1"))

	// The next run sees no new failure and clears the mark
	rebuilder.during = nil
	report, err = job.RunReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, report.Repaired)
	assert.Empty(t, tracker.StalePortfolios())
}

func TestDailyMaintenanceJob_DiskSpace(t *testing.T) {
	job := newMaintenanceJob(t, nil, nil)

	job.diskUsage = freeSpace(100 * 1024 * 1024)
	report, err := job.RunReport(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GB free")
	assert.Len(t, report.Checked, 2, "integrity checks ran before the disk check")

	job.diskUsage = func(string) (*disk.UsageStat, error) { return nil, errors.New("no such device") }
	_, err = job.RunReport(context.Background())
	assert.ErrorContains(t, err, "failed to stat filesystem")

	job.diskUsage = freeSpace(1024 * 1024 * 1024)
	report, err = job.RunReport(context.Background())
	require.NoError(t, err, "low but not critical")
	assert.Equal(t, uint64(1024*1024*1024), report.FreeBytes)
}

func TestDailyMaintenanceJob_ClosedDatabase(t *testing.T) {
	job := newMaintenanceJob(t, nil, nil)
	require.NoError(t, job.databases["portfolio"].Close())

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "integrity check failed for portfolio")
}
