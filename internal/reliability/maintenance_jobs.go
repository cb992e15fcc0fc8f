package reliability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/domain"
)

const (
	criticalFreeBytes = 500 * 1024 * 1024
	lowFreeBytes      = 5 * 1024 * 1024 * 1024
)

// PortfolioRebuilder recomputes every position of a portfolio from the ledger
type PortfolioRebuilder interface {
	RebuildPortfolio(ctx context.Context, portfolioID string) ([]domain.Position, error)
}

// MaintenanceReport summarizes one maintenance run
type MaintenanceReport struct {
	Checked      []string
	Checkpointed []string
	FreeBytes    uint64
	Repaired     []string
	RepairFailed []string
	Duration     time.Duration
}

// DailyMaintenanceJob checks database integrity, truncates the WAL files, verifies free
// disk space and rebuilds the positions of portfolios left stale by swallowed failures.
type DailyMaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	staleness *StalenessTracker
	rebuilder PortfolioRebuilder
	diskUsage func(path string) (*disk.UsageStat, error)
	log       zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job
func NewDailyMaintenanceJob(
	databases map[string]*database.DB,
	dataDir string,
	staleness *StalenessTracker,
	rebuilder PortfolioRebuilder,
	log zerolog.Logger,
) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		staleness: staleness,
		rebuilder: rebuilder,
		diskUsage: disk.Usage,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// Run executes the job for the scheduler
func (j *DailyMaintenanceJob) Run(ctx context.Context) error {
	_, err := j.RunReport(ctx)
	return err
}

// RunReport executes the daily maintenance job. A failed integrity check or critically low
// disk space aborts the run; checkpoint and repair failures are logged and skipped.
func (j *DailyMaintenanceJob) RunReport(ctx context.Context) (*MaintenanceReport, error) {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()
	report := &MaintenanceReport{}

	names := make([]string, 0, len(j.databases))
	for name := range j.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	// Step 1: Integrity check
	for _, name := range names {
		if err := j.databases[name].QuickCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("CRITICAL: Integrity check failed")
			return report, fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
		report.Checked = append(report.Checked, name)
	}

	// Step 2: WAL checkpoint
	for _, name := range names {
		if err := j.databases[name].WALCheckpoint(ctx, "TRUNCATE"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
			continue
		}
		report.Checkpointed = append(report.Checkpointed, name)
	}

	// Step 3: Disk space
	free, err := j.checkDiskSpace()
	if err != nil {
		return report, err
	}
	report.FreeBytes = free

	// Step 4: Repair stale positions
	j.repairStalePortfolios(ctx, report)

	// Step 5: Size metrics
	j.logDatabaseStats(ctx, names)

	report.Duration = time.Since(startTime)
	j.log.Info().
		Dur("duration_ms", report.Duration).
		Int("repaired", len(report.Repaired)).
		Int("repair_failed", len(report.RepairFailed)).
		Msg("Daily maintenance completed")

	return report, nil
}

func (j *DailyMaintenanceJob) checkDiskSpace() (uint64, error) {
	usage, err := j.diskUsage(j.dataDir)
	if err != nil {
		return 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Float64("used_percent", usage.UsedPercent).Msg("Disk space check")

	if usage.Free < criticalFreeBytes {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return usage.Free, fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	}
	if usage.Free < lowFreeBytes {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}
	return usage.Free, nil
}

func (j *DailyMaintenanceJob) repairStalePortfolios(ctx context.Context, report *MaintenanceReport) {
	if j.staleness == nil || j.rebuilder == nil {
		return
	}

	for _, portfolioID := range j.staleness.StalePortfolios() {
		failures := j.staleness.StaleFailures(portfolioID)

		positions, err := j.rebuilder.RebuildPortfolio(ctx, portfolioID)
		if err != nil {
			j.log.Error().Str("portfolio_id", portfolioID).Err(err).Msg("Stale portfolio rebuild failed")
			report.RepairFailed = append(report.RepairFailed, portfolioID)
			continue
		}

		// A position update that failed while the rebuild ran may postdate the replayed ledger
		if !j.staleness.MarkRepaired(portfolioID, failures) {
			j.log.Warn().Str("portfolio_id", portfolioID).Msg("Position failure recorded during rebuild, portfolio stays stale")
			report.RepairFailed = append(report.RepairFailed, portfolioID)
			continue
		}
		report.Repaired = append(report.Repaired, portfolioID)
		j.log.Info().Str("portfolio_id", portfolioID).Int("positions", len(positions)).Msg("Stale portfolio rebuilt from ledger")
	}
}

func (j *DailyMaintenanceJob) logDatabaseStats(ctx context.Context, names []string) {
	for _, name := range names {
		stats, err := j.databases[name].GetStats(ctx)
		if err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Failed to get metrics")
			continue
		}

		j.log.Info().
			Str("database", name).
			Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
			Float64("wal_size_mb", float64(stats.WALSizeBytes)/1024/1024).
			Msg("Database metrics")
	}
}
