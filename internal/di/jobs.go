package di

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/config"
	"github.com/aristath/holdings/internal/reliability"
	"github.com/aristath/holdings/internal/scheduler"
)

const maintenanceTimeout = 30 * time.Minute

// RegisterJobs creates the background jobs and schedules them.
// The returned scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*scheduler.Scheduler, error) {
	container.MaintenanceJob = reliability.NewDailyMaintenanceJob(
		container.Databases(),
		cfg.DataDir,
		container.Staleness,
		container.PositionService,
		log,
	)

	sched := scheduler.New(maintenanceTimeout, log)

	schedule := strings.TrimSpace(cfg.MaintenanceSchedule)
	if strings.EqualFold(schedule, "off") {
		log.Info().Msg("Daily maintenance disabled")
		return sched, nil
	}
	if schedule == "" {
		schedule = config.DefaultMaintenanceSchedule
	}

	if err := sched.AddJob(schedule, container.MaintenanceJob); err != nil {
		return nil, err
	}
	return sched, nil
}
