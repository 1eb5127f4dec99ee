package services

import (
	"log"
	"time"

	"we-planet-api/metrics"

	"github.com/go-co-op/gocron/v2"
)

// MaintenanceJobs is the set of periodic cleanups run by the scheduler.
type MaintenanceJobs struct {
	Missions *MissionService
	Auth     *AuthService
}

// StartMaintenanceScheduler runs mission deactivation every minute and refresh token
// purging every hour. Call Shutdown on the returned scheduler to stop it.
func StartMaintenanceScheduler(jobs MaintenanceJobs) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(jobs.deactivateMissions),
		gocron.WithName("deactivate-missions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(jobs.purgeRefreshTokens),
		gocron.WithName("purge-refresh-tokens"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	sched.Start()
	log.Println("⏰ [Scheduler] maintenance jobs started")
	return sched, nil
}

func (j MaintenanceJobs) deactivateMissions() {
	n, err := j.Missions.DeactivateEnded()
	metrics.RecordJobRun("deactivate-missions", err == nil)
	if err != nil {
		log.Printf("[Scheduler] DB error deactivating missions: %v", err)
		return
	}
	if n > 0 {
		log.Printf("✅ [Scheduler] deactivated %d ended mission(s)", n)
	}
}

func (j MaintenanceJobs) purgeRefreshTokens() {
	n, err := j.Auth.PurgeRefreshTokens(time.Now().UTC())
	metrics.RecordJobRun("purge-refresh-tokens", err == nil)
	if err != nil {
		log.Printf("[Scheduler] DB error purging refresh tokens: %v", err)
		return
	}
	if n > 0 {
		log.Printf("✅ [Scheduler] purged %d refresh token(s)", n)
	}
}
