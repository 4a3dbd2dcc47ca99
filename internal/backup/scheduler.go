package backup

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/gluk-w/miaoagent/internal/logutil"
)

// ScheduledJob binds a Pipeline and local path to a cron schedule.
type ScheduledJob struct {
	Name       string
	CronExpr   string
	Pipeline   Pipeline
	LocalPath  string
}

// Scheduler runs ScheduledJobs on their cron schedules, each invocation on
// its own goroutine per SPEC_FULL.md §5 ("Scheduling model").
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler constructs an empty, unstarted Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// AddJob registers job to run on its cron schedule. Returns an error if
// job.CronExpr does not parse.
func (s *Scheduler) AddJob(job ScheduledJob) (cron.EntryID, error) {
	name := logutil.SanitizeForLog(job.Name)
	return s.cron.AddFunc(job.CronExpr, func() {
		log.Printf("[backup] scheduled run starting: %s", name)
		stop := make(chan struct{})
		if err := job.Pipeline.Run(context.Background(), job.LocalPath, stop); err != nil {
			log.Printf("[backup] scheduled run %s failed: %v", name, err)
			return
		}
		log.Printf("[backup] scheduled run %s completed", name)
	})
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
