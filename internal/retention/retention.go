// Package retention — периодическая чистка старых версий конфигов и журнала провижининга.
package retention

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"phoneprov/internal/logs"
)

type VersionPruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

type LogPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Policy struct {
	KeepVersions int
	LogDays      int // 0 — журнал не чистится
}

type Report struct {
	VersionsDeleted int64
	LogsDeleted     int64
}

// Job реализует cron.Job.
type Job struct {
	versions VersionPruner
	logs     LogPurger
	policy   Policy
	timeout  time.Duration
	now      func() time.Time
	log      *logrus.Entry
}

func NewJob(v VersionPruner, l LogPurger, p Policy) *Job {
	return &Job{versions: v, logs: l, policy: p, timeout: 5 * time.Minute, now: time.Now, log: logs.Component("retention")}
}

// Run — вход cron.
func (j *Job) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if _, err := j.RunOnce(ctx); err != nil {
		j.log.WithError(err).Error("retention run failed")
	}
}

func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	if j.policy.KeepVersions > 0 {
		n, err := j.versions.Prune(ctx, j.policy.KeepVersions)
		rep.VersionsDeleted = n
		if err != nil {
			return rep, err
		}
	}
	if j.policy.LogDays > 0 {
		cutoff := j.now().UTC().AddDate(0, 0, -j.policy.LogDays)
		n, err := j.logs.PurgeOlderThan(ctx, cutoff)
		rep.LogsDeleted = n
		if err != nil {
			return rep, err
		}
	}
	j.log.WithFields(logrus.Fields{
		"versions_deleted": rep.VersionsDeleted,
		"logs_deleted":     rep.LogsDeleted,
	}).Info("retention run finished")
	return rep, nil
}

type Scheduler struct {
	scheduler *cron.Cron
	logger    *logrus.Entry
	jobID     cron.EntryID
}

// scheduleParser — стандартные 5 полей, секунды первым полем опционально.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule проверяет выражение тем же разбором, что и планировщик.
func ParseSchedule(frequency string) (cron.Schedule, error) {
	return scheduleParser.Parse(strings.TrimSpace(frequency))
}

func NewScheduler(frequency string, job cron.Job) (*Scheduler, error) {
	logger := logs.Component("retention")
	frequency = strings.TrimSpace(frequency)
	if len(strings.Fields(frequency)) == 6 {
		logger.Warn("retention schedule has second-level precision")
	}
	scheduler := cron.New(cron.WithParser(scheduleParser))
	id, err := scheduler.AddJob(frequency, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(job))
	if err != nil {
		return nil, err
	}
	logger.Infof("retention scheduled with cron expression '%s'", frequency)
	return &Scheduler{scheduler: scheduler, logger: logger, jobID: id}, nil
}

func (s *Scheduler) Start() { s.scheduler.Start() }

func (s *Scheduler) NextRun() time.Time { return s.scheduler.Entry(s.jobID).Next }

func (s *Scheduler) Stop() {
	s.scheduler.Remove(s.jobID)
	<-s.scheduler.Stop().Done()
}
