package janitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/importer"
	"github.com/spec-kit/ticket-importer/internal/repository"
)

const defaultCronSpec = "@hourly"

// HistoryPurger deletes finished job runs.
type HistoryPurger interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config wires a Janitor.
type Config struct {
	Cron             string
	UploadDir        string
	UploadSuffix     string
	OutputDir        string
	Retention        time.Duration
	History          HistoryPurger
	HistoryRetention time.Duration
	Logger           *zap.Logger
}

// Report summarizes one sweep.
type Report struct {
	Uploads   int
	Artifacts int
	Runs      int64
}

// Janitor removes old uploads, artifacts and job history on a cron schedule.
type Janitor struct {
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// New applies defaults to cfg.
func New(cfg Config) *Janitor {
	cfg.Cron = strings.TrimSpace(cfg.Cron)
	if cfg.Cron == "" {
		cfg.Cron = defaultCronSpec
	}
	if cfg.UploadSuffix == "" {
		cfg.UploadSuffix = ".csv"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{cfg: cfg, logger: logger, now: time.Now}
}

// Start schedules sweeps until parent is done and returns a stop function
// that waits for a running sweep.
func (j *Janitor) Start(parent context.Context) (context.CancelFunc, error) {
	c := cron.New()
	id, err := c.AddFunc(j.cfg.Cron, func() { j.runScheduled(parent) })
	if err != nil {
		return func() {}, err
	}
	j.cron = c
	c.Start()
	j.logger.Info("janitor started", zap.String("cron", j.cfg.Cron), zap.Time("next", c.Entry(id).Next))

	var once sync.Once
	stop := func() {
		once.Do(func() {
			<-c.Stop().Done()
			j.logger.Info("janitor stopped")
		})
	}
	go func() {
		<-parent.Done()
		stop()
	}()
	return stop, nil
}

func (j *Janitor) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Warn("previous sweep still running, skip current schedule")
		return
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := time.Now()
	report, err := j.Sweep(ctx)
	fields := []zap.Field{
		zap.Duration("duration", time.Since(start)),
		zap.Int("uploads", report.Uploads),
		zap.Int("artifacts", report.Artifacts),
		zap.Int64("runs", report.Runs),
	}
	if err != nil {
		j.logger.Error("sweep failed", append(fields, zap.Error(err))...)
		return
	}
	j.logger.Info("sweep completed", fields...)
}

// Sweep runs one cleanup pass. A retention of zero disables that part.
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	var (
		report Report
		errs   []error
	)
	now := j.now()
	if j.cfg.Retention > 0 {
		cutoff := now.Add(-j.cfg.Retention)
		if j.cfg.UploadDir != "" {
			n, err := importer.PurgeFiles(j.cfg.UploadDir, j.cfg.UploadSuffix, cutoff)
			report.Uploads = n
			errs = append(errs, err)
		}
		if j.cfg.OutputDir != "" {
			n, err := importer.NewFileArtifactStore(j.cfg.OutputDir).PurgeOlderThan(cutoff)
			report.Artifacts = n
			errs = append(errs, err)
		}
	}
	if j.cfg.History != nil && j.cfg.HistoryRetention > 0 {
		n, err := j.cfg.History.DeleteFinishedBefore(ctx, now.Add(-j.cfg.HistoryRetention))
		if !errors.Is(err, repository.ErrHistoryDisabled) {
			errs = append(errs, err)
		}
		report.Runs = n
	}
	return report, errors.Join(errs...)
}
