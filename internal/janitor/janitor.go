package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dgarciamx/Tramita/internal/store"
)

const (
	// DefaultRetention — срок хранения журналов завершённых задач.
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultSchedule — cron-выражение уборки (каждый час).
	DefaultSchedule = "0 * * * *"
)

// cronParser — парсер cron-выражений (стандартные 5 полей).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Janitor периодически удаляет события задач, чей срок хранения истёк.
// Сама задача остаётся: аудит переходов хранится в её снимке.
type Janitor struct {
	store     store.Store
	logger    *slog.Logger
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

// Config — конфигурация Janitor.
type Config struct {
	Store     store.Store
	Logger    *slog.Logger
	Retention time.Duration // default: DefaultRetention
	Schedule  string        // cron-выражение, default: DefaultSchedule
}

// New создаёт новый Janitor.
func New(cfg Config) (*Janitor, error) {
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		store:     cfg.Store,
		logger:    logger,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(cron.WithParser(cronParser)),
	}, nil
}

// Start запускает уборку по расписанию. Останавливается через Stop.
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		if err := j.Sweep(ctx); err != nil {
			j.logger.Error("retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	j.cron.Start()
	j.logger.Info("janitor started",
		"schedule", j.schedule,
		"retention", j.retention)
	return nil
}

// Stop останавливает расписание и ждёт завершения текущей уборки.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

// Sweep выполняет один проход уборки: удаляет события задач,
// завершённых раньше границы хранения.
func (j *Janitor) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retention)

	purged, err := j.store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge terminal tasks: %w", err)
	}

	if purged > 0 {
		j.logger.Info("retention sweep complete",
			"purged", purged,
			"cutoff", cutoff.Format(time.RFC3339))
	}
	return nil
}
