package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/config"
	"familytree-backend/internal/shared"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
	cfg       config.WorkerConfig
}

func NewScheduler(redisOpt asynq.RedisClientOpt, cfg config.WorkerConfig) *Scheduler {
	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{
		scheduler: scheduler,
		cfg:       cfg,
	}
}

func (s *Scheduler) RegisterJobs() error {
	return s.registerMarriageIntegrityScanJob()
}

// ================================================
// JOB: Marriage integrity scan (mặc định 3 AM hằng ngày)
// ================================================
func (s *Scheduler) registerMarriageIntegrityScanJob() error {
	payload, err := json.Marshal(shared.MarriageIntegrityScanPayload{})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeMarriageIntegrityScan, payload)

	_, err = s.scheduler.Register(
		s.cfg.IntegrityScanCron,
		task,
		asynq.Queue(shared.QueueMaintenance),
		asynq.MaxRetry(1),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register MarriageIntegrityScan job")
		return err
	}

	log.Info().Str("cron", s.cfg.IntegrityScanCron).Msg("✓ Registered MarriageIntegrityScan")
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Start()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
