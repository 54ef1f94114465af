package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Rotator runs scheduled key rotation and retention sweeps. Rotation happens
// on the configured cron expression; the sweep runs right after each rotation
// so retired keys age out on the same cadence.
type Rotator struct {
	keys *Service
	cron *cron.Cron
	spec string
	log  zerolog.Logger
}

// NewRotator returns a rotator driving the key service on the cron spec.
func NewRotator(keys *Service, spec string, log zerolog.Logger) *Rotator {
	return &Rotator{
		keys: keys,
		cron: cron.New(),
		spec: spec,
		log:  log,
	}
}

// Start schedules rotation and begins the cron loop. Jobs run until Stop.
func (r *Rotator) Start() error {
	_, err := r.cron.AddFunc(r.spec, r.run)
	if err != nil {
		return fmt.Errorf("schedule rotation %q: %w", r.spec, err)
	}
	r.cron.Start()
	r.log.Info().Str("schedule", r.spec).Msg("key rotation scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (r *Rotator) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Rotator) run() {
	ctx := context.Background()
	if err := r.keys.Rotate(ctx); err != nil {
		r.log.Error().Err(err).Msg("key rotation failed")
		return
	}
	if err := r.keys.RemoveOldKeys(ctx); err != nil {
		r.log.Error().Err(err).Msg("key retention sweep failed")
	}
}
