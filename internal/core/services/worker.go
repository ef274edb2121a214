package services

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"training-pipeline-service/internal/config"
)

// WorkerPool runs N independent claim loops against the orchestrator. Workers
// share nothing in memory; a claim won by one worker is invisible to the rest.
type WorkerPool struct {
	orch *Orchestrator
	cfg  config.WorkerConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorkerPool(orch *Orchestrator, cfg config.WorkerConfig) *WorkerPool {
	return &WorkerPool{orch: orch, cfg: cfg}
}

func (p *WorkerPool) Start(ctx context.Context) {
	if !p.cfg.Enabled {
		log.Info("background workers disabled")
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	count := p.cfg.Count
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	log.WithField("workers", count).Info("background workers started")
}

func (p *WorkerPool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	log.Info("background workers stopped")
}

func (p *WorkerPool) loop(ctx context.Context, id int) {
	defer p.wg.Done()

	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx, id)
		}
	}
}

// cycle claims and processes up to a batch of runs. Each run is driven to a
// terminal state before the next claim.
func (p *WorkerPool) cycle(ctx context.Context, id int) {
	batch := p.cfg.BatchSize
	if batch <= 0 {
		batch = 1
	}
	for processed := 0; processed < batch; processed++ {
		run, err := p.orch.ClaimNext(ctx)
		if err != nil {
			log.WithError(err).WithField("worker", id).Error("claim cycle failed")
			return
		}
		if run == nil {
			return
		}

		done, err := p.orch.Advance(ctx, run.ID)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"worker": id, "run_id": run.ID}).Error("advance failed")
			continue
		}
		log.WithFields(log.Fields{
			"worker": id,
			"run_id": done.ID,
			"state":  done.State,
		}).Info("processed run")
	}
}
