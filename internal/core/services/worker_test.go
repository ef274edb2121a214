package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"training-pipeline-service/internal/config"
	"training-pipeline-service/internal/core/domain"
)

func TestWorkerPool_ProcessesQueuedRun(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	run := f.submit(t)

	pool := NewWorkerPool(f.orch, config.WorkerConfig{
		Enabled:      true,
		Count:        2,
		PollInterval: 5 * time.Millisecond,
		BatchSize:    2,
	})
	pool.Start(context.Background())
	defer pool.Stop()

	assert.Eventually(t, func() bool {
		current, err := f.runs.GetByID(context.Background(), f.tenantID, run.ID)
		return err == nil && current.State == domain.RunStateReady
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_DisabledDoesNothing(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	run := f.submit(t)

	pool := NewWorkerPool(f.orch, config.WorkerConfig{Enabled: false})
	pool.Start(context.Background())
	pool.Stop()

	current, err := f.runs.GetByID(context.Background(), f.tenantID, run.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateQueued, current.State)
}

func TestWorkerPool_StopTerminatesLoops(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))

	pool := NewWorkerPool(f.orch, config.WorkerConfig{
		Enabled:      true,
		Count:        3,
		PollInterval: time.Millisecond,
	})
	pool.Start(context.Background())

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not stop")
	}
}
