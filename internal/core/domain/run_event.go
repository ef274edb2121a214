package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunEvent is one entry of a run's append-only audit timeline. Events are
// ordered by Seq, which is monotonic per run, and are never edited or removed.
type RunEvent struct {
	ID        uuid.UUID         `json:"id"`
	RunID     uuid.UUID         `json:"run_id"`
	TenantID  uuid.UUID         `json:"tenant_id"`
	ProjectID uuid.UUID         `json:"project_id"`
	Seq       int               `json:"seq"`
	FromState *RunState         `json:"from_state"`
	ToState   RunState          `json:"to_state"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details"`
	CreatedAt time.Time         `json:"created_at"`
}
