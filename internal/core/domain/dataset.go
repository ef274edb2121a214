package domain

import (
	"time"

	"github.com/google/uuid"
)

type DatasetStatus string

const (
	DatasetStatusBuilding    DatasetStatus = "BUILDING"
	DatasetStatusReady       DatasetStatus = "READY"
	DatasetStatusNeedsReview DatasetStatus = "NEEDS_REVIEW"
	DatasetStatusFailed      DatasetStatus = "FAILED"
)

// Usable reports whether a dataset version may be referenced by a new run.
func (s DatasetStatus) Usable() bool {
	return s == DatasetStatusReady || s == DatasetStatusNeedsReview
}

// DatasetPaths locates the materialized splits of a dataset version.
type DatasetPaths struct {
	Train string `json:"train"`
	Val   string `json:"val"`
	Test  string `json:"test"`
	Gold  string `json:"gold"`
}

// DatasetVersion is produced by the upstream dataset builder. The orchestrator
// only reads it; it never changes a dataset's status or contents.
type DatasetVersion struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	ProjectID uuid.UUID      `json:"project_id"`
	Name      string         `json:"name"`
	Status    DatasetStatus  `json:"status"`
	Paths     DatasetPaths   `json:"paths"`
	Stats     map[string]int `json:"stats"`
	CreatedAt time.Time      `json:"created_at"`
}
