package domain

import (
	"time"

	"github.com/google/uuid"
)

// EvalMetrics is the metrics vector of one evaluation pass. RegressionDelta is
// nil when no prior report exists for the project.
type EvalMetrics struct {
	ExactMatch           float64  `json:"exact_match"`
	FuzzyMatch           float64  `json:"fuzzy_match"`
	SemanticSimilarity   float64  `json:"semantic_similarity"`
	RefusalPrecision     float64  `json:"refusal_precision"`
	RefusalRecall        float64  `json:"refusal_recall"`
	UnsupportedClaimRate float64  `json:"unsupported_claim_rate"`
	LatencyMs            int64    `json:"latency_ms"`
	TokensPerSecond      float64  `json:"tokens_per_second"`
	RegressionDelta      *float64 `json:"regression_delta"`
	GoldExamples         int      `json:"gold_examples"`
}

// EvalFailure is one low-scoring example kept for inspection.
type EvalFailure struct {
	Prompt   string `json:"prompt"`
	Answer   string `json:"answer"`
	Expected string `json:"expected"`
	Notes    string `json:"notes"`
}

// EvaluationReport is immutable once created; one report per completed run.
type EvaluationReport struct {
	ID            uuid.UUID     `json:"id"`
	TenantID      uuid.UUID     `json:"tenant_id"`
	ProjectID     uuid.UUID     `json:"project_id"`
	TrainingRunID uuid.UUID     `json:"training_run_id"`
	Metrics       EvalMetrics   `json:"metrics"`
	GoNoGo        bool          `json:"go_no_go"`
	Failures      []EvalFailure `json:"failures"`
	ReportPath    string        `json:"report_path"`
	CreatedAt     time.Time     `json:"created_at"`
}

// GoldExample is one held-out row used for evaluation.
type GoldExample struct {
	Instruction     string `json:"instruction"`
	Output          string `json:"output"`
	ExpectedRefusal bool   `json:"expected_refusal"`
}
