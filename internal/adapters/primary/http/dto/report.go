package dto

import (
	"time"

	"github.com/google/uuid"

	"training-pipeline-service/internal/core/domain"
)

type EvalMetricsDTO struct {
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

type EvalFailureDTO struct {
	Prompt   string `json:"prompt"`
	Answer   string `json:"answer"`
	Expected string `json:"expected"`
	Notes    string `json:"notes"`
}

type EvaluationReportResponse struct {
	ID            uuid.UUID        `json:"id"`
	TenantID      uuid.UUID        `json:"tenant_id"`
	ProjectID     uuid.UUID        `json:"project_id"`
	TrainingRunID uuid.UUID        `json:"training_run_id"`
	Metrics       EvalMetricsDTO   `json:"metrics"`
	GoNoGo        bool             `json:"go_no_go"`
	Failures      []EvalFailureDTO `json:"failures"`
	ReportPath    string           `json:"report_path"`
	CreatedAt     string           `json:"created_at"`
}

func ToEvaluationReportResponse(report *domain.EvaluationReport) EvaluationReportResponse {
	failures := make([]EvalFailureDTO, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, EvalFailureDTO{
			Prompt:   f.Prompt,
			Answer:   f.Answer,
			Expected: f.Expected,
			Notes:    f.Notes,
		})
	}
	return EvaluationReportResponse{
		ID:            report.ID,
		TenantID:      report.TenantID,
		ProjectID:     report.ProjectID,
		TrainingRunID: report.TrainingRunID,
		Metrics: EvalMetricsDTO{
			ExactMatch:           report.Metrics.ExactMatch,
			FuzzyMatch:           report.Metrics.FuzzyMatch,
			SemanticSimilarity:   report.Metrics.SemanticSimilarity,
			RefusalPrecision:     report.Metrics.RefusalPrecision,
			RefusalRecall:        report.Metrics.RefusalRecall,
			UnsupportedClaimRate: report.Metrics.UnsupportedClaimRate,
			LatencyMs:            report.Metrics.LatencyMs,
			TokensPerSecond:      report.Metrics.TokensPerSecond,
			RegressionDelta:      report.Metrics.RegressionDelta,
			GoldExamples:         report.Metrics.GoldExamples,
		},
		GoNoGo:     report.GoNoGo,
		Failures:   failures,
		ReportPath: report.ReportPath,
		CreatedAt:  report.CreatedAt.Format(time.RFC3339),
	}
}
