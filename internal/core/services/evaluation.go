package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"training-pipeline-service/internal/config"
	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

// EvaluationService scores a completed run's adapter against the held-out gold
// set and renders a go/no-go verdict. It never touches the run's state; the
// orchestrator reads only the report id and the verdict.
type EvaluationService struct {
	reports ports.EvaluationReportRepository
	cfg     config.EvaluationConfig

	// predict produces the adapter's answer for a gold row. The default is
	// the deterministic simulator used outside GPU environments.
	predict func(domain.GoldExample) string
}

func NewEvaluationService(reports ports.EvaluationReportRepository, cfg config.EvaluationConfig) *EvaluationService {
	return &EvaluationService{
		reports: reports,
		cfg:     cfg,
		predict: simulatedPrediction,
	}
}

// EvaluateRun loads the gold split (falling back to the test split), computes
// the metrics vector, compares against the latest prior report for the
// project, and persists an immutable report.
func (s *EvaluationService) EvaluateRun(ctx context.Context, run *domain.TrainingRun, dataset *domain.DatasetVersion) (*domain.EvaluationReport, error) {
	rows, err := readJSONL[domain.GoldExample](dataset.Paths.Gold)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		rows, err = readJSONL[domain.GoldExample](dataset.Paths.Test)
		if err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return nil, domain.ErrNoGoldExamples
	}

	var prior *domain.EvaluationReport
	if p, perr := s.reports.LatestForProject(ctx, run.ProjectID, run.ID); perr == nil {
		prior = p
	} else if !errors.Is(perr, domain.ErrReportNotFound) {
		return nil, fmt.Errorf("load prior report: %w", perr)
	}

	report := s.Evaluate(run, rows, prior)

	reportPath := filepath.Join(filepath.Dir(dataset.Paths.Gold), fmt.Sprintf("eval_report_%s.json", run.ID))
	if run.AdapterPath != "" {
		reportPath = filepath.Join(run.AdapterPath, "eval_report.json")
	}
	if werr := writeJSON(reportPath, report); werr != nil {
		return nil, werr
	}
	report.ReportPath = reportPath

	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("persist evaluation report: %w", err)
	}
	return report, nil
}

// Evaluate is the pure scoring core: no IO, no persistence.
func (s *EvaluationService) Evaluate(run *domain.TrainingRun, rows []domain.GoldExample, prior *domain.EvaluationReport) *domain.EvaluationReport {
	started := time.Now()

	var (
		failures     []domain.EvalFailure
		exactMatches int
		fuzzySum     float64
		semanticSum  float64
		refusalTP    int
		refusalFP    int
		refusalFN    int
		unsupported  int
		totalTokens  int
	)

	for _, row := range rows {
		predicted := s.predict(row)
		predictedRefusal := isRefusal(predicted)
		totalTokens += len(strings.Fields(row.Output))

		if strings.TrimSpace(predicted) == strings.TrimSpace(row.Output) {
			exactMatches++
		}

		fuzzySum += fuzzyRatio(row.Output, predicted)
		semantic := semanticSimilarity(row.Output, predicted)
		semanticSum += semantic

		switch {
		case row.ExpectedRefusal && predictedRefusal:
			refusalTP++
		case !row.ExpectedRefusal && predictedRefusal:
			refusalFP++
		case row.ExpectedRefusal && !predictedRefusal:
			refusalFN++
		}

		claimUnsupported := unsupportedClaim(row.Output, predicted)
		if claimUnsupported {
			unsupported++
		}

		if semantic < 0.65 || claimUnsupported {
			notes := "low_similarity"
			if claimUnsupported {
				notes = "unsupported_claim"
			}
			failures = append(failures, domain.EvalFailure{
				Prompt:   row.Instruction,
				Answer:   predicted,
				Expected: row.Output,
				Notes:    notes,
			})
		}
	}

	n := float64(len(rows))
	duration := time.Since(started)
	if duration <= 0 {
		duration = time.Microsecond
	}

	metrics := domain.EvalMetrics{
		ExactMatch:           float64(exactMatches) / n,
		FuzzyMatch:           fuzzySum / n,
		SemanticSimilarity:   semanticSum / n,
		RefusalPrecision:     ratio(refusalTP, refusalTP+refusalFP),
		RefusalRecall:        ratio(refusalTP, refusalTP+refusalFN),
		UnsupportedClaimRate: float64(unsupported) / n,
		LatencyMs:            duration.Milliseconds() / int64(len(rows)),
		TokensPerSecond:      float64(totalTokens) / duration.Seconds(),
		GoldExamples:         len(rows),
	}

	if prior != nil {
		delta := metrics.SemanticSimilarity - prior.Metrics.SemanticSimilarity
		metrics.RegressionDelta = &delta
	}

	goNoGo := metrics.ExactMatch >= s.cfg.ExactMatchThreshold &&
		metrics.SemanticSimilarity >= s.cfg.SemanticThreshold &&
		metrics.UnsupportedClaimRate <= s.cfg.UnsupportedThreshold &&
		metrics.RefusalRecall >= s.cfg.RefusalRecallThreshold &&
		(metrics.RegressionDelta == nil || *metrics.RegressionDelta >= -s.cfg.RegressionTolerance)

	if limit := s.cfg.MaxFailures; limit > 0 && len(failures) > limit {
		failures = failures[:limit]
	}

	return &domain.EvaluationReport{
		ID:            uuid.New(),
		TenantID:      run.TenantID,
		ProjectID:     run.ProjectID,
		TrainingRunID: run.ID,
		Metrics:       metrics,
		GoNoGo:        goNoGo,
		Failures:      failures,
		CreatedAt:     time.Now(),
	}
}

func (s *EvaluationService) GetReport(ctx context.Context, id uuid.UUID) (*domain.EvaluationReport, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *EvaluationService) GetReportForRun(ctx context.Context, runID uuid.UUID) (*domain.EvaluationReport, error) {
	return s.reports.GetByRunID(ctx, runID)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 1.0
	}
	return float64(num) / float64(den)
}

// simulatedPrediction stands in for the trained adapter when no GPU inference
// is wired: refusals answer with the canned abstention, long answers are
// truncated to fifty words.
func simulatedPrediction(row domain.GoldExample) string {
	if row.ExpectedRefusal {
		return "I do not have enough grounded information to answer safely. Escalate to a manager."
	}
	words := strings.Fields(row.Output)
	if len(words) > 50 {
		return strings.Join(words[:50], " ")
	}
	return row.Output
}

var refusalMarkers = []string{"cannot", "can't", "do not have", "insufficient", "escalate"}

func isRefusal(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range refusalMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// unsupportedClaim flags an answer when more than 40% of its tokens do not
// occur in the reference text.
func unsupportedClaim(expected, predicted string) bool {
	predictedTokens := strings.Fields(strings.ToLower(predicted))
	if len(predictedTokens) == 0 {
		return false
	}
	expectedSet := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(expected)) {
		expectedSet[tok] = struct{}{}
	}
	novel := 0
	for _, tok := range predictedTokens {
		if _, ok := expectedSet[tok]; !ok {
			novel++
		}
	}
	return float64(novel)/float64(len(predictedTokens)) > 0.4
}

// fuzzyRatio is a normalized Levenshtein similarity in [0,1].
func fuzzyRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	dist := levenshtein(ra, rb)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// semanticSimilarity approximates answer closeness as the ratio of the longest
// common subsequence to the mean length, case-insensitive.
func semanticSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	lcs := lcsLength(ra, rb)
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return prev[len(b)]
}
