package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"training-pipeline-service/internal/config"
	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
	"training-pipeline-service/internal/metrics"
)

// DeploymentService activates versions and routes inference to the active
// artifact. Resolution is always scoped by tenant and project; there is no
// global current-model pointer.
type DeploymentService struct {
	deployments ports.DeploymentRepository
	runs        ports.TrainingRunRepository
	audit       ports.AuditLogRepository
	inference   ports.InferenceBackend
	cfg         config.InferenceConfig
}

func NewDeploymentService(
	deployments ports.DeploymentRepository,
	runs ports.TrainingRunRepository,
	audit ports.AuditLogRepository,
	inference ports.InferenceBackend,
	cfg config.InferenceConfig,
) *DeploymentService {
	return &DeploymentService{
		deployments: deployments,
		runs:        runs,
		audit:       audit,
		inference:   inference,
		cfg:         cfg,
	}
}

type ActivateRequest struct {
	TenantID      uuid.UUID
	ProjectID     uuid.UUID
	TrainingRunID uuid.UUID
	Version       string
	EndpointURL   string
	UserID        *uuid.UUID
}

// Activate promotes a READY run to the project's active deployment, retiring
// the previous active one in the same atomic write. READY is the precondition;
// operators are expected to check the run's go/no-go verdict first.
func (s *DeploymentService) Activate(ctx context.Context, req ActivateRequest) (*domain.Deployment, error) {
	if req.Version == "" {
		return nil, domain.ErrInvalidVersionLabel
	}

	run, err := s.runs.GetByID(ctx, req.TenantID, req.TrainingRunID)
	if err != nil {
		return nil, err
	}
	if run.ProjectID != req.ProjectID {
		return nil, domain.ErrRunNotFound
	}
	if run.State != domain.RunStateReady || run.PackagePath == "" {
		return nil, domain.ErrRunNotReady
	}

	deployment := &domain.Deployment{
		ID:            uuid.New(),
		TenantID:      req.TenantID,
		ProjectID:     req.ProjectID,
		TrainingRunID: req.TrainingRunID,
		Version:       req.Version,
		Status:        domain.DeploymentStatusActive,
		PackagePath:   run.PackagePath,
		EndpointURL:   req.EndpointURL,
		CreatedAt:     time.Now(),
	}
	if err := s.deployments.ActivateExclusive(ctx, deployment); err != nil {
		return nil, err
	}

	if s.audit != nil {
		projectID := req.ProjectID
		event := &domain.AuditEvent{
			ID:         uuid.New(),
			TenantID:   req.TenantID,
			UserID:     req.UserID,
			ProjectID:  &projectID,
			Action:     "deployment_activated",
			EntityType: "deployment",
			EntityID:   deployment.ID.String(),
			Details: map[string]string{
				"run_id":  req.TrainingRunID.String(),
				"version": req.Version,
			},
			CreatedAt: time.Now(),
		}
		if err := s.audit.Append(ctx, event); err != nil {
			log.WithError(err).Warn("append audit event")
		}
	}

	return deployment, nil
}

// ResolveActive returns the single active deployment for the project.
func (s *DeploymentService) ResolveActive(ctx context.Context, tenantID, projectID uuid.UUID) (*domain.Deployment, error) {
	return s.deployments.GetActive(ctx, tenantID, projectID)
}

func (s *DeploymentService) ListByProject(ctx context.Context, tenantID, projectID uuid.UUID) ([]*domain.Deployment, error) {
	return s.deployments.ListByProject(ctx, tenantID, projectID)
}

type InferRequest struct {
	TenantID    uuid.UUID
	ProjectID   uuid.UUID
	Question    string
	ContextDocs []domain.ContextDoc
}

// Infer resolves the active deployment, grounds the prompt with snippets
// retrieved by lexical overlap, and forwards it to the inference backend.
// When grounding is required and nothing matched, the answer is a refusal and
// the backend is not called.
func (s *DeploymentService) Infer(ctx context.Context, req InferRequest) (*domain.ChatResult, error) {
	started := time.Now()

	if _, err := s.deployments.GetActive(ctx, req.TenantID, req.ProjectID); err != nil {
		return nil, err
	}

	citations := retrieveCitations(req.Question, req.ContextDocs, s.cfg.RetrievalTopK)

	var answer string
	refused := false
	if s.cfg.RequireGrounding && len(citations) == 0 {
		answer = "I do not have grounded evidence in the current knowledge set. Please provide more context or escalate."
		refused = true
	} else {
		answer = s.generate(ctx, req.Question, citations)
	}

	metrics.InferenceRequests.WithLabelValues(fmt.Sprintf("%t", refused)).Inc()

	return &domain.ChatResult{
		Answer:    answer,
		Citations: citations,
		Refused:   refused,
		LatencyMs: time.Since(started).Milliseconds(),
	}, nil
}

const systemPrompt = "You are a domain assistant. Use grounded knowledge and refuse unsupported claims."

func (s *DeploymentService) generate(ctx context.Context, question string, citations []domain.Citation) string {
	prompt := composePrompt(question, citations)
	if s.inference != nil {
		generated, err := s.inference.Generate(ctx, systemPrompt, prompt)
		if err != nil {
			log.WithError(err).Warn("inference backend failed, using fallback answer")
		} else if strings.TrimSpace(generated) != "" {
			return strings.TrimSpace(generated)
		}
	}
	return fallbackAnswer(question, citations)
}

func composePrompt(question string, citations []domain.Citation) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the provided evidence.\n")
	b.WriteString("Evidence:\n")
	if len(citations) == 0 {
		b.WriteString("No citations available.\n")
	}
	for i, c := range citations {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Snippet)
	}
	b.WriteString("Question:\n")
	b.WriteString(question)
	return b.String()
}

func fallbackAnswer(question string, citations []domain.Citation) string {
	if len(citations) == 0 {
		return fmt.Sprintf("%s I can answer generally, but there are no explicit citations for: %s", systemPrompt, question)
	}
	var evidence strings.Builder
	for i, c := range citations {
		fmt.Fprintf(&evidence, "[%d] %s ", i+1, c.Snippet)
	}
	return fmt.Sprintf("%s Based on grounded project documents, here is the answer: %s", systemPrompt, strings.TrimSpace(evidence.String()))
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]{2,}`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// retrieveCitations scores each context document chunk by lexical overlap with
// the question and keeps the topK best snippets of at most 120 words.
func retrieveCitations(question string, docs []domain.ContextDoc, topK int) []domain.Citation {
	if topK <= 0 {
		topK = 3
	}

	qTokens := map[string]struct{}{}
	for _, tok := range tokenize(question) {
		qTokens[tok] = struct{}{}
	}
	if len(qTokens) == 0 {
		return nil
	}

	var scored []domain.Citation
	for _, doc := range docs {
		overlap := 0
		seen := map[string]struct{}{}
		for _, tok := range tokenize(doc.Text) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			if _, ok := qTokens[tok]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}

		words := strings.Fields(doc.Text)
		if len(words) > 120 {
			words = words[:120]
		}
		scored = append(scored, domain.Citation{
			DocumentID: doc.ID,
			Snippet:    strings.Join(words, " "),
			Score:      float64(overlap) / float64(len(qTokens)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
