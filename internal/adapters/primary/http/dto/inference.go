package dto

import (
	"github.com/google/uuid"

	"training-pipeline-service/internal/core/domain"
)

type ContextDocDTO struct {
	ID   string `json:"id" binding:"required"`
	Text string `json:"text" binding:"required"`
}

type ChatRequest struct {
	ProjectID   uuid.UUID       `json:"project_id" binding:"required"`
	Question    string          `json:"question" binding:"required"`
	ContextDocs []ContextDocDTO `json:"context_docs"`
}

type CitationDTO struct {
	DocumentID string  `json:"document_id"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

type ChatResponse struct {
	Answer    string        `json:"answer"`
	Citations []CitationDTO `json:"citations"`
	Refused   bool          `json:"refused"`
	LatencyMs int64         `json:"latency_ms"`
}

func (r *ChatRequest) DocsToDomain() []domain.ContextDoc {
	docs := make([]domain.ContextDoc, 0, len(r.ContextDocs))
	for _, d := range r.ContextDocs {
		docs = append(docs, domain.ContextDoc{ID: d.ID, Text: d.Text})
	}
	return docs
}

func ToChatResponse(result *domain.ChatResult) ChatResponse {
	citations := make([]CitationDTO, 0, len(result.Citations))
	for _, c := range result.Citations {
		citations = append(citations, CitationDTO{
			DocumentID: c.DocumentID,
			Snippet:    c.Snippet,
			Score:      c.Score,
		})
	}
	return ChatResponse{
		Answer:    result.Answer,
		Citations: citations,
		Refused:   result.Refused,
		LatencyMs: result.LatencyMs,
	}
}
