package controller

import (
	"time"

	"github.com/lcastro/eventcore/internal/domain/dlq"
	"github.com/lcastro/eventcore/internal/domain/evaluation"
	"github.com/lcastro/eventcore/internal/eventbus"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (string ids, validation tags).
// Controllers convert these to domain calls.

// CreateEvaluationRequest holds the input for starting an evaluation.
type CreateEvaluationRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// RecordScoreRequest holds one trait score.
type RecordScoreRequest struct {
	Trait string  `json:"trait" validate:"required"`
	Score float64 `json:"score" validate:"gte=0,lte=100"`
}

// BulkRetryRequest optionally narrows a bulk retry by status and event name.
// Status defaults to pending; passing "failed" re-drives entries whose last
// retry did not resolve them.
type BulkRetryRequest struct {
	Status    *string `json:"status,omitempty"`
	EventName *string `json:"event_name,omitempty"`
}

// --- Response DTOs ---

// EntryResponse represents a dead letter entry in API responses.
type EntryResponse struct {
	ID            string         `json:"id"`
	EventID       string         `json:"event_id"`
	EventName     string         `json:"event_name"`
	EventData     map[string]any `json:"event_data"`
	HandlerID     string         `json:"handler_id"`
	ErrorMessage  string         `json:"error_message"`
	RetryCount    int            `json:"retry_count"`
	Status        string         `json:"status"`
	CorrelationID string         `json:"correlation_id"`
	SourceID      string         `json:"source_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	LastRetryAt   *time.Time     `json:"last_retry_at,omitempty"`
}

// EvaluationResponse represents an evaluation in API responses.
type EvaluationResponse struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	TraitScores map[string]float64 `json:"trait_scores"`
	Status      string             `json:"status"`
	Version     int                `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// EventMetricsResponse reports delivery counters for one event type.
type EventMetricsResponse struct {
	EventType        string `json:"event_type"`
	Published        uint64 `json:"published"`
	HandlerSuccesses uint64 `json:"handler_successes"`
	HandlerFailures  uint64 `json:"handler_failures"`
}

// --- Conversion helpers ---

// FromEntry converts a dead letter entry to API response.
func FromEntry(e *dlq.Entry) *EntryResponse {
	return &EntryResponse{
		ID:            e.ID.String(),
		EventID:       e.EventID.String(),
		EventName:     e.EventName,
		EventData:     e.EventData,
		HandlerID:     e.HandlerID,
		ErrorMessage:  e.ErrorMessage,
		RetryCount:    e.RetryCount,
		Status:        string(e.Status),
		CorrelationID: e.CorrelationID,
		SourceID:      e.SourceID,
		CreatedAt:     e.CreatedAt,
		LastRetryAt:   e.LastRetryAt,
	}
}

// FromEvaluation converts a domain evaluation to API response.
func FromEvaluation(e *evaluation.Evaluation) *EvaluationResponse {
	return &EvaluationResponse{
		ID:          e.ID.String(),
		UserID:      e.UserID,
		TraitScores: e.TraitScores,
		Status:      string(e.Status),
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		CompletedAt: e.CompletedAt,
	}
}

// FromTypeMetrics converts bus counters to API responses, one per event type.
func FromTypeMetrics(metrics map[string]eventbus.TypeMetrics) []*EventMetricsResponse {
	out := make([]*EventMetricsResponse, 0, len(metrics))
	for eventType, m := range metrics {
		out = append(out, &EventMetricsResponse{
			EventType:        eventType,
			Published:        m.Published,
			HandlerSuccesses: m.HandlerSuccesses,
			HandlerFailures:  m.HandlerFailures,
		})
	}
	return out
}
