package dto

import (
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"
)

type TriggerRequest struct {
	UserID   string                    `json:"user_id" binding:"required"`
	Platform connectiondomain.Platform `json:"platform" binding:"required"`
}

// OutcomeResponse renders an Outcome; Error carries the cause that Outcome keeps out of JSON.
type OutcomeResponse struct {
	*domain.Outcome
	Error string `json:"error,omitempty"`
}

func NewOutcomeResponse(o *domain.Outcome) OutcomeResponse {
	return OutcomeResponse{Outcome: o, Error: o.ErrorText()}
}

type QueuedResponse struct {
	Queued   bool                      `json:"queued"`
	UserID   string                    `json:"user_id"`
	Platform connectiondomain.Platform `json:"platform"`
	At       time.Time                 `json:"at"`
}
