package dto

import (
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/content/domain"
)

// Query is a consumer read. Text narrows by fuzzy match unless Semantic asks for the vector index.
type Query struct {
	Platform    connectiondomain.Platform
	ContentType domain.ContentType
	ResourceID  string
	Since       *time.Time
	Until       *time.Time
	Text        string
	Semantic    bool
	Limit       int
	Offset      int
}

type QueryResponse struct {
	Items  []domain.ContentItem `json:"items"`
	Count  int                  `json:"count"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

type FreshnessResponse struct {
	UserID   string                    `json:"user_id"`
	Platform connectiondomain.Platform `json:"platform"`
	Within   string                    `json:"within"`
	Fresh    bool                      `json:"fresh"`
}
