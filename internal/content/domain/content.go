package domain

import (
	"errors"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"

	"gorm.io/datatypes"
)

type ContentType string

const (
	ContentTypeMessage     ContentType = "message"
	ContentTypeEmail       ContentType = "email"
	ContentTypeEvent       ContentType = "event"
	ContentTypePage        ContentType = "page"
	ContentTypeThreadReply ContentType = "thread_reply"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeMessage, ContentTypeEmail, ContentTypeEvent, ContentTypePage, ContentTypeThreadReply:
		return true
	}
	return false
}

var (
	ErrItemNotFound = errors.New("content item not found")
	ErrInvalidQuery = errors.New("invalid content query")
)

// ContentItem is one accumulated version of a platform item. A changed item
// produces a new row with its own hash; the older version ages out on its own TTL.
type ContentItem struct {
	ID              string                    `json:"id" gorm:"primaryKey"`
	UserID          string                    `json:"user_id" gorm:"not null;uniqueIndex:idx_content_dedup,priority:1;index:idx_content_user_time,priority:1"`
	Platform        connectiondomain.Platform `json:"platform" gorm:"not null;uniqueIndex:idx_content_dedup,priority:2"`
	ResourceID      string                    `json:"resource_id" gorm:"not null;uniqueIndex:idx_content_dedup,priority:3"`
	ItemID          string                    `json:"item_id" gorm:"not null;uniqueIndex:idx_content_dedup,priority:4"`
	ContentHash     string                    `json:"content_hash" gorm:"not null;uniqueIndex:idx_content_dedup,priority:5"`
	ResourceName    string                    `json:"resource_name,omitempty"`
	ContentType     ContentType               `json:"content_type" gorm:"index;not null"`
	Author          string                    `json:"author,omitempty"`
	Title           string                    `json:"title,omitempty"`
	Text            string                    `json:"text" gorm:"type:text"`
	Metadata        datatypes.JSONMap         `json:"metadata,omitempty"`
	SourceTimestamp time.Time                 `json:"source_timestamp" gorm:"index:idx_content_user_time,priority:2"`
	Retained        bool                      `json:"retained" gorm:"not null;default:false"`
	ExpiresAt       *time.Time                `json:"expires_at" gorm:"index"`
	SyncedAt        time.Time                 `json:"synced_at" gorm:"index"`
	LastSeenAt      time.Time                 `json:"last_seen_at"`
}

func (ContentItem) TableName() string {
	return "content_items"
}

// Expired reports whether cleanup may delete the item at now.
func (c *ContentItem) Expired(now time.Time) bool {
	return !c.Retained && c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// ItemRef identifies an item on behalf of a user; ownership is checked against UserID.
type ItemRef struct {
	UserID    string `json:"user_id"`
	ContentID string `json:"content_id"`
}

// Filter narrows a content read. Zero values mean "any".
type Filter struct {
	Platform    connectiondomain.Platform
	ContentType ContentType
	ResourceID  string
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}
