package domain

import (
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
)

// RegistryEntry is the sync state of one resource.
type RegistryEntry struct {
	ID             string                               `json:"id" gorm:"primaryKey"`
	ConnectionID   string                               `json:"connection_id" gorm:"index;not null"`
	Connection     *connectiondomain.PlatformConnection `json:"-" gorm:"foreignKey:ConnectionID;constraint:OnDelete:CASCADE"`
	UserID         string                               `json:"user_id" gorm:"uniqueIndex:idx_registry_resource,priority:1;not null"`
	Platform       connectiondomain.Platform            `json:"platform" gorm:"uniqueIndex:idx_registry_resource,priority:2;not null"`
	ResourceID     string                               `json:"resource_id" gorm:"uniqueIndex:idx_registry_resource,priority:3;not null"`
	ResourceName   string                               `json:"resource_name,omitempty"`
	Cursor         string                               `json:"cursor"`
	CursorPosition int64                                `json:"cursor_position" gorm:"not null;default:0"`
	ItemCount      int64                                `json:"item_count" gorm:"not null;default:0"`
	LastSyncedAt   *time.Time                           `json:"last_synced_at"`
	LastError      string                               `json:"last_error,omitempty"`
	CreatedAt      time.Time                            `json:"created_at"`
	UpdatedAt      time.Time                            `json:"updated_at"`
}

func (RegistryEntry) TableName() string {
	return "sync_registry"
}

func (e *RegistryEntry) CurrentCursor() *Cursor {
	if e == nil || (e.Cursor == "" && e.CursorPosition == 0) {
		return nil
	}
	return &Cursor{Token: e.Cursor, Position: e.CursorPosition}
}

// SyncActivity is the audit row appended after every attempt.
type SyncActivity struct {
	ID             string                    `json:"id" gorm:"primaryKey"`
	UserID         string                    `json:"user_id" gorm:"index:idx_activity_user_time,priority:1;not null"`
	Platform       connectiondomain.Platform `json:"platform" gorm:"not null"`
	Trigger        Trigger                   `json:"trigger"`
	Outcome        OutcomeKind               `json:"outcome" gorm:"index"`
	ItemsFetched   int                       `json:"items_fetched"`
	ItemsAdded     int                       `json:"items_added"`
	ItemsUnchanged int                       `json:"items_unchanged"`
	ResourceErrors int                       `json:"resource_errors"`
	Error          string                    `json:"error,omitempty" gorm:"type:text"`
	StartedAt      time.Time                 `json:"started_at" gorm:"index:idx_activity_user_time,priority:2"`
	FinishedAt     time.Time                 `json:"finished_at"`
}

func (SyncActivity) TableName() string {
	return "sync_activities"
}

func NewActivity(o *Outcome) *SyncActivity {
	return &SyncActivity{
		UserID:         o.Pair.UserID,
		Platform:       o.Pair.Platform,
		Trigger:        o.Trigger,
		Outcome:        o.Kind,
		ItemsFetched:   o.ItemsFetched,
		ItemsAdded:     o.ItemsAdded,
		ItemsUnchanged: o.ItemsUnchanged,
		ResourceErrors: len(o.ResourceErrors),
		Error:          o.ErrorText(),
		StartedAt:      o.StartedAt,
		FinishedAt:     o.FinishedAt,
	}
}
