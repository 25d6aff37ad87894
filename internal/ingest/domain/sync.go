package domain

import (
	"errors"
	"fmt"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	contentdomain "pulse-backend/internal/content/domain"
)

// ErrStaleCursor is returned when the stored cursor is already ahead of the one being written.
var ErrStaleCursor = errors.New("stored cursor is newer")

// ErrConnectionGone is returned when a cursor is written for a connection that
// was disconnected or removed while its fetch was running.
var ErrConnectionGone = errors.New("connection is no longer connected")

// Pair is the unit of scheduling and locking.
type Pair struct {
	UserID   string                    `json:"user_id"`
	Platform connectiondomain.Platform `json:"platform"`
}

func (p Pair) Key() string {
	return p.UserID + "/" + string(p.Platform)
}

func (p Pair) String() string {
	return p.Key()
}

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerPush      Trigger = "push"
)

// Cursor is an opaque platform position. Position is a comparable high-water
// mark; a write with a lower Position than the stored one is rejected.
type Cursor struct {
	Token    string `json:"token"`
	Position int64  `json:"position"`
}

// NormalizedItem is the single shape every adapter produces.
type NormalizedItem struct {
	ItemID       string
	ResourceID   string
	ResourceName string
	ContentType  contentdomain.ContentType
	Author       string
	Title        string
	Text         string
	Timestamp    time.Time
	Metadata     map[string]any
}

// ResourceError is a failure isolated to one resource of a sync.
type ResourceError struct {
	Platform   connectiondomain.Platform `json:"platform"`
	ResourceID string                    `json:"resource_id"`
	Err        error                     `json:"-"`
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s resource %s: %v", e.Platform, e.ResourceID, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// MarshalText keeps the cause when errors are rendered into JSON responses.
func (e *ResourceError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}
