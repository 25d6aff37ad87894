package domain

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

type Platform string

const (
	PlatformSlack          Platform = "slack"
	PlatformGmail          Platform = "gmail"
	PlatformIMAP           Platform = "imap"
	PlatformGoogleCalendar Platform = "google_calendar"
	PlatformNotion         Platform = "notion"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformSlack, PlatformGmail, PlatformIMAP, PlatformGoogleCalendar, PlatformNotion:
		return true
	}
	return false
}

type Status string

const (
	StatusActive       Status = "active"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrNotConnected       = errors.New("platform is not connected")
	ErrUnknownPlatform    = errors.New("unknown platform")
)

// Resource is a selectable sub-source of a platform: a channel, label, mailbox, calendar or page set.
type Resource struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Settings struct {
	Resources     []Resource `json:"resources,omitempty"`
	BootstrapDays int        `json:"bootstrap_days,omitempty"`
	IMAPHost      string     `json:"imap_host,omitempty"`
}

// PlatformConnection is one user's authorization to one platform.
type PlatformConnection struct {
	ID                string                       `json:"id" gorm:"primaryKey"`
	UserID            string                       `json:"user_id" gorm:"uniqueIndex:idx_connection_user_platform;not null"`
	Platform          Platform                     `json:"platform" gorm:"uniqueIndex:idx_connection_user_platform;not null"`
	Status            Status                       `json:"status" gorm:"index;not null"`
	SealedCredentials string                       `json:"-" gorm:"type:text"`
	AccountEmail      string                       `json:"account_email,omitempty" gorm:"index"`
	Settings          datatypes.JSONType[Settings] `json:"settings"`
	LastSyncedAt      *time.Time                   `json:"last_synced_at"`
	LastError         string                       `json:"last_error,omitempty"`
	CreatedAt         time.Time                    `json:"created_at"`
	UpdatedAt         time.Time                    `json:"updated_at"`
}

func (PlatformConnection) TableName() string {
	return "connections"
}

// Syncable reports whether the scheduler should consider the connection.
// Connections in error stay syncable so a refreshed token can heal them.
func (c *PlatformConnection) Syncable() bool {
	return c.Status == StatusActive || c.Status == StatusError
}

func (c *PlatformConnection) SelectedResources() []Resource {
	return c.Settings.Data().Resources
}

// Credentials is the plaintext behind SealedCredentials.
type Credentials struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Username     string    `json:"username,omitempty"`
	Password     string    `json:"password,omitempty"`
}

// ExpiresWithin reports whether an expiring token runs out inside d.
// A zero expiry means the token does not expire.
func (c *Credentials) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return c.Expiry.Before(now.Add(d))
}
