package domain

import (
	"fmt"
	"time"
)

// OutcomeKind tags a sync result. It is never collapsed into a boolean.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomePartialFailure OutcomeKind = "partial_failure"
	OutcomeAuthFailure    OutcomeKind = "auth_failure"
	OutcomeFailure        OutcomeKind = "failure"
	OutcomeSkipped        OutcomeKind = "skipped"
)

type Outcome struct {
	Kind           OutcomeKind      `json:"kind"`
	Pair           Pair             `json:"pair"`
	Trigger        Trigger          `json:"trigger"`
	ItemsFetched   int              `json:"items_fetched"`
	ItemsAdded     int              `json:"items_added"`
	ItemsUnchanged int              `json:"items_unchanged"`
	ResourceErrors []*ResourceError `json:"resource_errors,omitempty"`
	Err            error            `json:"-"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// Synced reports whether the attempt counts toward last_synced_at.
func (o *Outcome) Synced() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomePartialFailure
}

func (o *Outcome) ErrorText() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if len(o.ResourceErrors) > 0 {
		return fmt.Sprintf("%d resource(s) failed: %v", len(o.ResourceErrors), o.ResourceErrors[0])
	}
	return ""
}

func (o *Outcome) String() string {
	switch o.Kind {
	case OutcomeSkipped:
		return fmt.Sprintf("%s skipped", o.Pair)
	case OutcomeSuccess:
		return fmt.Sprintf("%s success: %d fetched, %d added", o.Pair, o.ItemsFetched, o.ItemsAdded)
	default:
		return fmt.Sprintf("%s %s: %s", o.Pair, o.Kind, o.ErrorText())
	}
}
