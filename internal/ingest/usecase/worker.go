package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	connrepo "pulse-backend/internal/connection/repository"
	contentdomain "pulse-backend/internal/content/domain"
	contentrepo "pulse-backend/internal/content/repository"
	contentusecase "pulse-backend/internal/content/usecase"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/internal/platform"
	"pulse-backend/internal/ingest/repository"
	"pulse-backend/pkg/events"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// SyncCompletedEvent is published after every attempt that was not skipped.
type SyncCompletedEvent struct {
	UserID         string                    `json:"user_id"`
	Platform       connectiondomain.Platform `json:"platform"`
	Trigger        domain.Trigger            `json:"trigger"`
	Outcome        domain.OutcomeKind        `json:"outcome"`
	ItemsFetched   int                       `json:"items_fetched"`
	ItemsAdded     int                       `json:"items_added"`
	ResourceErrors int                       `json:"resource_errors"`
	Error          string                    `json:"error,omitempty"`
	FinishedAt     time.Time                 `json:"finished_at"`
}

// WorkerDeps wires a SyncWorker. Index, Publisher and Alerter are optional.
type WorkerDeps struct {
	Connections connrepo.ConnectionRepository
	Credentials ConnectionService
	Registry    repository.RegistryRepository
	Activity    repository.ActivityRepository
	Content     contentrepo.ContentRepository
	TTL         *contentusecase.TTLPolicy
	Adapters    platform.Registry
	Locker      Locker
	Index       contentusecase.SemanticIndex
	Publisher   EventPublisher
	Alerter     AuthAlerter
	Now         func() time.Time
}

type syncWorker struct {
	WorkerDeps
}

func NewSyncWorker(deps WorkerDeps) SyncWorker {
	if deps.Locker == nil {
		deps.Locker = NewMemoryLocker()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &syncWorker{WorkerDeps: deps}
}

func (w *syncWorker) Sync(ctx context.Context, pair domain.Pair, trigger domain.Trigger) *domain.Outcome {
	outcome := &domain.Outcome{Pair: pair, Trigger: trigger, StartedAt: w.Now()}

	unlock, ok, err := w.Locker.TryLock(ctx, pair.Key())
	if err != nil {
		outcome.Kind = domain.OutcomeFailure
		outcome.Err = fmt.Errorf("acquire sync lock: %w", err)
		w.finish(ctx, outcome, nil)
		return outcome
	}
	if !ok {
		outcome.Kind = domain.OutcomeSkipped
		outcome.FinishedAt = w.Now()
		log.WithFields(log.Fields{"pair": pair.Key(), "trigger": trigger}).Debug("[SyncWorker] Sync already in progress, skipping")
		return outcome
	}
	defer unlock()

	added := w.run(ctx, outcome)
	w.finish(ctx, outcome, added)
	return outcome
}

// run performs the attempt and fills outcome. It returns the rows it inserted.
func (w *syncWorker) run(ctx context.Context, outcome *domain.Outcome) []contentdomain.ContentItem {
	pair := outcome.Pair

	conn, err := w.Connections.FindByUserAndPlatform(ctx, pair.UserID, pair.Platform)
	if err != nil {
		outcome.Kind = domain.OutcomeFailure
		outcome.Err = fmt.Errorf("load connection: %w", err)
		return nil
	}
	if conn == nil || conn.Status == connectiondomain.StatusDisconnected {
		outcome.Kind = domain.OutcomeFailure
		outcome.Err = connectiondomain.ErrNotConnected
		return nil
	}

	adapter, err := w.Adapters.Get(pair.Platform)
	if err != nil {
		outcome.Kind = domain.OutcomeFailure
		outcome.Err = err
		return nil
	}

	entries, err := w.Registry.ListByPair(ctx, pair)
	if err != nil {
		outcome.Kind = domain.OutcomeFailure
		outcome.Err = fmt.Errorf("load sync registry: %w", err)
		return nil
	}
	byResource := make(map[string]*domain.RegistryEntry, len(entries))
	for i := range entries {
		byResource[entries[i].ResourceID] = &entries[i]
	}

	result, err := adapter.Fetch(ctx, platform.FetchRequest{
		Connection:  conn,
		Entries:     byResource,
		Credentials: w.Credentials,
	})
	// Writes below must land even if shutdown cancels ctx, otherwise stored
	// items and their cursors could disagree.
	writeCtx := context.WithoutCancel(ctx)
	if err != nil {
		outcome.Err = err
		if connectiondomain.IsAuthError(err) {
			outcome.Kind = domain.OutcomeAuthFailure
			w.markAuthFailure(writeCtx, conn, err)
		} else {
			outcome.Kind = domain.OutcomeFailure
		}
		return nil
	}

	outcome.ItemsFetched = len(result.Items)
	added, addedPerResource, failedWrites := w.store(writeCtx, conn, result, outcome)

	names := make(map[string]string, len(result.Resources))
	for _, res := range result.Resources {
		names[res.ID] = res.Name
	}

	resourceErrors := append([]*domain.ResourceError(nil), result.Errors...)
	for resourceID, writeErr := range failedWrites {
		resourceErrors = append(resourceErrors, &domain.ResourceError{Platform: pair.Platform, ResourceID: resourceID, Err: writeErr})
	}

	at := w.Now()
	for resourceID, cursor := range result.Cursors {
		if _, failed := failedWrites[resourceID]; failed || result.Failed(resourceID) {
			continue
		}
		err := w.Registry.Advance(writeCtx, repository.Advance{
			ConnectionID: conn.ID,
			Pair:         pair,
			ResourceID:   resourceID,
			ResourceName: names[resourceID],
			Cursor:       cursor,
			ItemsAdded:   addedPerResource[resourceID],
			At:           at,
		})
		switch {
		case errors.Is(err, domain.ErrStaleCursor):
			log.WithFields(log.Fields{"pair": pair.Key(), "resource": resourceID}).Info("[SyncWorker] Stored cursor is ahead, keeping it")
		case errors.Is(err, domain.ErrConnectionGone):
			log.WithFields(log.Fields{"pair": pair.Key(), "resource": resourceID}).Info("[SyncWorker] Connection was disconnected mid-sync, dropping cursor")
		case err != nil:
			resourceErrors = append(resourceErrors, &domain.ResourceError{
				Platform:   pair.Platform,
				ResourceID: resourceID,
				Err:        fmt.Errorf("advance cursor: %w", err),
			})
		}
	}

	for _, resErr := range resourceErrors {
		if err := w.Registry.RecordFailure(writeCtx, pair, resErr.ResourceID, resErr.Err.Error()); err != nil {
			log.WithError(err).WithField("resource", resErr.ResourceID).Warn("[SyncWorker] Failed to record resource error")
		}
	}
	sort.Slice(resourceErrors, func(i, j int) bool { return resourceErrors[i].ResourceID < resourceErrors[j].ResourceID })
	outcome.ResourceErrors = resourceErrors
	classify(outcome, len(result.Resources))

	if outcome.Synced() {
		if err := w.Connections.MarkSynced(writeCtx, conn.ID, w.Now(), outcome.ErrorText()); err != nil {
			log.WithError(err).WithField("pair", pair.Key()).Warn("[SyncWorker] Failed to update last_synced_at")
		}
	}
	return added
}

// store upserts fetched items. A resource whose write fails stops storing
// further items so that its cursor is not advanced past unsaved content.
func (w *syncWorker) store(ctx context.Context, conn *connectiondomain.PlatformConnection, result *platform.FetchResult, outcome *domain.Outcome) ([]contentdomain.ContentItem, map[string]int, map[string]error) {
	var added []contentdomain.ContentItem
	addedPerResource := make(map[string]int)
	failedWrites := make(map[string]error)
	now := w.Now()

	for i := range result.Items {
		item := &result.Items[i]
		if _, failed := failedWrites[item.ResourceID]; failed {
			continue
		}
		row := w.contentItem(conn, item, now)
		inserted, err := w.Content.Upsert(ctx, row)
		if err != nil {
			failedWrites[item.ResourceID] = fmt.Errorf("store item %s: %w", item.ItemID, err)
			continue
		}
		if inserted {
			outcome.ItemsAdded++
			addedPerResource[item.ResourceID]++
			added = append(added, *row)
		} else {
			outcome.ItemsUnchanged++
		}
	}
	return added, addedPerResource, failedWrites
}

func (w *syncWorker) contentItem(conn *connectiondomain.PlatformConnection, item *domain.NormalizedItem, now time.Time) *contentdomain.ContentItem {
	row := &contentdomain.ContentItem{
		UserID:          conn.UserID,
		Platform:        conn.Platform,
		ResourceID:      item.ResourceID,
		ResourceName:    item.ResourceName,
		ItemID:          item.ItemID,
		ContentHash:     contentHash(item),
		ContentType:     item.ContentType,
		Author:          item.Author,
		Title:           item.Title,
		Text:            item.Text,
		SourceTimestamp: item.Timestamp,
	}
	if len(item.Metadata) > 0 {
		row.Metadata = datatypes.JSONMap(item.Metadata)
	}
	if w.TTL != nil {
		row.ExpiresAt = w.TTL.ExpiresAt(conn.Platform, item.ContentType, now)
	}
	return row
}

// classify derives the outcome kind from the resource errors of a fetch that did not abort.
func classify(outcome *domain.Outcome, attempted int) {
	if len(outcome.ResourceErrors) == 0 {
		outcome.Kind = domain.OutcomeSuccess
		return
	}
	failed := make(map[string]struct{}, len(outcome.ResourceErrors))
	for _, resErr := range outcome.ResourceErrors {
		failed[resErr.ResourceID] = struct{}{}
	}
	if len(failed) >= attempted {
		outcome.Kind = domain.OutcomeFailure
		outcome.Err = fmt.Errorf("all %d resources failed: %w", len(failed), outcome.ResourceErrors[0])
		return
	}
	outcome.Kind = domain.OutcomePartialFailure
}

func (w *syncWorker) markAuthFailure(ctx context.Context, conn *connectiondomain.PlatformConnection, err error) {
	reason := err.Error()
	var authErr *connectiondomain.AuthError
	if errors.As(err, &authErr) {
		reason = authErr.Reason
	}
	if markErr := w.Credentials.MarkConnectionStatus(ctx, conn.ID, connectiondomain.StatusError, reason); markErr != nil {
		log.WithError(markErr).WithField("connection", conn.ID).Warn("[SyncWorker] Failed to flag connection")
	}
	if w.Alerter != nil {
		w.Alerter.NotifyAuthFailure(ctx, conn, reason)
	}
}

func (w *syncWorker) finish(ctx context.Context, outcome *domain.Outcome, added []contentdomain.ContentItem) {
	outcome.FinishedAt = w.Now()
	ctx = context.WithoutCancel(ctx)

	if err := w.Activity.Append(ctx, domain.NewActivity(outcome)); err != nil {
		log.WithError(err).WithField("pair", outcome.Pair.Key()).Warn("[SyncWorker] Failed to append sync activity")
	}

	if w.Index != nil && len(added) > 0 {
		if err := w.Index.Upsert(ctx, added); err != nil {
			log.WithError(err).WithField("pair", outcome.Pair.Key()).Warn("[SyncWorker] Failed to index new content")
		}
	}

	if w.Publisher != nil {
		event := SyncCompletedEvent{
			UserID:         outcome.Pair.UserID,
			Platform:       outcome.Pair.Platform,
			Trigger:        outcome.Trigger,
			Outcome:        outcome.Kind,
			ItemsFetched:   outcome.ItemsFetched,
			ItemsAdded:     outcome.ItemsAdded,
			ResourceErrors: len(outcome.ResourceErrors),
			Error:          outcome.ErrorText(),
			FinishedAt:     outcome.FinishedAt,
		}
		if err := w.Publisher.Publish(ctx, events.RoutingKeySyncCompleted, event); err != nil {
			log.WithError(err).Warn("[SyncWorker] Failed to publish sync event")
		}
	}

	entry := log.WithFields(log.Fields{
		"pair":     outcome.Pair.Key(),
		"trigger":  outcome.Trigger,
		"outcome":  outcome.Kind,
		"fetched":  outcome.ItemsFetched,
		"added":    outcome.ItemsAdded,
		"duration": outcome.FinishedAt.Sub(outcome.StartedAt).String(),
	})
	switch outcome.Kind {
	case domain.OutcomeSuccess:
		entry.Info("[SyncWorker] Sync finished")
	case domain.OutcomePartialFailure:
		entry.WithField("resource_errors", len(outcome.ResourceErrors)).Warn("[SyncWorker] Sync finished with resource errors")
	default:
		entry.WithError(outcome.Err).Error("[SyncWorker] Sync failed")
	}
}
