package platform

import (
	"context"
	"sort"
	"sync"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ResourceResult is what one resource fetch produced. A nil Cursor leaves the stored one in place.
type ResourceResult struct {
	Items  []domain.NormalizedItem
	Cursor *domain.Cursor
}

// ResourceFetch pages through one resource starting after cursor (nil on first sync).
type ResourceFetch func(call *Call, res connectiondomain.Resource, cursor *domain.Cursor) (*ResourceResult, error)

// Call scopes one resource fetch. Ctx carries the per-call timeout and survives
// shutdown so an in-flight page completes; fetchers check Stopping between pages.
type Call struct {
	Ctx      context.Context
	shutdown context.Context
	opts     Options
	limiter  *rate.Limiter
}

func (c *Call) Stopping() bool {
	return c.shutdown.Err() != nil
}

// Do paces and retries a single platform request.
func (c *Call) Do(op func(ctx context.Context) error) error {
	return c.opts.Retry(c.Ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return op(ctx)
	})
}

// NextPage returns ErrInterrupted once shutdown began so the caller keeps its old cursor.
func (c *Call) NextPage() error {
	if c.Stopping() {
		return ErrInterrupted
	}
	return nil
}

// Resources returns the connection's selected resources, or defaults when none are selected.
func Resources(conn *connectiondomain.PlatformConnection, defaults ...connectiondomain.Resource) []connectiondomain.Resource {
	if selected := conn.SelectedResources(); len(selected) > 0 {
		return selected
	}
	return defaults
}

// FanOut fetches every resource concurrently. Resource failures are collected;
// an AuthError from any resource aborts the whole call.
func FanOut(ctx context.Context, platform connectiondomain.Platform, req FetchRequest, resources []connectiondomain.Resource, opts Options, fetch ResourceFetch) (*FetchResult, error) {
	result := &FetchResult{
		Cursors:   make(map[string]domain.Cursor),
		Resources: resources,
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, res := range resources {
		g.Go(func() error {
			var (
				rr  *ResourceResult
				err error
			)
			if gctx.Err() != nil {
				err = ErrInterrupted
			} else {
				callCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), opts.CallTimeout)
				defer cancel()
				call := &Call{Ctx: callCtx, shutdown: gctx, opts: opts, limiter: limiter}
				rr, err = fetch(call, res, req.Cursor(res.ID))
			}
			if connectiondomain.IsAuthError(err) {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if rr != nil {
				for _, item := range rr.Items {
					if item.ResourceID == "" {
						item.ResourceID = res.ID
					}
					if item.ResourceName == "" {
						item.ResourceName = res.Name
					}
					result.Items = append(result.Items, item)
				}
			}
			if err != nil {
				result.Errors = append(result.Errors, &domain.ResourceError{Platform: platform, ResourceID: res.ID, Err: err})
				return nil
			}
			if rr != nil && rr.Cursor != nil {
				result.Cursors[res.ID] = *rr.Cursor
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].ResourceID < result.Errors[j].ResourceID })
	return result, nil
}
