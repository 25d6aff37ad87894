package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	connectionrepo "pulse-backend/internal/connection/repository"
	"pulse-backend/internal/content/domain"
	"pulse-backend/internal/content/dto"
	"pulse-backend/internal/content/repository"
	"pulse-backend/pkg/fuzzy"

	log "github.com/sirupsen/logrus"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
	// Free-text queries rank the newest candidates in memory.
	textCandidateWindow = 2000
)

type contentReader struct {
	repo     repository.ContentRepository
	connRepo connectionrepo.ConnectionRepository
	index    SemanticIndex
	now      func() time.Time
}

// NewContentReader builds the consumer read path. index may be nil, in which case
// semantic queries fall back to fuzzy text matching.
func NewContentReader(repo repository.ContentRepository, connRepo connectionrepo.ConnectionRepository, index SemanticIndex) ContentReader {
	return &contentReader{
		repo:     repo,
		connRepo: connRepo,
		index:    index,
		now:      time.Now,
	}
}

func (r *contentReader) Query(ctx context.Context, userID string, query *dto.Query) ([]domain.ContentItem, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidQuery)
	}
	if query == nil {
		query = &dto.Query{}
	}
	if query.ContentType != "" && !query.ContentType.Valid() {
		return nil, fmt.Errorf("%w: unknown content type %q", domain.ErrInvalidQuery, query.ContentType)
	}
	if query.Since != nil && query.Until != nil && !query.Since.Before(*query.Until) {
		return nil, fmt.Errorf("%w: since must be before until", domain.ErrInvalidQuery)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	offset := max(query.Offset, 0)

	filter := domain.Filter{
		Platform:    query.Platform,
		ContentType: query.ContentType,
		ResourceID:  query.ResourceID,
		Since:       query.Since,
		Until:       query.Until,
	}

	text := strings.TrimSpace(query.Text)
	if text == "" {
		filter.Limit = limit
		filter.Offset = offset
		return r.repo.Find(ctx, userID, filter)
	}

	if query.Semantic && r.index != nil {
		items, err := r.semanticQuery(ctx, userID, text, filter, limit+offset)
		if err == nil {
			return page(items, limit, offset), nil
		}
		log.WithError(err).WithField("user_id", userID).Warn("[ContentReader] Semantic search failed, falling back to text match")
	}

	filter.Limit = textCandidateWindow
	candidates, err := r.repo.Find(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	return page(rankByText(text, candidates), limit, offset), nil
}

func (r *contentReader) semanticQuery(ctx context.Context, userID, text string, filter domain.Filter, want int) ([]domain.ContentItem, error) {
	// Over-fetch since structural filters are applied after the vector search.
	ids, err := r.index.Search(ctx, userID, text, want*3)
	if err != nil {
		return nil, err
	}
	items, err := r.repo.FindByIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	rank := make(map[string]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	matched := items[:0]
	for _, item := range items {
		if matchesFilter(&item, filter) {
			matched = append(matched, item)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return rank[matched[i].ID] < rank[matched[j].ID] })
	return matched, nil
}

func rankByText(text string, candidates []domain.ContentItem) []domain.ContentItem {
	type scored struct {
		item  domain.ContentItem
		score float64
	}
	var hits []scored
	for _, item := range candidates {
		score := fuzzy.RelevanceScore(text, item.Title, item.Author, item.Text)
		if score <= 0 && !fuzzy.MatchAny(text, item.Title, item.Author, item.Text) {
			continue
		}
		hits = append(hits, scored{item: item, score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]domain.ContentItem, len(hits))
	for i, hit := range hits {
		out[i] = hit.item
	}
	return out
}

func matchesFilter(item *domain.ContentItem, filter domain.Filter) bool {
	if filter.Platform != "" && item.Platform != filter.Platform {
		return false
	}
	if filter.ContentType != "" && item.ContentType != filter.ContentType {
		return false
	}
	if filter.ResourceID != "" && item.ResourceID != filter.ResourceID {
		return false
	}
	if filter.Since != nil && item.SourceTimestamp.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && !item.SourceTimestamp.Before(*filter.Until) {
		return false
	}
	return true
}

func page(items []domain.ContentItem, limit, offset int) []domain.ContentItem {
	if offset >= len(items) {
		return []domain.ContentItem{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (r *contentReader) MarkRetained(ctx context.Context, ref domain.ItemRef) error {
	item, err := r.repo.FindByID(ctx, ref.ContentID)
	if err != nil {
		return err
	}
	// Another user's item is reported as missing rather than forbidden.
	if item == nil || item.UserID != ref.UserID {
		return domain.ErrItemNotFound
	}
	if item.Retained {
		return nil
	}
	return r.repo.MarkRetained(ctx, ref.ContentID)
}

func (r *contentReader) IsFreshSince(ctx context.Context, userID string, platform connectiondomain.Platform, within time.Duration) (bool, error) {
	conn, err := r.connRepo.FindByUserAndPlatform(ctx, userID, platform)
	if err != nil {
		return false, err
	}
	if conn == nil || conn.Status == connectiondomain.StatusDisconnected || conn.LastSyncedAt == nil {
		return false, nil
	}
	return r.now().Sub(*conn.LastSyncedAt) <= within, nil
}
