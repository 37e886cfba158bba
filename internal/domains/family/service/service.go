package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/family/repository"
	"familytree-backend/internal/domains/permission"
	"familytree-backend/pkg/cache"
	"familytree-backend/pkg/metrics"
)

// Config - giới hạn của service, lấy từ internal/config
type Config struct {
	MaxBatchOperations int
	ReadCacheTTL       time.Duration
	GroupListLimit     int
}

// DefaultConfig dùng trong test và khi env không set
func DefaultConfig() Config {
	return Config{
		MaxBatchOperations: 50,
		ReadCacheTTL:       10 * time.Minute,
		GroupListLimit:     50,
	}
}

// FamilyService - Implements ServiceInterface
type FamilyService struct {
	store    repository.Store
	resolver *permission.Resolver
	cache    cache.Cache
	events   EventPublisher
	cfg      Config
	now      func() time.Time
}

// NewService - Constructor with DI. cache và events có thể nil.
func NewService(
	store repository.Store,
	resolver *permission.Resolver,
	cache cache.Cache,
	events EventPublisher,
	cfg Config,
) *FamilyService {
	if events == nil {
		events = noopPublisher{}
	}
	if cfg.MaxBatchOperations <= 0 {
		cfg.MaxBatchOperations = DefaultConfig().MaxBatchOperations
	}
	if cfg.GroupListLimit <= 0 {
		cfg.GroupListLimit = DefaultConfig().GroupListLimit
	}
	return &FamilyService{
		store:    store,
		resolver: resolver,
		cache:    cache,
		events:   events,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Compile-time check
var _ ServiceInterface = (*FamilyService)(nil)

// ========================================
// CACHE KEYS
// ========================================

func personCacheKey(id uuid.UUID) string    { return "family:person:" + id.String() }
func aggregateCacheKey(id uuid.UUID) string { return "family:aggregate:" + id.String() }

// ========================================
// READ SIDE
// ========================================

// GetPerson - cache-aside, miss thì đọc store
func (s *FamilyService) GetPerson(ctx context.Context, id uuid.UUID) (*model.Person, error) {
	key := personCacheKey(id)
	var cached model.Person
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	p, err := s.store.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, p)
	return p, nil
}

// GetAggregate trả về parent + các con còn sống
func (s *FamilyService) GetAggregate(ctx context.Context, parentID uuid.UUID) (*model.Aggregate, error) {
	key := aggregateCacheKey(parentID)
	var cached model.Aggregate
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	parent, err := s.store.GetPerson(ctx, parentID)
	if err != nil {
		return nil, err
	}
	children, err := s.store.ListChildren(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}

	agg := &model.Aggregate{Parent: *parent, Children: children}
	s.cacheSet(ctx, key, agg)
	return agg, nil
}

// ResolvePermission - cho client hỏi quyền của actor trên target
func (s *FamilyService) ResolvePermission(ctx context.Context, actorID, targetID uuid.UUID) (permission.Level, error) {
	if _, err := s.store.GetPerson(ctx, targetID); err != nil {
		return permission.LevelNone, err
	}
	return s.resolver.Resolve(ctx, s.store, actorID, targetID)
}

// InvalidateCache xóa person và aggregate cache của từng id
func (s *FamilyService) InvalidateCache(ctx context.Context, ids ...uuid.UUID) error {
	if s.cache == nil || len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids)*2)
	for _, id := range ids {
		keys = append(keys, personCacheKey(id), aggregateCacheKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

// cacheGet: lỗi cache không làm fail request, coi như miss
func (s *FamilyService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	found, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		return false
	}
	if found {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}
	return found
}

func (s *FamilyService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.ReadCacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// afterCommit: invalidate cache đồng bộ (read-your-writes) rồi đẩy event cho worker
func (s *FamilyService) afterCommit(ctx context.Context, event groupEvent) {
	ids := append([]uuid.UUID{event.payload.ParentID}, event.payload.TouchedIDs...)
	if err := s.InvalidateCache(ctx, ids...); err != nil {
		log.Warn().Err(err).Str("group_id", event.payload.GroupID.String()).Msg("cache invalidation failed")
	}
	if err := s.events.PublishGroupCommitted(ctx, event.payload); err != nil {
		log.Warn().Err(err).Str("group_id", event.payload.GroupID.String()).Msg("publish group committed failed")
	}
}

// outcome là label metrics ổn định cho một error
func outcome(err error) string {
	var verr *model.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, model.ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, model.ErrResourceBusy):
		return "resource_busy"
	case errors.As(err, &verr), errors.Is(err, model.ErrValidation):
		return "validation_error"
	case errors.Is(err, model.ErrAlreadyUndone):
		return "already_undone"
	case errors.Is(err, model.ErrBatchTooLarge):
		return "batch_too_large"
	case errors.Is(err, model.ErrPersonNotFound), errors.Is(err, model.ErrGroupNotFound):
		return "not_found"
	}
	return "error"
}
