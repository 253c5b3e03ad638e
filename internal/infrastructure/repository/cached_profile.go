package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bradfitz/gomemcache/memcache"
	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/domain"
	"github.com/totegamma/concrnt-identity/internal/usecase"
)

const profileCacheTTL = 60 // seconds

// Memcache is the subset of *memcache.Client the profile cache needs.
type Memcache interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
}

// CachedProfileRepository serves GetByUserID from memcached and
// invalidates on writes once they are committed. Reads inside a transaction
// go straight to the database. Cache errors never fail a call.
type CachedProfileRepository struct {
	usecase.ProfileRepository
	mc     Memcache
	logger *zap.Logger
}

func NewCachedProfileRepository(inner usecase.ProfileRepository, mc Memcache, logger *zap.Logger) *CachedProfileRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProfileRepository{
		ProfileRepository: inner,
		mc:                mc,
		logger:            logger.Named("profile-cache"),
	}
}

func profileCacheKey(userID string) string {
	return "profile:user:" + userID
}

func (r *CachedProfileRepository) GetByUserID(ctx context.Context, userID string) (domain.Profile, error) {
	if inTx(ctx) {
		return r.ProfileRepository.GetByUserID(ctx, userID)
	}
	key := profileCacheKey(userID)

	item, err := r.mc.Get(key)
	if err == nil {
		var record profileRecord
		if err := json.Unmarshal(item.Value, &record); err == nil {
			record.Profile.Permissions = domain.NewPermissionSet(record.Permissions...)
			return record.Profile, nil
		}
		r.invalidate(key)
	} else if !errors.Is(err, memcache.ErrCacheMiss) {
		r.logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
	}

	profile, err := r.ProfileRepository.GetByUserID(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}

	if value, err := json.Marshal(cachedProfile(profile)); err == nil {
		if err := r.mc.Set(&memcache.Item{Key: key, Value: value, Expiration: profileCacheTTL}); err != nil {
			r.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return profile, nil
}

func (r *CachedProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	err := r.ProfileRepository.Update(ctx, profile)
	r.invalidateAfterCommit(ctx, profileCacheKey(profile.UserID))
	return err
}

func (r *CachedProfileRepository) DeleteByUserID(ctx context.Context, userID string) error {
	err := r.ProfileRepository.DeleteByUserID(ctx, userID)
	r.invalidateAfterCommit(ctx, profileCacheKey(userID))
	return err
}

func (r *CachedProfileRepository) invalidateAfterCommit(ctx context.Context, key string) {
	afterCommit(ctx, func() { r.invalidate(key) })
}

func (r *CachedProfileRepository) invalidate(key string) {
	if err := r.mc.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		r.logger.Debug("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

// profileRecord carries the permission set, which Profile hides from JSON.
type profileRecord struct {
	domain.Profile
	Permissions []string `json:"permissions"`
}

func cachedProfile(p domain.Profile) profileRecord {
	return profileRecord{Profile: p, Permissions: p.Permissions.Slice()}
}
