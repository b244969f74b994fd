package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meal_voucher/internal/domain/subscription/model"
	"meal_voucher/pkg/cache"
	"meal_voucher/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 套餐目录只读，缓存键常量
const (
	PlanCacheKeyPrefix        = "plan:"
	ActivePlansCacheKeyPrefix = "plans:active:"
	PlanCacheTTL              = 10 * time.Minute
	ActivePlansCacheTTL       = time.Minute
)

// cachedPlanRepository 套餐查询走缓存，订阅读写直连数据库
type cachedPlanRepository struct {
	SubscriptionRepository
	cache cache.CacheService
}

// NewCachedPlanRepository 包装仓储，缓存不可用时回源
func NewCachedPlanRepository(repo SubscriptionRepository, c cache.CacheService) SubscriptionRepository {
	return &cachedPlanRepository{SubscriptionRepository: repo, cache: c}
}

func (r *cachedPlanRepository) WithTx(tx *gorm.DB) SubscriptionRepository {
	return &cachedPlanRepository{SubscriptionRepository: r.SubscriptionRepository.WithTx(tx), cache: r.cache}
}

func (r *cachedPlanRepository) GetPlan(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	key := PlanCacheKeyPrefix + id

	var plan model.SubscriptionPlan
	err := r.cache.Get(ctx, key, &plan)
	if err == nil {
		return &plan, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Log.Warn("plan cache read failed", zap.String("key", key), zap.Error(err))
	}

	found, err := r.SubscriptionRepository.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, found, PlanCacheTTL)
	return found, nil
}

// ListActivePlans 按分钟分桶，套餐上下架最多延迟一分钟可见
func (r *cachedPlanRepository) ListActivePlans(ctx context.Context, now time.Time) ([]model.SubscriptionPlan, error) {
	bucket := now.UTC().Truncate(time.Minute)
	key := fmt.Sprintf("%s%d", ActivePlansCacheKeyPrefix, bucket.Unix())

	var plans []model.SubscriptionPlan
	err := r.cache.Get(ctx, key, &plans)
	if err == nil {
		return plans, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Log.Warn("plan cache read failed", zap.String("key", key), zap.Error(err))
	}

	plans, err = r.SubscriptionRepository.ListActivePlans(ctx, bucket)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, plans, ActivePlansCacheTTL)
	return plans, nil
}

func (r *cachedPlanRepository) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := r.cache.Set(ctx, key, value, ttl); err != nil {
		logger.Log.Warn("plan cache write failed", zap.String("key", key), zap.Error(err))
	}
}
