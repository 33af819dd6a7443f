// internal/services/analytics_service.go
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
	"github.com/javajoker/creatorshield-backend/internal/cache"
	"github.com/javajoker/creatorshield-backend/internal/models"
)

const (
	breakdownCacheKey = "analytics:claims:breakdown"
	payoutCacheKey    = "analytics:claims:avg_payout"
)

type AnalyticsService struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

type StatusCount struct {
	Status models.ClaimStatus `json:"status"`
	Count  int64              `json:"count"`
}

type ClaimAnalytics struct {
	StatusBreakdown []StatusCount `json:"status_breakdown"`
	AveragePayout   float64       `json:"average_payout"`
	TotalClaims     int64         `json:"total_claims"`
}

// NewAnalyticsService accepts a nil cache.
func NewAnalyticsService(db *gorm.DB, c *cache.RedisCache) *AnalyticsService {
	return &AnalyticsService{db: db, cache: c}
}

// ClaimStatusBreakdown counts claims by current status.
func (s *AnalyticsService) ClaimStatusBreakdown(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	if s.cache.Get(ctx, breakdownCacheKey, &counts) {
		return counts, nil
	}

	err := s.db.WithContext(ctx).Model(&models.Claim{}).
		Select(currentStatusSQL + " AS status, COUNT(*) AS count").
		Group("status").
		Order("status ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, apperr.Persistence("failed to compute claim breakdown", err)
	}

	s.cache.Set(ctx, breakdownCacheKey, counts)
	return counts, nil
}

// AveragePayout averages payouts of approved or paid claims with a valid
// manual review. It is 0 when there are none.
func (s *AnalyticsService) AveragePayout(ctx context.Context) (float64, error) {
	var avg float64
	if s.cache.Get(ctx, payoutCacheKey, &avg) {
		return avg, nil
	}

	var result struct {
		Average *float64
	}
	err := s.db.WithContext(ctx).Model(&models.Claim{}).
		Select("AVG(eval_payout_amount) AS average").
		Where(currentStatusSQL+" IN ?", []models.ClaimStatus{models.ClaimStatusApproved, models.ClaimStatusPaid}).
		Where("eval_manual_is_valid = ?", true).
		Scan(&result).Error
	if err != nil {
		return 0, apperr.Persistence("failed to compute average payout", err)
	}
	if result.Average != nil {
		avg = models.RoundMoney(*result.Average)
	}

	s.cache.Set(ctx, payoutCacheKey, avg)
	return avg, nil
}

// InvalidateClaimAnalytics drops the cached breakdown and payout average.
func (s *AnalyticsService) InvalidateClaimAnalytics(ctx context.Context) {
	s.cache.Invalidate(ctx, breakdownCacheKey, payoutCacheKey)
}

func (s *AnalyticsService) ClaimAnalytics(ctx context.Context, actor models.Actor) (*ClaimAnalytics, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	breakdown, err := s.ClaimStatusBreakdown(ctx)
	if err != nil {
		return nil, err
	}
	avg, err := s.AveragePayout(ctx)
	if err != nil {
		return nil, err
	}

	result := &ClaimAnalytics{StatusBreakdown: breakdown, AveragePayout: avg}
	for _, c := range breakdown {
		result.TotalClaims += c.Count
	}
	return result, nil
}
