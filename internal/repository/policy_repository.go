package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/models"
	appErrors "github.com/noah-isme/sma-originality-api/pkg/errors"
)

// PolicyRepository reads the per-module verification policy. The host writes
// this table through its settings save hook; this service never mutates it.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Get loads the policy for one (course, module) pair.
func (r *PolicyRepository) Get(ctx context.Context, courseID, cmID int64) (*models.CourseModulePolicy, error) {
	const query = `SELECT courseid, cmid, mode, check_text, check_file, add_to_index, notice_mode,
       student_limit, work_type, excluded_sections, checker_role, action_logging
	FROM module_policies WHERE courseid = $1 AND cmid = $2`
	var policy models.CourseModulePolicy
	if err := r.db.GetContext(ctx, &policy, query, courseID, cmID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no verification policy for module")
		}
		return nil, fmt.Errorf("get module policy: %w", err)
	}
	return &policy, nil
}

type policyCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedPolicyRepository fronts PolicyRepository with the redis cache. Policy
// is read on almost every transition, so a short TTL keeps sweeps off the
// database without holding stale settings for long.
type CachedPolicyRepository struct {
	inner  *PolicyRepository
	cache  policyCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedPolicyRepository wraps the repository with a TTL cache.
func NewCachedPolicyRepository(inner *PolicyRepository, cache policyCache, ttl time.Duration, logger *zap.Logger) *CachedPolicyRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedPolicyRepository{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

// Get returns the cached policy, falling back to the database on a miss.
func (r *CachedPolicyRepository) Get(ctx context.Context, courseID, cmID int64) (*models.CourseModulePolicy, error) {
	key := fmt.Sprintf("policy:%d:%d", courseID, cmID)
	if r.cache != nil {
		var cached models.CourseModulePolicy
		if err := r.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			r.logger.Warn("policy cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	policy, err := r.inner.Get(ctx, courseID, cmID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, policy, r.ttl); err != nil {
			r.logger.Warn("policy cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return policy, nil
}
