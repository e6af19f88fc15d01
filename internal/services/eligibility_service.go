package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/logger"
	"discount-system/internal/models"
	"discount-system/internal/redis"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// eligibilityCache описывает операции кеша, используемые сервисом выборки.
type eligibilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// rowQuerier объединяет *sql.Tx и *database.DB для общего кода выборки.
type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

const eligibleBindingsQuery = `
	SELECT ud.id, ud.user_id, ud.discount_id, ud.usage_count, ud.status,
	       ud.assigned_at, ud.revoked_at, ud.created_at, ud.updated_at,
	       d.id, d.name, d.code, d.description, d.kind, d.value, d.max_amount,
	       d.max_usage_per_user, d.max_total_usage, d.current_usage,
	       d.starts_at, d.expires_at, d.is_active, d.stacking_order, d.conditions,
	       d.created_at, d.updated_at
	FROM user_discounts ud
	JOIN discounts d ON d.id = ud.discount_id
	WHERE ud.user_id = $1
	  AND ud.status = 'assigned'
	  AND d.is_active = true
	  AND (d.starts_at IS NULL OR d.starts_at <= $2)
	  AND (d.expires_at IS NULL OR d.expires_at > $2)
	  AND (d.max_total_usage IS NULL OR d.current_usage < d.max_total_usage)
	  AND ud.usage_count < d.max_usage_per_user
	ORDER BY d.stacking_order ASC, ud.assigned_at ASC, ud.id ASC`

// EligibilityService отвечает на вопрос, какие привязки скидок пользователь
// может применить прямо сейчас. Читающий путь кешируется в Redis; путь внутри
// транзакции применения всегда идет в базу с блокировкой строк.
type EligibilityService struct {
	db           *database.DB
	cache        eligibilityCache
	log          *logger.Logger
	cacheEnabled bool
	cacheTTL     time.Duration
}

// NewEligibilityService создает сервис выборки доступных скидок.
// При nil-клиенте Redis кеширование отключается.
func NewEligibilityService(db *database.DB, redisClient *redis.Client, log *logger.Logger, cfg *config.CacheConfig) *EligibilityService {
	s := &EligibilityService{
		db:  db,
		log: log,
	}
	if redisClient != nil && cfg != nil && cfg.Enabled {
		s.cache = redisClient
		s.cacheEnabled = true
		s.cacheTTL = time.Duration(cfg.TTLMinutes) * time.Minute
	}
	return s
}

// EligibleFor возвращает привязки, пригодные к применению в момент now,
// отсортированные по stacking_order. Результат кешируется; промах кеша
// не считается ошибкой.
func (s *EligibilityService) EligibleFor(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.UserDiscount, error) {
	cacheKey := redis.GenerateKey(redis.KeyPrefixEligible, userID.String())

	if s.cacheEnabled {
		var cached []*models.UserDiscount
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.log.WithField("user_id", userID).Debug("Eligible discounts served from cache")
			return cached, nil
		}
	}

	bindings, err := s.queryEligible(ctx, s.db, userID, now, false)
	if err != nil {
		return nil, err
	}

	if s.cacheEnabled {
		if err := s.cache.Set(ctx, cacheKey, bindings, s.cacheTTL); err != nil {
			s.log.WithError(err).Warn("Failed to cache eligible discounts")
		}
	}

	return bindings, nil
}

// EligibleForUpdate выполняет выборку внутри транзакции применения с
// блокировкой строк привязок и скидок (FOR UPDATE). Кеш не используется:
// решение о применении принимается только по свежему состоянию базы.
func (s *EligibilityService) EligibleForUpdate(ctx context.Context, tx *sql.Tx, userID uuid.UUID, now time.Time) ([]*models.UserDiscount, error) {
	return s.queryEligible(ctx, tx, userID, now, true)
}

// Invalidate сбрасывает кеш выборки для пользователя.
func (s *EligibilityService) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if !s.cacheEnabled {
		return nil
	}
	key := redis.GenerateKey(redis.KeyPrefixEligible, userID.String())
	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate eligibility cache: %w", err)
	}
	return nil
}

// InvalidateAll сбрасывает кеш выборки для всех пользователей. Вызывается
// при изменении самих скидок: правка правила меняет выборку каждого,
// кому оно назначено.
func (s *EligibilityService) InvalidateAll(ctx context.Context) error {
	if !s.cacheEnabled {
		return nil
	}
	if err := s.cache.DeleteByPrefix(ctx, redis.KeyPrefixEligible+":"); err != nil {
		return fmt.Errorf("failed to invalidate eligibility cache: %w", err)
	}
	return nil
}

func (s *EligibilityService) queryEligible(ctx context.Context, q rowQuerier, userID uuid.UUID, now time.Time, forUpdate bool) ([]*models.UserDiscount, error) {
	query := eligibleBindingsQuery
	if forUpdate {
		query += "\n\tFOR UPDATE OF ud, d"
	}

	rows, err := q.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible discounts: %w", err)
	}
	defer rows.Close()

	var bindings []*models.UserDiscount
	for rows.Next() {
		binding, err := scanEligibleRow(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, binding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate eligible discounts: %w", err)
	}

	return bindings, nil
}

func scanEligibleRow(rows *sql.Rows) (*models.UserDiscount, error) {
	var (
		ud            models.UserDiscount
		d             models.Discount
		revokedAt     sql.NullTime
		maxAmount     decimal.NullDecimal
		maxTotalUsage sql.NullInt64
		startsAt      sql.NullTime
		expiresAt     sql.NullTime
	)

	err := rows.Scan(
		&ud.ID, &ud.UserID, &ud.DiscountID, &ud.UsageCount, &ud.Status,
		&ud.AssignedAt, &revokedAt, &ud.CreatedAt, &ud.UpdatedAt,
		&d.ID, &d.Name, &d.Code, &d.Description, &d.Kind, &d.Value, &maxAmount,
		&d.MaxUsagePerUser, &maxTotalUsage, &d.CurrentUsage,
		&startsAt, &expiresAt, &d.IsActive, &d.StackingOrder, &d.Conditions,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan eligible discount: %w", err)
	}

	if revokedAt.Valid {
		ud.RevokedAt = &revokedAt.Time
	}
	d.MaxAmount = maxAmount
	if maxTotalUsage.Valid {
		v := int(maxTotalUsage.Int64)
		d.MaxTotalUsage = &v
	}
	if startsAt.Valid {
		t := startsAt.Time
		d.StartsAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		d.ExpiresAt = &t
	}

	ud.Discount = &d
	return &ud, nil
}
