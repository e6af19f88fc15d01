package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"discount-system/internal/apperror"
	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// DiscountService управляет каталогом правил скидок.
type DiscountService struct {
	db           *database.DB
	log          *logger.Logger
	eligibility  *EligibilityService
	auditEnabled bool
}

// NewDiscountService создаёт сервис каталога скидок.
func NewDiscountService(db *database.DB, log *logger.Logger, eligibility *EligibilityService, auditCfg *config.AuditConfig) *DiscountService {
	return &DiscountService{
		db:           db,
		log:          log,
		eligibility:  eligibility,
		auditEnabled: auditCfg != nil && auditCfg.Enabled,
	}
}

const discountColumns = `id, name, code, description, kind, value, max_amount,
		max_usage_per_user, max_total_usage, current_usage, starts_at, expires_at,
		is_active, stacking_order, conditions, created_at, updated_at`

// CreateDiscount создаёт новое правило скидки.
func (s *DiscountService) CreateDiscount(ctx context.Context, req *models.CreateDiscountRequest) (*models.Discount, error) {
	if err := validateDiscountPayload(req.Name, req.Code, req.Kind, req.Value, req.MaxUsagePerUser, req.StartsAt, req.ExpiresAt); err != nil {
		return nil, apperror.Validation(err.Error(), err)
	}

	now := time.Now()
	maxUsage := req.MaxUsagePerUser
	if maxUsage == 0 {
		maxUsage = 1
	}

	discount := &models.Discount{
		ID:              uuid.New(),
		Name:            req.Name,
		Code:            req.Code,
		Description:     req.Description,
		Kind:            req.Kind,
		Value:           req.Value,
		MaxAmount:       req.MaxAmount,
		MaxUsagePerUser: maxUsage,
		MaxTotalUsage:   req.MaxTotalUsage,
		StartsAt:        req.StartsAt,
		ExpiresAt:       req.ExpiresAt,
		IsActive:        req.IsActive,
		StackingOrder:   req.StackingOrder,
		Conditions:      req.Conditions,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	query := `
		INSERT INTO discounts (id, name, code, description, kind, value, max_amount,
			max_usage_per_user, max_total_usage, current_usage, starts_at, expires_at,
			is_active, stacking_order, conditions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.db.ExecContext(ctx, query,
		discount.ID, discount.Name, discount.Code, discount.Description, discount.Kind,
		discount.Value, discount.MaxAmount, discount.MaxUsagePerUser, discount.MaxTotalUsage,
		discount.StartsAt, discount.ExpiresAt, discount.IsActive, discount.StackingOrder,
		discount.Conditions, discount.CreatedAt, discount.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apperror.Conflict("discount code already exists", err)
		}
		return nil, fmt.Errorf("failed to create discount: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"discount_id": discount.ID,
		"code":        discount.Code,
	}).Info("Discount created")

	return discount, nil
}

// UpdateDiscount обновляет параметры правила скидки. Код скидки неизменяем.
func (s *DiscountService) UpdateDiscount(ctx context.Context, id uuid.UUID, req *models.UpdateDiscountRequest) (*models.Discount, error) {
	if err := validateDiscountPayload(req.Name, "-", req.Kind, req.Value, req.MaxUsagePerUser, req.StartsAt, req.ExpiresAt); err != nil {
		return nil, apperror.Validation(err.Error(), err)
	}

	maxUsage := req.MaxUsagePerUser
	if maxUsage == 0 {
		maxUsage = 1
	}

	query := `
		UPDATE discounts
		SET name = $1, description = $2, kind = $3, value = $4, max_amount = $5,
			max_usage_per_user = $6, max_total_usage = $7, starts_at = $8, expires_at = $9,
			is_active = $10, stacking_order = $11, conditions = $12, updated_at = $13
		WHERE id = $14
	`

	result, err := s.db.ExecContext(ctx, query,
		req.Name, req.Description, req.Kind, req.Value, req.MaxAmount,
		maxUsage, req.MaxTotalUsage, req.StartsAt, req.ExpiresAt,
		req.IsActive, req.StackingOrder, req.Conditions, time.Now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update discount: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, apperror.NotFound("discount not found", nil)
	}

	// Правка правила меняет выборку у всех, кому оно назначено.
	if err := s.eligibility.InvalidateAll(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate eligibility cache after discount update")
	}

	return s.GetDiscount(ctx, id)
}

// DeleteDiscount удаляет правило скидки. Правило с существующими привязками
// удалить нельзя: вместо удаления его следует деактивировать.
func (s *DiscountService) DeleteDiscount(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM discounts WHERE id = $1", id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return apperror.Conflict("discount is assigned to users, deactivate it instead", err)
		}
		return fmt.Errorf("failed to delete discount: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("discount not found", nil)
	}

	if err := s.eligibility.InvalidateAll(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate eligibility cache after discount delete")
	}

	s.log.WithField("discount_id", id).Info("Discount deleted")
	return nil
}

// GetDiscount возвращает правило скидки по идентификатору.
func (s *DiscountService) GetDiscount(ctx context.Context, id uuid.UUID) (*models.Discount, error) {
	query := fmt.Sprintf("SELECT %s FROM discounts WHERE id = $1", discountColumns)
	return s.getDiscount(ctx, query, id)
}

// GetDiscountByCode возвращает правило скидки по коду.
func (s *DiscountService) GetDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	query := fmt.Sprintf("SELECT %s FROM discounts WHERE code = $1", discountColumns)
	return s.getDiscount(ctx, query, code)
}

func (s *DiscountService) getDiscount(ctx context.Context, query string, arg interface{}) (*models.Discount, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	discount, err := scanDiscount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("discount not found", err)
		}
		return nil, fmt.Errorf("failed to get discount: %w", err)
	}
	return discount, nil
}

// ListDiscounts возвращает страницу каталога скидок.
func (s *DiscountService) ListDiscounts(ctx context.Context, limit, offset int) ([]*models.Discount, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM discounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, discountColumns)

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list discounts: %w", err)
	}
	defer rows.Close()

	var discounts []*models.Discount
	for rows.Next() {
		discount, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discount: %w", err)
		}
		discounts = append(discounts, discount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate discounts: %w", err)
	}

	return discounts, nil
}

// DeactivateExpired деактивирует правила с истёкшим окном действия и пишет
// запись аудита expired для каждой активной привязки. Возвращает число
// деактивированных правил. Предназначен для периодического запуска.
func (s *DiscountService) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		UPDATE discounts
		SET is_active = false, updated_at = $1
		WHERE is_active = true AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING id`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired discounts: %w", err)
	}

	var expiredIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan expired discount id: %w", err)
		}
		expiredIDs = append(expiredIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate expired discounts: %w", err)
	}

	if len(expiredIDs) == 0 {
		return 0, tx.Commit()
	}

	if s.auditEnabled {
		if err := s.auditExpiredBindings(ctx, tx, expiredIDs, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.eligibility.InvalidateAll(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate eligibility cache after expiry sweep")
	}

	s.log.WithField("count", len(expiredIDs)).Info("Expired discounts deactivated")
	return len(expiredIDs), nil
}

// auditExpiredBindings пишет запись expired для каждой активной привязки
// деактивированных правил.
func (s *DiscountService) auditExpiredBindings(ctx context.Context, tx *sql.Tx, discountIDs []uuid.UUID, now time.Time) error {
	ids := make([]string, len(discountIDs))
	for i, id := range discountIDs {
		ids[i] = id.String()
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_id, discount_id
		FROM user_discounts
		WHERE discount_id = ANY($1) AND status = 'assigned'`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query bindings of expired discounts: %w", err)
	}
	defer rows.Close()

	type bindingRef struct {
		id         uuid.UUID
		userID     uuid.UUID
		discountID uuid.UUID
	}
	var refs []bindingRef
	for rows.Next() {
		var ref bindingRef
		if err := rows.Scan(&ref.id, &ref.userID, &ref.discountID); err != nil {
			return fmt.Errorf("failed to scan binding: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate bindings: %w", err)
	}

	for _, ref := range refs {
		audit := &models.DiscountAudit{
			UserID:         ref.userID,
			DiscountID:     ref.discountID,
			UserDiscountID: ref.id,
			Action:         models.AuditActionExpired,
			OccurredAt:     now,
		}
		if err := insertAudit(ctx, tx, audit); err != nil {
			return err
		}
	}

	return nil
}

// scannable покрывает *sql.Row и *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanDiscount(row scannable) (*models.Discount, error) {
	var (
		d             models.Discount
		maxAmount     decimal.NullDecimal
		maxTotalUsage sql.NullInt64
		startsAt      sql.NullTime
		expiresAt     sql.NullTime
	)

	err := row.Scan(
		&d.ID, &d.Name, &d.Code, &d.Description, &d.Kind, &d.Value, &maxAmount,
		&d.MaxUsagePerUser, &maxTotalUsage, &d.CurrentUsage, &startsAt, &expiresAt,
		&d.IsActive, &d.StackingOrder, &d.Conditions, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
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

	return &d, nil
}

func validateDiscountPayload(name, code string, kind models.DiscountKind, value decimal.Decimal, maxUsagePerUser int, startsAt, expiresAt *time.Time) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if code == "" {
		return fmt.Errorf("code is required")
	}
	switch kind {
	case models.DiscountKindPercentage:
		if value.LessThanOrEqual(decimal.Zero) || value.GreaterThan(hundred) {
			return fmt.Errorf("percentage value must be between 0 and 100")
		}
	case models.DiscountKindFixed:
		if value.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("fixed value must be positive")
		}
	default:
		return fmt.Errorf("invalid discount kind")
	}
	if maxUsagePerUser < 0 {
		return fmt.Errorf("max_usage_per_user must be non-negative")
	}
	if startsAt != nil && expiresAt != nil && !startsAt.Before(*expiresAt) {
		return fmt.Errorf("starts_at must be before expires_at")
	}
	return nil
}
