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
	"discount-system/internal/kafka"
	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// eventPublisher описывает события жизненного цикла, публикуемые сервисом.
type eventPublisher interface {
	PublishDiscountAssigned(userDiscount *models.UserDiscount) error
	PublishDiscountRevoked(userDiscount *models.UserDiscount, reason string) error
	PublishDiscountApplied(userDiscount *models.UserDiscount, originalAmount, discountAmount, finalAmount decimal.Decimal, transactionID *string, metadata models.JSONMap) error
}

// ApplicationService координирует жизненный цикл привязок: назначение, отзыв
// и применение скидок к сумме. Это единственная точка, изменяющая счётчики
// использования, и делает это только внутри зафиксированной транзакции.
type ApplicationService struct {
	db            *database.DB
	log           *logger.Logger
	eligibility   *EligibilityService
	engine        *StackingEngine
	lock          *UserLock
	publisher     eventPublisher
	auditEnabled  bool
	retryAttempts int
	retryBackoff  time.Duration
}

// NewApplicationService создаёт координатор применения скидок.
// При nil-продюсере события не публикуются.
func NewApplicationService(db *database.DB, log *logger.Logger, eligibility *EligibilityService, engine *StackingEngine, lock *UserLock, producer *kafka.Producer, cfg *config.Config) *ApplicationService {
	s := &ApplicationService{
		db:            db,
		log:           log,
		eligibility:   eligibility,
		engine:        engine,
		lock:          lock,
		auditEnabled:  cfg.Audit.Enabled,
		retryAttempts: cfg.Concurrency.RetryAttempts,
		retryBackoff:  100 * time.Millisecond,
	}
	if s.retryAttempts <= 0 {
		s.retryAttempts = 3
	}
	if producer != nil {
		s.publisher = producer
	}
	return s
}

const userDiscountColumns = `id, user_id, discount_id, usage_count, status, assigned_at, revoked_at, created_at, updated_at`

// AssignDiscount назначает скидку пользователю. Повторное назначение
// активной привязки возвращает существующую строку без аудита и события;
// отозванная привязка реактивируется той же строкой.
func (s *ApplicationService) AssignDiscount(ctx context.Context, userID, discountID uuid.UUID) (*models.UserDiscount, error) {
	discount, err := s.getDiscountByID(ctx, discountID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !discount.IsValid(now) {
		return nil, apperror.NotEligible("discount is not valid or has expired", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.getBindingForUpdate(ctx, tx, userID, discountID)
	if err != nil && !apperror.Is(err, apperror.KindNotFound) {
		return nil, err
	}

	if existing != nil && existing.IsActive() {
		existing.Discount = discount
		return existing, nil
	}

	var binding *models.UserDiscount
	if existing != nil {
		// Реактивация: та же строка, счётчик использований сохраняется.
		_, err = tx.ExecContext(ctx, `
			UPDATE user_discounts
			SET status = $1, revoked_at = NULL, updated_at = $2
			WHERE id = $3`,
			models.UserDiscountStatusAssigned, now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reactivate user discount: %w", err)
		}
		existing.Status = models.UserDiscountStatusAssigned
		existing.RevokedAt = nil
		existing.UpdatedAt = now
		binding = existing
	} else {
		binding = &models.UserDiscount{
			ID:         uuid.New(),
			UserID:     userID,
			DiscountID: discountID,
			Status:     models.UserDiscountStatusAssigned,
			AssignedAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_discounts (id, user_id, discount_id, usage_count, status, assigned_at, created_at, updated_at)
			VALUES ($1, $2, $3, 0, $4, $5, $6, $7)`,
			binding.ID, binding.UserID, binding.DiscountID, binding.Status,
			binding.AssignedAt, binding.CreatedAt, binding.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return nil, apperror.Conflict("discount is already assigned to user", err)
			}
			return nil, fmt.Errorf("failed to create user discount: %w", err)
		}
	}

	if s.auditEnabled {
		audit := &models.DiscountAudit{
			UserID:         userID,
			DiscountID:     discountID,
			UserDiscountID: binding.ID,
			Action:         models.AuditActionAssigned,
			OccurredAt:     now,
		}
		if err := insertAudit(ctx, tx, audit); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	binding.Discount = discount

	if s.publisher != nil {
		if err := s.publisher.PublishDiscountAssigned(binding); err != nil {
			s.log.WithError(err).Warn("Failed to publish discount assigned event")
		}
	}
	if err := s.eligibility.Invalidate(ctx, userID); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate eligibility cache after assign")
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":     userID,
		"discount_id": discountID,
	}).Info("Discount assigned to user")

	return binding, nil
}

// RevokeDiscount отзывает активную привязку и возвращает true при фактическом
// отзыве. Без активной привязки отзывать нечего: возвращается false,
// состояние не меняется, аудит не пишется.
func (s *ApplicationService) RevokeDiscount(ctx context.Context, userID, discountID uuid.UUID, reason string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	binding, err := s.getBindingForUpdate(ctx, tx, userID, discountID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	if !binding.IsActive() {
		return false, nil
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE user_discounts
		SET status = $1, revoked_at = $2, updated_at = $2
		WHERE id = $3`,
		models.UserDiscountStatusRevoked, now, binding.ID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke user discount: %w", err)
	}
	binding.Status = models.UserDiscountStatusRevoked
	binding.RevokedAt = &now
	binding.UpdatedAt = now

	if s.auditEnabled {
		audit := &models.DiscountAudit{
			UserID:         userID,
			DiscountID:     discountID,
			UserDiscountID: binding.ID,
			Action:         models.AuditActionRevoked,
			Metadata:       models.JSONMap{"reason": reason},
			OccurredAt:     now,
		}
		if err := insertAudit(ctx, tx, audit); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishDiscountRevoked(binding, reason); err != nil {
			s.log.WithError(err).Warn("Failed to publish discount revoked event")
		}
	}
	if err := s.eligibility.Invalidate(ctx, userID); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate eligibility cache after revoke")
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":     userID,
		"discount_id": discountID,
		"reason":      reason,
	}).Info("Discount revoked from user")

	return true, nil
}

// GetUserDiscountStats возвращает агрегат по привязкам пользователя.
func (s *ApplicationService) GetUserDiscountStats(ctx context.Context, userID uuid.UUID) (*models.UserDiscountStats, error) {
	query := `
		SELECT ud.id, ud.user_id, ud.discount_id, ud.usage_count, ud.status,
		       ud.assigned_at, ud.revoked_at, ud.created_at, ud.updated_at,
		       d.id, d.name, d.code, d.description, d.kind, d.value, d.max_amount,
		       d.max_usage_per_user, d.max_total_usage, d.current_usage,
		       d.starts_at, d.expires_at, d.is_active, d.stacking_order, d.conditions,
		       d.created_at, d.updated_at
		FROM user_discounts ud
		JOIN discounts d ON d.id = ud.discount_id
		WHERE ud.user_id = $1`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user discounts: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	stats := &models.UserDiscountStats{}
	for rows.Next() {
		binding, err := scanEligibleRow(rows)
		if err != nil {
			return nil, err
		}
		stats.TotalDiscounts++
		stats.TotalUsage += binding.UsageCount
		if binding.IsActive() {
			stats.ActiveDiscounts++
		}
		if binding.IsValid(now) {
			stats.ValidDiscounts++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user discounts: %w", err)
	}

	return stats, nil
}

// ApplyDiscounts применяет доступные скидки пользователя к сумме.
// Попытки повторяются при транзакционных конфликтах с линейно растущей
// задержкой; задержка выдерживается вне блокировки и вне транзакции.
func (s *ApplicationService) ApplyDiscounts(ctx context.Context, userID uuid.UUID, req *models.ApplyDiscountsRequest) (*models.ApplyResult, error) {
	if req.Amount.LessThan(decimal.Zero) {
		return nil, apperror.Validation("amount must be non-negative", nil)
	}

	// Быстрый путь: без доступных скидок пишущая транзакция не открывается.
	bindings, err := s.eligibility.EligibleFor(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return noopApplyResult(req), nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		result, err := s.applyOnce(ctx, userID, req)
		if err == nil {
			return result, nil
		}
		if isFatalApplyError(err) {
			return nil, err
		}
		lastErr = err

		s.log.WithError(err).WithFields(map[string]interface{}{
			"user_id": userID,
			"attempt": attempt,
		}).Warn("Apply attempt failed, retrying")

		if attempt < s.retryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retryBackoff * time.Duration(attempt)):
			}
		}
	}

	return nil, apperror.Concurrency(
		fmt.Sprintf("failed to apply discounts after %d attempts", s.retryAttempts), lastErr)
}

// applyOnce выполняет одну попытку применения: блокировка пользователя,
// транзакция, свежая выборка с блокировкой строк, движок, охраняемые
// инкременты и аудит. События и сброс кеша выполняются после фиксации.
func (s *ApplicationService) applyOnce(ctx context.Context, userID uuid.UUID, req *models.ApplyDiscountsRequest) (*models.ApplyResult, error) {
	release, err := s.lock.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	bindings, err := s.eligibility.EligibleForUpdate(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return noopApplyResult(req), nil
	}

	stacked := s.engine.Stack(req.Amount, bindings)

	for _, step := range stacked.Steps {
		if err := s.commitStep(ctx, tx, userID, &step, req, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result := &models.ApplyResult{
		OriginalAmount:   stacked.OriginalAmount,
		DiscountAmount:   stacked.DiscountAmount,
		FinalAmount:      stacked.FinalAmount,
		AppliedDiscounts: make([]models.AppliedDiscount, 0, len(stacked.Steps)),
		TransactionID:    req.TransactionID,
	}
	for _, step := range stacked.Steps {
		result.AppliedDiscounts = append(result.AppliedDiscounts, models.AppliedDiscount{
			UserDiscountID: step.Binding.ID,
			DiscountID:     step.Binding.DiscountID,
			DiscountCode:   step.Binding.Discount.Code,
			DiscountAmount: step.Amount,
		})
	}

	s.publishAppliedEvents(stacked, req)

	if err := s.eligibility.Invalidate(ctx, userID); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate eligibility cache after apply")
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":         userID,
		"discount_amount": result.DiscountAmount,
		"final_amount":    result.FinalAmount,
		"applied_count":   len(result.AppliedDiscounts),
	}).Info("Discounts applied")

	return result, nil
}

// commitStep фиксирует один шаг применения: охраняемые инкременты счётчиков
// и запись аудита. Нулевое число затронутых строк означает, что счётчик
// изменился конкурентно; попытка завершается конфликтом и повторяется.
func (s *ApplicationService) commitStep(ctx context.Context, tx *sql.Tx, userID uuid.UUID, step *StackStep, req *models.ApplyDiscountsRequest, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE user_discounts
		SET usage_count = usage_count + 1, updated_at = $1
		WHERE id = $2 AND usage_count < $3`,
		now, step.Binding.ID, step.Binding.Discount.MaxUsagePerUser)
	if err != nil {
		return fmt.Errorf("failed to increment usage count: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if affected == 0 {
		return apperror.Conflict("user discount usage changed concurrently", nil)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE discounts
		SET current_usage = current_usage + 1, updated_at = $1
		WHERE id = $2 AND (max_total_usage IS NULL OR current_usage < max_total_usage)`,
		now, step.Binding.DiscountID)
	if err != nil {
		return fmt.Errorf("failed to increment total usage: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if affected == 0 {
		return apperror.Conflict("discount total usage changed concurrently", nil)
	}

	if !s.auditEnabled {
		return nil
	}

	audit := &models.DiscountAudit{
		UserID:         userID,
		DiscountID:     step.Binding.DiscountID,
		UserDiscountID: step.Binding.ID,
		Action:         models.AuditActionApplied,
		OriginalAmount: decimal.NewNullDecimal(step.RemainingBefore),
		DiscountAmount: decimal.NewNullDecimal(step.Amount),
		FinalAmount:    decimal.NewNullDecimal(step.RemainingAfter),
		TransactionID:  req.TransactionID,
		Metadata:       req.Metadata,
		OccurredAt:     now,
	}
	return insertAudit(ctx, tx, audit)
}

// publishAppliedEvents публикует событие на каждый шаг применения.
// Тройка сумм в событии накопительная: исходная база вызова и остаток
// после шага.
func (s *ApplicationService) publishAppliedEvents(stacked *StackingResult, req *models.ApplyDiscountsRequest) {
	if s.publisher == nil {
		return
	}
	for _, step := range stacked.Steps {
		err := s.publisher.PublishDiscountApplied(step.Binding,
			stacked.OriginalAmount, step.Amount, step.RemainingAfter,
			req.TransactionID, req.Metadata)
		if err != nil {
			s.log.WithError(err).Warn("Failed to publish discount applied event")
		}
	}
}

func (s *ApplicationService) getDiscountByID(ctx context.Context, id uuid.UUID) (*models.Discount, error) {
	query := fmt.Sprintf("SELECT %s FROM discounts WHERE id = $1", discountColumns)
	row := s.db.QueryRowContext(ctx, query, id)
	discount, err := scanDiscount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("discount not found", err)
		}
		return nil, fmt.Errorf("failed to get discount: %w", err)
	}
	return discount, nil
}

func (s *ApplicationService) getBindingForUpdate(ctx context.Context, tx *sql.Tx, userID, discountID uuid.UUID) (*models.UserDiscount, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM user_discounts
		WHERE user_id = $1 AND discount_id = $2
		FOR UPDATE`, userDiscountColumns)

	var (
		ud        models.UserDiscount
		revokedAt sql.NullTime
	)
	err := tx.QueryRowContext(ctx, query, userID, discountID).Scan(
		&ud.ID, &ud.UserID, &ud.DiscountID, &ud.UsageCount, &ud.Status,
		&ud.AssignedAt, &revokedAt, &ud.CreatedAt, &ud.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("discount binding not found", err)
		}
		return nil, fmt.Errorf("failed to get user discount: %w", err)
	}
	if revokedAt.Valid {
		ud.RevokedAt = &revokedAt.Time
	}
	return &ud, nil
}

func noopApplyResult(req *models.ApplyDiscountsRequest) *models.ApplyResult {
	return &models.ApplyResult{
		OriginalAmount:   req.Amount,
		DiscountAmount:   decimal.Zero,
		FinalAmount:      req.Amount,
		AppliedDiscounts: []models.AppliedDiscount{},
		TransactionID:    req.TransactionID,
	}
}

// isFatalApplyError отличает ошибки, которые повтор не исправит.
func isFatalApplyError(err error) bool {
	return apperror.Is(err, apperror.KindValidation) ||
		apperror.Is(err, apperror.KindNotFound) ||
		apperror.Is(err, apperror.KindNotEligible) ||
		apperror.Is(err, apperror.KindUsageLimit)
}
