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

	"github.com/google/uuid"
)

// AuditService читает журнал аудита и обслуживает его хранение.
// Записи журнала ядро никогда не обновляет; удаляет их только
// чистка записей старше срока хранения.
type AuditService struct {
	db            *database.DB
	log           *logger.Logger
	retentionDays int
}

// NewAuditService создаёт сервис журнала аудита.
func NewAuditService(db *database.DB, log *logger.Logger, cfg *config.AuditConfig) *AuditService {
	retention := 0
	if cfg != nil {
		retention = cfg.RetentionDays
	}
	return &AuditService{
		db:            db,
		log:           log,
		retentionDays: retention,
	}
}

const auditColumns = `id, user_id, discount_id, user_discount_id, action,
		original_amount, discount_amount, final_amount, transaction_id, metadata, occurred_at`

// ListByUser возвращает записи журнала пользователя, новые первыми.
func (s *AuditService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.DiscountAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM discount_audits
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3`, auditColumns)

	return s.queryAudits(ctx, query, userID, limit, offset)
}

// ListByTransaction возвращает записи, связанные с одной транзакцией вызова.
func (s *AuditService) ListByTransaction(ctx context.Context, transactionID string) ([]*models.DiscountAudit, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM discount_audits
		WHERE transaction_id = $1
		ORDER BY occurred_at ASC`, auditColumns)

	return s.queryAudits(ctx, query, transactionID)
}

// ListByAction возвращает записи одного типа действия, новые первыми.
func (s *AuditService) ListByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.DiscountAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM discount_audits
		WHERE action = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3`, auditColumns)

	return s.queryAudits(ctx, query, action, limit, offset)
}

// PurgeExpired удаляет записи старше срока хранения и возвращает их число.
// Нулевой срок хранения означает бессрочное хранение: чистка не выполняется.
func (s *AuditService) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}

	cutoff := now.AddDate(0, 0, -s.retentionDays)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM discount_audits WHERE occurred_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit records: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if purged > 0 {
		s.log.WithFields(map[string]interface{}{
			"count":  purged,
			"cutoff": cutoff,
		}).Info("Expired audit records purged")
	}

	return purged, nil
}

func (s *AuditService) queryAudits(ctx context.Context, query string, args ...interface{}) ([]*models.DiscountAudit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var audits []*models.DiscountAudit
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		audits = append(audits, audit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}

	return audits, nil
}

func scanAudit(rows *sql.Rows) (*models.DiscountAudit, error) {
	var (
		audit         models.DiscountAudit
		transactionID sql.NullString
	)

	err := rows.Scan(
		&audit.ID, &audit.UserID, &audit.DiscountID, &audit.UserDiscountID, &audit.Action,
		&audit.OriginalAmount, &audit.DiscountAmount, &audit.FinalAmount,
		&transactionID, &audit.Metadata, &audit.OccurredAt,
	)
	if err != nil {
		return nil, err
	}

	if transactionID.Valid {
		audit.TransactionID = &transactionID.String
	}
	return &audit, nil
}
