package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"discount-system/internal/models"

	"github.com/google/uuid"
)

// execer объединяет *sql.Tx и *database.DB для записи аудита.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertAuditQuery = `
	INSERT INTO discount_audits (id, user_id, discount_id, user_discount_id, action,
		original_amount, discount_amount, final_amount, transaction_id, metadata, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// insertAudit добавляет запись журнала аудита. Журнал только дописывается:
// обновлений и удалений записей нет.
func insertAudit(ctx context.Context, q execer, audit *models.DiscountAudit) error {
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.OccurredAt.IsZero() {
		audit.OccurredAt = time.Now()
	}

	_, err := q.ExecContext(ctx, insertAuditQuery,
		audit.ID, audit.UserID, audit.DiscountID, audit.UserDiscountID, audit.Action,
		audit.OriginalAmount, audit.DiscountAmount, audit.FinalAmount,
		audit.TransactionID, audit.Metadata, audit.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}
