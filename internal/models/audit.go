package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditAction описывает тип события жизненного цикла привязки.
type AuditAction string

const (
	AuditActionAssigned AuditAction = "assigned"
	AuditActionRevoked  AuditAction = "revoked"
	AuditActionApplied  AuditAction = "applied"
	AuditActionExpired  AuditAction = "expired"
)

// DiscountAudit представляет неизменяемую запись журнала аудита. Строки
// никогда не обновляются и не удаляются ядром; денежная тройка заполнена
// только для действия applied, и для неё выполняется
// final_amount = original_amount - discount_amount.
type DiscountAudit struct {
	ID             uuid.UUID           `json:"id" db:"id"`
	UserID         uuid.UUID           `json:"user_id" db:"user_id"`
	DiscountID     uuid.UUID           `json:"discount_id" db:"discount_id"`
	UserDiscountID uuid.UUID           `json:"user_discount_id" db:"user_discount_id"`
	Action         AuditAction         `json:"action" db:"action"`
	OriginalAmount decimal.NullDecimal `json:"original_amount,omitempty" db:"original_amount"`
	DiscountAmount decimal.NullDecimal `json:"discount_amount,omitempty" db:"discount_amount"`
	FinalAmount    decimal.NullDecimal `json:"final_amount,omitempty" db:"final_amount"`
	TransactionID  *string             `json:"transaction_id,omitempty" db:"transaction_id"`
	Metadata       JSONMap             `json:"metadata,omitempty" db:"metadata"`
	OccurredAt     time.Time           `json:"occurred_at" db:"occurred_at"`
}
