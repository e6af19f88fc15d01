package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountKind описывает тип скидки.
type DiscountKind string

const (
	DiscountKindPercentage DiscountKind = "percentage"
	DiscountKindFixed      DiscountKind = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Discount представляет переиспользуемое правило скидки.
// Value хранится с двумя знаками после запятой: проценты для percentage,
// денежные единицы для fixed.
type Discount struct {
	ID              uuid.UUID           `json:"id" db:"id"`
	Name            string              `json:"name" db:"name"`
	Code            string              `json:"code" db:"code"`
	Description     string              `json:"description,omitempty" db:"description"`
	Kind            DiscountKind        `json:"kind" db:"kind"`
	Value           decimal.Decimal     `json:"value" db:"value"`
	MaxAmount       decimal.NullDecimal `json:"max_amount,omitempty" db:"max_amount"`
	MaxUsagePerUser int                 `json:"max_usage_per_user" db:"max_usage_per_user"`
	MaxTotalUsage   *int                `json:"max_total_usage,omitempty" db:"max_total_usage"`
	CurrentUsage    int                 `json:"current_usage" db:"current_usage"`
	StartsAt        *time.Time          `json:"starts_at,omitempty" db:"starts_at"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty" db:"expires_at"`
	IsActive        bool                `json:"is_active" db:"is_active"`
	StackingOrder   int                 `json:"stacking_order" db:"stacking_order"`
	Conditions      JSONMap             `json:"conditions,omitempty" db:"conditions"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

// IsValid сообщает, действует ли скидка в момент now.
// Чистый предикат: активна, внутри окна [starts_at, expires_at) и общий
// лимит использований не исчерпан.
func (d *Discount) IsValid(now time.Time) bool {
	if !d.IsActive {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
		return false
	}
	if d.MaxTotalUsage != nil && d.CurrentUsage >= *d.MaxTotalUsage {
		return false
	}
	return true
}

// IsExpired сообщает, истекло ли окно действия скидки.
func (d *Discount) IsExpired(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

// HasReachedTotalLimit сообщает, исчерпан ли общий лимит использований.
func (d *Discount) HasReachedTotalLimit() bool {
	return d.MaxTotalUsage != nil && d.CurrentUsage >= *d.MaxTotalUsage
}

// CalculateDiscountAmount вычисляет размер скидки для базовой суммы.
// Результат не округляется: округление выполняется один раз, после
// суммирования всех скидок. Никогда не возвращает отрицательное значение
// и не превышает baseAmount (fixed) либо max_amount (percentage).
func (d *Discount) CalculateDiscountAmount(baseAmount decimal.Decimal) decimal.Decimal {
	if baseAmount.LessThanOrEqual(decimal.Zero) || d.Value.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	switch d.Kind {
	case DiscountKindPercentage:
		amount := baseAmount.Mul(d.Value).Div(hundred)
		if d.MaxAmount.Valid && amount.GreaterThan(d.MaxAmount.Decimal) {
			amount = d.MaxAmount.Decimal
		}
		if amount.IsNegative() {
			return decimal.Zero
		}
		return amount
	case DiscountKindFixed:
		if d.Value.GreaterThan(baseAmount) {
			return baseAmount
		}
		return d.Value
	default:
		return decimal.Zero
	}
}

// CreateDiscountRequest описывает запрос на создание скидки.
type CreateDiscountRequest struct {
	Name            string              `json:"name"`
	Code            string              `json:"code"`
	Description     string              `json:"description,omitempty"`
	Kind            DiscountKind        `json:"kind"`
	Value           decimal.Decimal     `json:"value"`
	MaxAmount       decimal.NullDecimal `json:"max_amount,omitempty"`
	MaxUsagePerUser int                 `json:"max_usage_per_user,omitempty"` // 0 = значение по умолчанию (1)
	MaxTotalUsage   *int                `json:"max_total_usage,omitempty"`
	StartsAt        *time.Time          `json:"starts_at,omitempty"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty"`
	IsActive        bool                `json:"is_active"`
	StackingOrder   int                 `json:"stacking_order"`
	Conditions      JSONMap             `json:"conditions,omitempty"`
}

// UpdateDiscountRequest описывает запрос на обновление скидки.
type UpdateDiscountRequest struct {
	Name            string              `json:"name"`
	Description     string              `json:"description,omitempty"`
	Kind            DiscountKind        `json:"kind"`
	Value           decimal.Decimal     `json:"value"`
	MaxAmount       decimal.NullDecimal `json:"max_amount,omitempty"`
	MaxUsagePerUser int                 `json:"max_usage_per_user,omitempty"`
	MaxTotalUsage   *int                `json:"max_total_usage,omitempty"`
	StartsAt        *time.Time          `json:"starts_at,omitempty"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty"`
	IsActive        bool                `json:"is_active"`
	StackingOrder   int                 `json:"stacking_order"`
	Conditions      JSONMap             `json:"conditions,omitempty"`
}
