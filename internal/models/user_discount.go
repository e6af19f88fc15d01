package models

import (
	"time"

	"github.com/google/uuid"
)

// UserDiscountStatus описывает состояние привязки скидки к пользователю.
// Статус является источником истины; revoked_at хранится только для аудита.
type UserDiscountStatus string

const (
	UserDiscountStatusAssigned UserDiscountStatus = "assigned"
	UserDiscountStatusRevoked  UserDiscountStatus = "revoked"
)

// UserDiscount представляет привязку скидки к пользователю.
// На пару (user_id, discount_id) существует не более одной строки:
// отозванная привязка реактивируется повторным назначением, а не дублируется.
type UserDiscount struct {
	ID         uuid.UUID          `json:"id" db:"id"`
	UserID     uuid.UUID          `json:"user_id" db:"user_id"`
	DiscountID uuid.UUID          `json:"discount_id" db:"discount_id"`
	UsageCount int                `json:"usage_count" db:"usage_count"`
	Status     UserDiscountStatus `json:"status" db:"status"`
	AssignedAt time.Time          `json:"assigned_at" db:"assigned_at"`
	RevokedAt  *time.Time         `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" db:"updated_at"`

	// Discount загружается вместе с привязкой там, где нужны предикаты
	// валидности; в базе хранится только discount_id.
	Discount *Discount `json:"discount,omitempty" db:"-"`
}

// IsActive сообщает, назначена ли привязка в данный момент.
func (ud *UserDiscount) IsActive() bool {
	return ud.Status == UserDiscountStatusAssigned
}

// HasReachedUsageLimit сообщает, исчерпан ли персональный лимит использований.
// Состояние UsageExhausted является производным и не хранится в базе.
func (ud *UserDiscount) HasReachedUsageLimit() bool {
	return ud.Discount != nil && ud.UsageCount >= ud.Discount.MaxUsagePerUser
}

// IsValid сообщает, пригодна ли привязка к применению в момент now:
// привязка активна и сама скидка проходит предикат валидности.
func (ud *UserDiscount) IsValid(now time.Time) bool {
	if !ud.IsActive() {
		return false
	}
	return ud.Discount != nil && ud.Discount.IsValid(now)
}

// IsEligible объединяет все условия отбора: привязка валидна и лимит
// персональных использований не исчерпан.
func (ud *UserDiscount) IsEligible(now time.Time) bool {
	return ud.IsValid(now) && !ud.HasReachedUsageLimit()
}

// AssignDiscountRequest описывает запрос на назначение скидки пользователю.
type AssignDiscountRequest struct {
	DiscountID uuid.UUID `json:"discount_id"`
}

// RevokeDiscountRequest описывает запрос на отзыв скидки у пользователя.
type RevokeDiscountRequest struct {
	Reason string `json:"reason,omitempty"`
}

// UserDiscountStats агрегирует состояние привязок одного пользователя.
type UserDiscountStats struct {
	TotalDiscounts  int `json:"total_discounts"`
	ActiveDiscounts int `json:"active_discounts"`
	ValidDiscounts  int `json:"valid_discounts"`
	TotalUsage      int `json:"total_usage"`
}
