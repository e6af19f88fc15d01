package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AppliedDiscount описывает одну применённую скидку в составе результата.
type AppliedDiscount struct {
	UserDiscountID uuid.UUID       `json:"user_discount_id"`
	DiscountID     uuid.UUID       `json:"discount_id"`
	DiscountCode   string          `json:"discount_code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// ApplyResult содержит итог применения скидок к сумме.
// После округления выполняется
// OriginalAmount = DiscountAmount + FinalAmount с точностью до одной
// единицы последнего знака.
type ApplyResult struct {
	OriginalAmount   decimal.Decimal   `json:"original_amount"`
	DiscountAmount   decimal.Decimal   `json:"discount_amount"`
	FinalAmount      decimal.Decimal   `json:"final_amount"`
	AppliedDiscounts []AppliedDiscount `json:"applied_discounts"`
	TransactionID    *string           `json:"transaction_id,omitempty"`
}

// ApplyDiscountsRequest описывает запрос на применение скидок к сумме.
type ApplyDiscountsRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	Metadata      JSONMap         `json:"metadata,omitempty"`
}
