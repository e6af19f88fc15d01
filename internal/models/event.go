package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType описывает тип события жизненного цикла скидки.
type EventType string

const (
	EventTypeDiscountAssigned EventType = "discount.assigned"
	EventTypeDiscountRevoked  EventType = "discount.revoked"
	EventTypeDiscountApplied  EventType = "discount.applied"
)

// Event представляет событие, публикуемое в Kafka.
// Подписчики обязаны быть идемпотентными: при повторе транзакции
// возможна повторная доставка.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       EventType              `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}
