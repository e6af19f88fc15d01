package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"discount-system/internal/config"
	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Producer публикует события жизненного цикла скидок в Kafka.
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает синхронный продюсер Kafka.
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info("Successfully connected to Kafka")

	return &Producer{
		producer: producer,
		log:      log,
		topics:   &cfg.Topics,
	}, nil
}

// Close закрывает продюсер.
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// PublishDiscountAssigned публикует событие назначения скидки пользователю.
func (p *Producer) PublishDiscountAssigned(userDiscount *models.UserDiscount) error {
	event := newEvent(models.EventTypeDiscountAssigned, map[string]interface{}{
		"user_discount": userDiscount,
	})
	return p.publishEvent(p.topics.Discounts, event)
}

// PublishDiscountRevoked публикует событие отзыва скидки.
func (p *Producer) PublishDiscountRevoked(userDiscount *models.UserDiscount, reason string) error {
	event := newEvent(models.EventTypeDiscountRevoked, map[string]interface{}{
		"user_discount": userDiscount,
		"reason":        reason,
	})
	return p.publishEvent(p.topics.Discounts, event)
}

// PublishDiscountApplied публикует событие применения скидки с денежной тройкой.
func (p *Producer) PublishDiscountApplied(userDiscount *models.UserDiscount, originalAmount, discountAmount, finalAmount decimal.Decimal, transactionID *string, metadata models.JSONMap) error {
	data := map[string]interface{}{
		"user_discount":   userDiscount,
		"original_amount": originalAmount,
		"discount_amount": discountAmount,
		"final_amount":    finalAmount,
	}
	if transactionID != nil {
		data["transaction_id"] = *transactionID
	}
	if metadata != nil {
		data["metadata"] = metadata
	}
	return p.publishEvent(p.topics.Discounts, newEvent(models.EventTypeDiscountApplied, data))
}

// publishEvent сериализует событие и отправляет его в топик.
func (p *Producer) publishEvent(topic string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.ID.String()),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}

	p.log.WithFields(map[string]interface{}{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"type":      event.Type,
	}).Debug("Event published to Kafka")

	return nil
}

func newEvent(eventType models.EventType, data map[string]interface{}) models.Event {
	return models.Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now(),
		Data:       data,
	}
}
