package kafka

import (
	"testing"

	"discount-system/internal/config"
	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestProducer(t *testing.T, mp sarama.SyncProducer) *Producer {
	t.Helper()
	return &Producer{
		producer: mp,
		log:      logger.New(&config.LoggerConfig{Level: "error", Format: "json"}),
		topics:   &config.Topics{Discounts: "discounts"},
	}
}

func TestPublishEvent(t *testing.T) {
	cfg := sarama.NewConfig()
	mp := mocks.NewSyncProducer(t, cfg)
	mp.ExpectSendMessageAndSucceed()

	p := newTestProducer(t, mp)
	event := newEvent(models.EventTypeDiscountAssigned, nil)
	if err := p.publishEvent("discounts", event); err != nil {
		t.Fatalf("expected publish success, got %v", err)
	}

	if err := mp.Close(); err != nil {
		t.Fatalf("failed to close mock producer: %v", err)
	}
}

func TestProducer_WrapperMethods(t *testing.T) {
	cfg := sarama.NewConfig()
	mp := mocks.NewSyncProducer(t, cfg)
	for i := 0; i < 3; i++ {
		mp.ExpectSendMessageAndSucceed()
	}

	p := newTestProducer(t, mp)

	ud := &models.UserDiscount{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		DiscountID: uuid.New(),
		Status:     models.UserDiscountStatusAssigned,
	}

	if err := p.PublishDiscountAssigned(ud); err != nil {
		t.Fatalf("PublishDiscountAssigned failed: %v", err)
	}
	if err := p.PublishDiscountRevoked(ud, "fraud suspected"); err != nil {
		t.Fatalf("PublishDiscountRevoked failed: %v", err)
	}

	txID := "order-42"
	err := p.PublishDiscountApplied(ud,
		decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(90),
		&txID, models.JSONMap{"channel": "web"})
	if err != nil {
		t.Fatalf("PublishDiscountApplied failed: %v", err)
	}

	if err := mp.Close(); err != nil {
		t.Fatalf("failed to close mock producer: %v", err)
	}
}

func TestProducer_PublishEvent_Failure(t *testing.T) {
	cfg := sarama.NewConfig()
	mp := mocks.NewSyncProducer(t, cfg)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newTestProducer(t, mp)

	ev := newEvent(models.EventTypeDiscountApplied, nil)
	if err := p.publishEvent("discounts", ev); err == nil {
		t.Fatalf("expected error on send failure")
	}
	_ = p.Close()
}

func TestNewProducer_Error(t *testing.T) {
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	cfg := &config.KafkaConfig{Brokers: []string{"localhost:0"}}
	if _, err := NewProducer(cfg, log); err == nil {
		t.Fatalf("expected error creating producer")
	}
}

func TestProducer_CloseNil(t *testing.T) {
	var p *Producer
	if err := p.Close(); err != nil {
		t.Fatalf("expected nil error on nil producer")
	}
	p = &Producer{}
	if err := p.Close(); err != nil {
		t.Fatalf("expected nil error on empty producer, got %v", err)
	}
}
