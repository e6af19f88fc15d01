package services

import (
	"context"
	"time"

	"discount-system/internal/apperror"
	"discount-system/internal/config"
	"discount-system/internal/logger"
	"discount-system/internal/redis"

	"github.com/google/uuid"
)

// lockRedis описывает операции Redis, нужные для рекомендательной блокировки.
type lockRedis interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// UserLock сериализует применение скидок одного пользователя между
// экземплярами сервиса. Блокировка рекомендательная: корректность данных
// гарантируют транзакция и FOR UPDATE, блокировка лишь снижает число
// конфликтов и повторных попыток.
type UserLock struct {
	redis        lockRedis
	log          *logger.Logger
	enabled      bool
	timeout      time.Duration
	pollInterval time.Duration
}

// NewUserLock создает блокировку применения. При nil-клиенте Redis
// блокировка отключается и Acquire сразу возвращает успех.
func NewUserLock(redisClient *redis.Client, log *logger.Logger, cfg *config.ConcurrencyConfig) *UserLock {
	l := &UserLock{
		log:          log,
		timeout:      30 * time.Second,
		pollInterval: 50 * time.Millisecond,
	}
	if cfg != nil && cfg.LockTimeoutSeconds > 0 {
		l.timeout = time.Duration(cfg.LockTimeoutSeconds) * time.Second
	}
	if redisClient != nil {
		l.redis = redisClient
		l.enabled = true
	}
	return l
}

// Acquire захватывает блокировку пользователя и возвращает функцию
// освобождения. Ожидание ограничено таймаутом блокировки; TTL ключа равен
// таймауту, чтобы упавший экземпляр не оставил ключ навсегда.
func (l *UserLock) Acquire(ctx context.Context, userID uuid.UUID) (func(), error) {
	if !l.enabled {
		return func() {}, nil
	}

	key := redis.GenerateKey(redis.KeyPrefixApplyLock, userID.String())
	token := uuid.New().String()
	deadline := time.Now().Add(l.timeout)

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.timeout)
		if err != nil {
			return nil, apperror.Conflict("failed to acquire apply lock", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		if time.Now().After(deadline) {
			return nil, apperror.Conflict("timed out waiting for apply lock", nil)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// release снимает блокировку, только если она все еще принадлежит владельцу
// токена: просроченный и перехваченный ключ не трогаем.
func (l *UserLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	current, err := l.redis.GetString(ctx, key)
	if err != nil {
		l.log.WithError(err).WithField("key", key).Debug("Apply lock already expired")
		return
	}
	if current != token {
		l.log.WithField("key", key).Warn("Apply lock owned by another holder, skipping release")
		return
	}
	if err := l.redis.Delete(ctx, key); err != nil {
		l.log.WithError(err).WithField("key", key).Warn("Failed to release apply lock")
	}
}
