package handlers

import (
	"context"
	"time"

	"discount-system/internal/models"

	"github.com/google/uuid"
)

// ----- Discount catalog -----

type DiscountCatalog interface {
	CreateDiscount(ctx context.Context, req *models.CreateDiscountRequest) (*models.Discount, error)
	GetDiscount(ctx context.Context, id uuid.UUID) (*models.Discount, error)
	GetDiscountByCode(ctx context.Context, code string) (*models.Discount, error)
	UpdateDiscount(ctx context.Context, id uuid.UUID, req *models.UpdateDiscountRequest) (*models.Discount, error)
	DeleteDiscount(ctx context.Context, id uuid.UUID) error
	ListDiscounts(ctx context.Context, limit, offset int) ([]*models.Discount, error)
}

// ----- User discounts -----

type DiscountApplication interface {
	AssignDiscount(ctx context.Context, userID, discountID uuid.UUID) (*models.UserDiscount, error)
	RevokeDiscount(ctx context.Context, userID, discountID uuid.UUID, reason string) (bool, error)
	GetUserDiscountStats(ctx context.Context, userID uuid.UUID) (*models.UserDiscountStats, error)
	ApplyDiscounts(ctx context.Context, userID uuid.UUID, req *models.ApplyDiscountsRequest) (*models.ApplyResult, error)
}

type EligibilityProvider interface {
	EligibleFor(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.UserDiscount, error)
}

// ----- Audit log -----

type AuditLog interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.DiscountAudit, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*models.DiscountAudit, error)
	ListByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.DiscountAudit, error)
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
