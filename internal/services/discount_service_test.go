package services

import (
	"context"
	"testing"
	"time"

	"discount-system/internal/apperror"
	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func newDiscountFixture(t *testing.T) (*DiscountService, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	db := &database.DB{DB: mockDB}
	eligibility := NewEligibilityService(db, nil, log, &config.CacheConfig{Enabled: false})
	svc := NewDiscountService(db, log, eligibility, &config.AuditConfig{Enabled: true})
	return svc, mock
}

func validCreateRequest() *models.CreateDiscountRequest {
	return &models.CreateDiscountRequest{
		Name:          "Welcome discount",
		Code:          "WELCOME10",
		Kind:          models.DiscountKindPercentage,
		Value:         decimal.NewFromInt(10),
		IsActive:      true,
		StackingOrder: 1,
	}
}

func TestDiscountService_CreateDiscount(t *testing.T) {
	svc, mock := newDiscountFixture(t)

	mock.ExpectExec("INSERT INTO discounts").WillReturnResult(sqlmock.NewResult(0, 1))

	discount, err := svc.CreateDiscount(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("CreateDiscount failed: %v", err)
	}
	if discount.ID == uuid.Nil {
		t.Errorf("expected generated id")
	}
	if discount.MaxUsagePerUser != 1 {
		t.Errorf("expected default max_usage_per_user = 1, got %d", discount.MaxUsagePerUser)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestDiscountService_CreateDiscount_DuplicateCode(t *testing.T) {
	svc, mock := newDiscountFixture(t)

	mock.ExpectExec("INSERT INTO discounts").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := svc.CreateDiscount(context.Background(), validCreateRequest())
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestDiscountService_CreateDiscount_Validation(t *testing.T) {
	svc, _ := newDiscountFixture(t)

	tests := []struct {
		name   string
		mutate func(*models.CreateDiscountRequest)
	}{
		{"empty name", func(r *models.CreateDiscountRequest) { r.Name = "" }},
		{"empty code", func(r *models.CreateDiscountRequest) { r.Code = "" }},
		{"zero percentage", func(r *models.CreateDiscountRequest) { r.Value = decimal.Zero }},
		{"percentage over 100", func(r *models.CreateDiscountRequest) { r.Value = decimal.NewFromInt(150) }},
		{"unknown kind", func(r *models.CreateDiscountRequest) { r.Kind = "bogus" }},
		{"negative max usage", func(r *models.CreateDiscountRequest) { r.MaxUsagePerUser = -1 }},
		{"inverted window", func(r *models.CreateDiscountRequest) {
			start := time.Now()
			end := start.Add(-time.Hour)
			r.StartsAt = &start
			r.ExpiresAt = &end
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(req)
			if _, err := svc.CreateDiscount(context.Background(), req); !apperror.Is(err, apperror.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDiscountService_CreateDiscount_NegativeFixed(t *testing.T) {
	svc, _ := newDiscountFixture(t)

	req := validCreateRequest()
	req.Kind = models.DiscountKindFixed
	req.Value = decimal.NewFromInt(-5)

	if _, err := svc.CreateDiscount(context.Background(), req); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDiscountService_UpdateDiscount_NotFound(t *testing.T) {
	svc, mock := newDiscountFixture(t)

	mock.ExpectExec("UPDATE discounts").WillReturnResult(sqlmock.NewResult(0, 0))

	req := &models.UpdateDiscountRequest{
		Name:  "Renamed",
		Kind:  models.DiscountKindFixed,
		Value: decimal.NewFromInt(5),
	}
	_, err := svc.UpdateDiscount(context.Background(), uuid.New(), req)
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not_found error, got %v", err)
	}
}

func TestDiscountService_UpdateDiscount(t *testing.T) {
	svc, mock := newDiscountFixture(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE discounts").WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows(discountSelectColumns)
	addDiscountRow(rows, id, "WELCOME10", nil)
	mock.ExpectQuery("FROM discounts WHERE id").WithArgs(id).WillReturnRows(rows)

	req := &models.UpdateDiscountRequest{
		Name:  "Welcome discount",
		Kind:  models.DiscountKindPercentage,
		Value: decimal.NewFromInt(10),
	}
	discount, err := svc.UpdateDiscount(context.Background(), id, req)
	if err != nil {
		t.Fatalf("UpdateDiscount failed: %v", err)
	}
	if discount.Code != "WELCOME10" {
		t.Errorf("unexpected code %s", discount.Code)
	}
}

func TestDiscountService_DeleteDiscount(t *testing.T) {
	svc, mock := newDiscountFixture(t)

	mock.ExpectExec("DELETE FROM discounts").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.DeleteDiscount(context.Background(), uuid.New()); err != nil {
		t.Fatalf("DeleteDiscount failed: %v", err)
	}
}

func TestDiscountService_DeleteDiscount_Assigned(t *testing.T) {
	svc, mock := newDiscountFixture(t)

	mock.ExpectExec("DELETE FROM discounts").
		WillReturnError(&pq.Error{Code: "23503"})

	err := svc.DeleteDiscount(context.Background(), uuid.New())
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict error for assigned discount, got %v", err)
	}
}

func TestDiscountService_GetDiscountByCode_NotFound(t *testing.T) {
	svc, mock := newDiscountFixture(t)

	mock.ExpectQuery("FROM discounts WHERE code").
		WillReturnRows(sqlmock.NewRows(discountSelectColumns))

	_, err := svc.GetDiscountByCode(context.Background(), "MISSING")
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not_found error, got %v", err)
	}
}

func TestDiscountService_ListDiscounts(t *testing.T) {
	svc, mock := newDiscountFixture(t)

	rows := sqlmock.NewRows(discountSelectColumns)
	addDiscountRow(rows, uuid.New(), "WELCOME10", nil)
	addDiscountRow(rows, uuid.New(), "LOYAL5", nil)

	mock.ExpectQuery("FROM discounts").
		WithArgs(50, 0).
		WillReturnRows(rows)

	discounts, err := svc.ListDiscounts(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListDiscounts failed: %v", err)
	}
	if len(discounts) != 2 {
		t.Fatalf("expected 2 discounts, got %d", len(discounts))
	}
}

func TestDiscountService_DeactivateExpired(t *testing.T) {
	svc, mock := newDiscountFixture(t)
	now := time.Now()

	expiredA := uuid.New()
	expiredB := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE discounts").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(expiredA.String()).
			AddRow(expiredB.String()))
	mock.ExpectQuery("FROM user_discounts").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "discount_id"}).
			AddRow(uuid.New().String(), uuid.New().String(), expiredA.String()))
	mock.ExpectExec("INSERT INTO discount_audits").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	count, err := svc.DeactivateExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("DeactivateExpired failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 deactivated discounts, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestDiscountService_DeactivateExpired_Nothing(t *testing.T) {
	svc, mock := newDiscountFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE discounts").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	count, err := svc.DeactivateExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DeactivateExpired failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no deactivations, got %d", count)
	}
}
