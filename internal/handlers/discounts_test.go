package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"discount-system/internal/apperror"
	"discount-system/internal/config"
	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type mockCatalog struct {
	createFn    func(ctx context.Context, req *models.CreateDiscountRequest) (*models.Discount, error)
	getFn       func(ctx context.Context, id uuid.UUID) (*models.Discount, error)
	getByCodeFn func(ctx context.Context, code string) (*models.Discount, error)
	updateFn    func(ctx context.Context, id uuid.UUID, req *models.UpdateDiscountRequest) (*models.Discount, error)
	deleteFn    func(ctx context.Context, id uuid.UUID) error
	listFn      func(ctx context.Context, limit, offset int) ([]*models.Discount, error)
}

func (m *mockCatalog) CreateDiscount(ctx context.Context, req *models.CreateDiscountRequest) (*models.Discount, error) {
	return m.createFn(ctx, req)
}
func (m *mockCatalog) GetDiscount(ctx context.Context, id uuid.UUID) (*models.Discount, error) {
	return m.getFn(ctx, id)
}
func (m *mockCatalog) GetDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	return m.getByCodeFn(ctx, code)
}
func (m *mockCatalog) UpdateDiscount(ctx context.Context, id uuid.UUID, req *models.UpdateDiscountRequest) (*models.Discount, error) {
	return m.updateFn(ctx, id, req)
}
func (m *mockCatalog) DeleteDiscount(ctx context.Context, id uuid.UUID) error {
	return m.deleteFn(ctx, id)
}
func (m *mockCatalog) ListDiscounts(ctx context.Context, limit, offset int) ([]*models.Discount, error) {
	return m.listFn(ctx, limit, offset)
}

func testLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func sampleDiscount() *models.Discount {
	return &models.Discount{
		ID:              uuid.New(),
		Name:            "Welcome discount",
		Code:            "WELCOME10",
		Kind:            models.DiscountKindPercentage,
		Value:           decimal.NewFromInt(10),
		MaxUsagePerUser: 1,
		IsActive:        true,
		StackingOrder:   1,
	}
}

func TestDiscountHandler_CreateDiscount(t *testing.T) {
	discount := sampleDiscount()
	catalog := &mockCatalog{
		createFn: func(ctx context.Context, req *models.CreateDiscountRequest) (*models.Discount, error) {
			return discount, nil
		},
	}
	h := NewDiscountHandler(catalog, testLogger())

	body, _ := json.Marshal(models.CreateDiscountRequest{
		Name: "Welcome discount", Code: "WELCOME10",
		Kind: models.DiscountKindPercentage, Value: decimal.NewFromInt(10),
	})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/discounts", bytes.NewReader(body))

	h.CreateDiscount(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var got models.Discount
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Code != "WELCOME10" {
		t.Errorf("unexpected code %s", got.Code)
	}
}

func TestDiscountHandler_CreateDiscount_InvalidBody(t *testing.T) {
	h := NewDiscountHandler(&mockCatalog{}, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/discounts", bytes.NewReader([]byte("not json")))

	h.CreateDiscount(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestDiscountHandler_CreateDiscount_Validation(t *testing.T) {
	catalog := &mockCatalog{
		createFn: func(ctx context.Context, req *models.CreateDiscountRequest) (*models.Discount, error) {
			return nil, apperror.Validation("code is required", nil)
		},
	}
	h := NewDiscountHandler(catalog, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/discounts", bytes.NewReader([]byte("{}")))

	h.CreateDiscount(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestDiscountHandler_CreateDiscount_Conflict(t *testing.T) {
	catalog := &mockCatalog{
		createFn: func(ctx context.Context, req *models.CreateDiscountRequest) (*models.Discount, error) {
			return nil, apperror.Conflict("discount code already exists", nil)
		},
	}
	h := NewDiscountHandler(catalog, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/discounts", bytes.NewReader([]byte("{}")))

	h.CreateDiscount(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestDiscountHandler_GetDiscount(t *testing.T) {
	discount := sampleDiscount()
	catalog := &mockCatalog{
		getFn: func(ctx context.Context, id uuid.UUID) (*models.Discount, error) {
			if id != discount.ID {
				t.Errorf("unexpected id %s", id)
			}
			return discount, nil
		},
	}
	h := NewDiscountHandler(catalog, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/discounts/"+discount.ID.String(), nil)

	h.GetDiscount(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestDiscountHandler_GetDiscount_BadID(t *testing.T) {
	h := NewDiscountHandler(&mockCatalog{}, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/discounts/not-a-uuid", nil)

	h.GetDiscount(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestDiscountHandler_GetDiscount_NotFound(t *testing.T) {
	catalog := &mockCatalog{
		getFn: func(ctx context.Context, id uuid.UUID) (*models.Discount, error) {
			return nil, apperror.NotFound("discount not found", nil)
		},
	}
	h := NewDiscountHandler(catalog, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/discounts/"+uuid.New().String(), nil)

	h.GetDiscount(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDiscountHandler_ListDiscounts(t *testing.T) {
	catalog := &mockCatalog{
		listFn: func(ctx context.Context, limit, offset int) ([]*models.Discount, error) {
			if limit != 10 || offset != 5 {
				t.Errorf("unexpected pagination limit=%d offset=%d", limit, offset)
			}
			return []*models.Discount{sampleDiscount()}, nil
		},
	}
	h := NewDiscountHandler(catalog, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/discounts?limit=10&offset=5", nil)

	h.ListDiscounts(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestDiscountHandler_ListDiscounts_ByCode(t *testing.T) {
	catalog := &mockCatalog{
		getByCodeFn: func(ctx context.Context, code string) (*models.Discount, error) {
			if code != "WELCOME10" {
				t.Errorf("unexpected code %s", code)
			}
			return sampleDiscount(), nil
		},
	}
	h := NewDiscountHandler(catalog, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/discounts?code=WELCOME10", nil)

	h.ListDiscounts(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestDiscountHandler_UpdateDiscount(t *testing.T) {
	discount := sampleDiscount()
	catalog := &mockCatalog{
		updateFn: func(ctx context.Context, id uuid.UUID, req *models.UpdateDiscountRequest) (*models.Discount, error) {
			return discount, nil
		},
	}
	h := NewDiscountHandler(catalog, testLogger())

	body, _ := json.Marshal(models.UpdateDiscountRequest{Name: "Renamed"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/discounts/"+discount.ID.String(), bytes.NewReader(body))

	h.UpdateDiscount(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestDiscountHandler_DeleteDiscount(t *testing.T) {
	catalog := &mockCatalog{
		deleteFn: func(ctx context.Context, id uuid.UUID) error { return nil },
	}
	h := NewDiscountHandler(catalog, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/discounts/"+uuid.New().String(), nil)

	h.DeleteDiscount(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestDiscountHandler_DeleteDiscount_Assigned(t *testing.T) {
	catalog := &mockCatalog{
		deleteFn: func(ctx context.Context, id uuid.UUID) error {
			return apperror.Conflict("discount is assigned to users, deactivate it instead", nil)
		},
	}
	h := NewDiscountHandler(catalog, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/discounts/"+uuid.New().String(), nil)

	h.DeleteDiscount(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestDiscountHandler_MethodNotAllowed(t *testing.T) {
	h := NewDiscountHandler(&mockCatalog{}, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/discounts", nil)

	h.CreateDiscount(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
