package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func intPtr(v int) *int { return &v }

func TestDiscount_IsValid(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		discount Discount
		want     bool
	}{
		{"active without window", Discount{IsActive: true}, true},
		{"inactive", Discount{IsActive: false}, false},
		{"not started yet", Discount{IsActive: true, StartsAt: &future}, false},
		{"already started", Discount{IsActive: true, StartsAt: &past}, true},
		{"expired", Discount{IsActive: true, ExpiresAt: &past}, false},
		{"not expired", Discount{IsActive: true, ExpiresAt: &future}, true},
		{"expiry boundary is exclusive", Discount{IsActive: true, ExpiresAt: &now}, false},
		{"total limit reached", Discount{IsActive: true, MaxTotalUsage: intPtr(5), CurrentUsage: 5}, false},
		{"total limit not reached", Discount{IsActive: true, MaxTotalUsage: intPtr(5), CurrentUsage: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.discount.IsValid(now); got != tt.want {
				t.Fatalf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiscount_CalculateDiscountAmount_Percentage(t *testing.T) {
	d := Discount{Kind: DiscountKindPercentage, Value: dec("10")}

	got := d.CalculateDiscountAmount(dec("200"))
	if !got.Equal(dec("20")) {
		t.Fatalf("expected 20, got %s", got)
	}

	// Промежуточное значение не округляется.
	got = d.CalculateDiscountAmount(dec("95"))
	if !got.Equal(dec("9.5")) {
		t.Fatalf("expected 9.5, got %s", got)
	}
}

func TestDiscount_CalculateDiscountAmount_PercentageCapped(t *testing.T) {
	d := Discount{
		Kind:      DiscountKindPercentage,
		Value:     dec("50"),
		MaxAmount: decimal.NullDecimal{Decimal: dec("30"), Valid: true},
	}

	got := d.CalculateDiscountAmount(dec("100"))
	if !got.Equal(dec("30")) {
		t.Fatalf("expected cap 30, got %s", got)
	}
}

func TestDiscount_CalculateDiscountAmount_Fixed(t *testing.T) {
	d := Discount{Kind: DiscountKindFixed, Value: dec("50")}

	if got := d.CalculateDiscountAmount(dec("200")); !got.Equal(dec("50")) {
		t.Fatalf("expected 50, got %s", got)
	}
	// Фиксированная скидка не превышает базовую сумму.
	if got := d.CalculateDiscountAmount(dec("30")); !got.Equal(dec("30")) {
		t.Fatalf("expected 30, got %s", got)
	}
}

func TestDiscount_CalculateDiscountAmount_Bounds(t *testing.T) {
	bases := []string{"0", "0.01", "1", "99.99", "1000000"}
	discounts := []Discount{
		{Kind: DiscountKindPercentage, Value: dec("0")},
		{Kind: DiscountKindPercentage, Value: dec("33.33")},
		{Kind: DiscountKindPercentage, Value: dec("100")},
		{Kind: DiscountKindFixed, Value: dec("0")},
		{Kind: DiscountKindFixed, Value: dec("17.50")},
		{Kind: DiscountKindFixed, Value: dec("999999")},
	}

	for _, d := range discounts {
		for _, b := range bases {
			base := dec(b)
			got := d.CalculateDiscountAmount(base)
			if got.IsNegative() {
				t.Fatalf("negative discount %s for kind=%s value=%s base=%s", got, d.Kind, d.Value, base)
			}
			if d.Kind == DiscountKindFixed {
				if got.GreaterThan(base) || got.GreaterThan(d.Value) {
					t.Fatalf("fixed discount %s out of [0, min(value, base)] for value=%s base=%s", got, d.Value, base)
				}
			}
		}
	}
}

func TestDiscount_CalculateDiscountAmount_UnknownKind(t *testing.T) {
	d := Discount{Kind: DiscountKind("bogus"), Value: dec("10")}
	if got := d.CalculateDiscountAmount(dec("100")); !got.IsZero() {
		t.Fatalf("expected zero for unknown kind, got %s", got)
	}
}

func TestDiscount_ExpiryHelpers(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)

	d := Discount{IsActive: true, ExpiresAt: &past}
	if !d.IsExpired(now) {
		t.Fatalf("expected expired")
	}

	d = Discount{IsActive: true, MaxTotalUsage: intPtr(2), CurrentUsage: 2}
	if !d.HasReachedTotalLimit() {
		t.Fatalf("expected total limit reached")
	}
}
