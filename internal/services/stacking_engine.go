package services

import (
	"sort"
	"strings"

	"discount-system/internal/config"
	"discount-system/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// StackStep описывает один шаг последовательного применения скидок.
// Amount хранится без округления; RemainingBefore и RemainingAfter держат
// остаток суммы до и после шага, для них выполняется
// RemainingAfter = RemainingBefore - Amount.
type StackStep struct {
	Binding         *models.UserDiscount
	Amount          decimal.Decimal
	RemainingBefore decimal.Decimal
	RemainingAfter  decimal.Decimal
}

// StackingResult содержит итог работы движка суммирования.
type StackingResult struct {
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	Steps          []StackStep
}

// StackingEngine вычисляет последовательное применение скидок к сумме.
// Движок чистый: не имеет побочных эффектов и при одинаковых входах
// возвращает одинаковый результат. Фиксацию инкрементов использования и
// записей аудита выполняет вызывающая сторона.
type StackingEngine struct {
	maxPercentageCap   decimal.Decimal
	allowNegativeFinal bool
	roundingMode       string
	decimalPlaces      int32
}

// NewStackingEngine создает движок с правилами из конфигурации.
func NewStackingEngine(stacking *config.StackingConfig, rounding *config.RoundingConfig) *StackingEngine {
	cap := decimal.NewFromFloat(stacking.MaxPercentageCap)
	if cap.LessThan(decimal.Zero) {
		cap = decimal.Zero
	}
	if cap.GreaterThan(hundred) {
		cap = hundred
	}

	places := rounding.DecimalPlaces
	if places < 0 {
		places = 0
	}

	return &StackingEngine{
		maxPercentageCap:   cap,
		allowNegativeFinal: stacking.AllowNegativeFinal,
		roundingMode:       strings.ToLower(rounding.Mode),
		decimalPlaces:      int32(places),
	}
}

// Stack применяет привязки к baseAmount в порядке stacking_order (стабильная
// сортировка: при равенстве сохраняется исходный порядок выборки).
//
// Совокупный процентный потолок проверяется на каждом шаге относительно
// ИСХОДНОЙ базовой суммы, включая вклад фиксированных скидок; поведение
// унаследовано намеренно и закреплено тестами.
func (e *StackingEngine) Stack(baseAmount decimal.Decimal, bindings []*models.UserDiscount) *StackingResult {
	ordered := make([]*models.UserDiscount, len(bindings))
	copy(ordered, bindings)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Discount.StackingOrder < ordered[j].Discount.StackingOrder
	})

	maxAllowed := baseAmount.Mul(e.maxPercentageCap).Div(hundred)

	remaining := baseAmount
	totalDiscount := decimal.Zero
	var steps []StackStep

	for _, binding := range ordered {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		// Повторная проверка лимита: выборка доступности выполнялась до
		// входа в цикл, привязка могла исчерпаться.
		if binding.Discount == nil || binding.HasReachedUsageLimit() {
			continue
		}

		raw := binding.Discount.CalculateDiscountAmount(remaining)
		if raw.LessThanOrEqual(decimal.Zero) {
			continue
		}

		alreadyApplied := baseAmount.Sub(remaining)
		if alreadyApplied.Add(raw).GreaterThan(maxAllowed) {
			raw = maxAllowed.Sub(alreadyApplied)
			if raw.LessThanOrEqual(decimal.Zero) {
				continue
			}
		}

		before := remaining
		remaining = remaining.Sub(raw)
		totalDiscount = totalDiscount.Add(raw)

		steps = append(steps, StackStep{
			Binding:         binding,
			Amount:          raw,
			RemainingBefore: before,
			RemainingAfter:  remaining,
		})
	}

	// Защитный пол: шаг с потолком не даёт уйти в минус, но при
	// разрешённом отрицательном итоге клампа нет.
	if remaining.LessThan(decimal.Zero) && !e.allowNegativeFinal {
		remaining = decimal.Zero
		totalDiscount = baseAmount
	}

	return &StackingResult{
		OriginalAmount: baseAmount,
		DiscountAmount: e.RoundAmount(totalDiscount),
		FinalAmount:    e.RoundAmount(remaining),
		Steps:          steps,
	}
}

// RoundAmount округляет сумму согласно конфигурации. Режим round использует
// округление половины от нуля (decimal.Round); floor и ceil округляют к
// меньшему и большему значению соответственно.
func (e *StackingEngine) RoundAmount(amount decimal.Decimal) decimal.Decimal {
	switch e.roundingMode {
	case "floor":
		return amount.RoundFloor(e.decimalPlaces)
	case "ceil":
		return amount.RoundCeil(e.decimalPlaces)
	default:
		return amount.Round(e.decimalPlaces)
	}
}
