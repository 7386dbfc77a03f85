package usage

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/j-veylop/codequota/internal/models"
)

// planTiers are the known premium request allowances, ascending.
var planTiers = []int{50, 300, 1500}

// defaultPlanLimit is assumed when no allowance was consumed yet.
const defaultPlanLimit = 300

const unknownModel = "Unknown"

var (
	itemListKeys = []string{"usageItems", "usage_items"}

	grossFields = []field[int]{
		{key: "grossQuantity", extract: quantity},
		{key: "gross_quantity", extract: quantity},
	}
	discountFields = []field[int]{
		{key: "discountQuantity", extract: quantity},
		{key: "discount_quantity", extract: quantity},
	}
)

// ParseCopilot decodes a Copilot premium request billing response.
func ParseCopilot(data []byte) (models.CopilotUsage, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return models.CopilotUsage{}, err
	}

	var used, discount int
	var byModel []models.ModelCount

	for _, item := range usageItems(obj) {
		model, _ := item["model"].(string)
		if model == "" {
			model = unknownModel
		}
		gross, _ := firstPresent(item, grossFields)
		disc, _ := firstPresent(item, discountFields)

		used += gross
		discount += disc
		byModel = append(byModel, models.ModelCount{Model: model, Count: gross})
	}

	byModel = lo.Filter(byModel, func(m models.ModelCount, _ int) bool {
		return m.Count > 0
	})
	slices.SortStableFunc(byModel, func(a, b models.ModelCount) int {
		return cmp.Compare(b.Count, a.Count)
	})

	limit := defaultPlanLimit
	if discount > 0 {
		limit = InferLimit(discount)
	}

	var percent float64
	if limit > 0 {
		percent = min(float64(used)/float64(limit)*100, 100)
	}

	return models.CopilotUsage{
		Used:    used,
		Limit:   limit,
		Percent: percent,
		ByModel: byModel,
	}, nil
}

// InferLimit rounds an allowance up to the nearest known plan tier. Values
// above every tier are returned unchanged.
func InferLimit(discount int) int {
	if tier, ok := lo.Find(planTiers, func(t int) bool { return discount <= t }); ok {
		return tier
	}
	return discount
}

// CoerceInt reads an integer from a JSON number or numeric string.
// Booleans, negative values and anything else yield 0.
func CoerceInt(v any) int {
	n, _ := quantity(v)
	return n
}

func quantity(v any) (int, bool) {
	var n int
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		n = int(val)
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.Atoi(s); err == nil {
			n = i
		} else if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			n = int(f)
		} else {
			return 0, false
		}
	default:
		return 0, false
	}
	return max(n, 0), true
}

// usageItems returns the object elements of the first alias holding a list.
func usageItems(obj map[string]any) []map[string]any {
	for _, key := range itemListKeys {
		list, ok := obj[key].([]any)
		if !ok {
			continue
		}
		var items []map[string]any
		for _, raw := range list {
			if item, ok := raw.(map[string]any); ok {
				items = append(items, item)
			}
		}
		return items
	}
	return nil
}
