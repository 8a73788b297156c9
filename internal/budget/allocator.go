// Package budget turns a recommended percentage split into validated,
// platform-scoped absolute daily budgets.
package budget

import (
	"errors"
	"fmt"

	"github.com/adlaunch/adlaunch/internal/models"
)

// ErrInvalidBudget is returned when the requested total is not positive
// or when no platform survives allocation.
var ErrInvalidBudget = errors.New("invalid budget")

// Recommendation is one entry of the external recommender's split. The
// percentages are a hint, not ground truth: they may not sum to 100 and
// may name platforms the caller is not connected to.
type Recommendation struct {
	Platform string  `json:"platform"`
	Percent  float64 `json:"percent"`
}

// Allocation is the result of a split: the surviving budgets, the
// platforms dropped along the way with reasons, and which strategy
// produced the numbers.
type Allocation struct {
	Split    models.BudgetSplit
	Dropped  []models.DroppedPlatform
	Strategy models.BudgetStrategy
}

// Allocate distributes totalDailyBudget (minor units) across connected
// platforms.
//
// Recommended percentages are clamped to [0,100] and scaled down when
// they sum above 100; duplicate entries for one platform are summed
// into a single share first. Budget mass recommended to unconnected
// platforms is dropped, never redistributed. When the recommendation is empty or
// names only unconnected platforms, the budget falls back to an equal
// split across all connected platforms. Per-platform results below the
// platform's minimum spend are dropped rather than rounded up, so the
// split total never exceeds the caller's stated cap.
func Allocate(totalDailyBudget int64, recommended []Recommendation, connected []models.Platform, minimums map[models.Platform]int64) (Allocation, error) {
	if totalDailyBudget <= 0 {
		return Allocation{}, fmt.Errorf("%w: total daily budget must be positive, got %d", ErrInvalidBudget, totalDailyBudget)
	}

	connectedSet := make(map[models.Platform]bool, len(connected))
	for _, p := range connected {
		connectedSet[p] = true
	}

	alloc := Allocation{
		Split:    make(models.BudgetSplit),
		Strategy: models.StrategyRecommended,
	}

	// Retain only connected platforms; record the rest. Duplicate
	// entries for one platform sum into a single share so no mass is
	// silently lost to a map overwrite later.
	percents := make(map[models.Platform]float64)
	var order []models.Platform
	droppedSet := make(map[models.Platform]bool)
	for _, rec := range recommended {
		p := models.Platform(rec.Platform)
		pct := rec.Percent
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		if !connectedSet[p] {
			if !droppedSet[p] {
				droppedSet[p] = true
				alloc.Dropped = append(alloc.Dropped, models.DroppedPlatform{
					Platform: p,
					Reason:   models.DropNotConnected,
				})
			}
			continue
		}
		if pct == 0 {
			continue
		}
		if _, ok := percents[p]; !ok {
			order = append(order, p)
		}
		percents[p] += pct
	}
	var clampedSum float64
	for _, p := range order {
		if percents[p] > 100 {
			percents[p] = 100
		}
		clampedSum += percents[p]
	}

	if len(order) == 0 {
		// Recommendation absent, empty, or entirely unconnected: equal
		// split across every connected platform. This is a policy
		// decision surfaced to the caller via the strategy field.
		alloc.Strategy = models.StrategyEqualFallback
		for _, p := range connected {
			order = append(order, p)
			percents[p] = 100 / float64(len(connected))
		}
		clampedSum = 100
	}

	// Scale down when the hint over-allocates; under-allocation leaves
	// the remainder unassigned.
	scale := 1.0
	if clampedSum > 100 {
		scale = 100 / clampedSum
	}

	for _, p := range order {
		// truncate, never round up: the sum must stay under the cap
		amount := int64(float64(totalDailyBudget) * percents[p] * scale / 100)
		if amount < minimums[p] || amount <= 0 {
			alloc.Dropped = append(alloc.Dropped, models.DroppedPlatform{
				Platform: p,
				Reason:   models.DropBelowMinimum,
			})
			continue
		}
		alloc.Split[p] = amount
	}

	if len(alloc.Split) == 0 {
		return Allocation{}, fmt.Errorf("%w: no platform survives allocation", ErrInvalidBudget)
	}
	return alloc, nil
}
