// Package filter selects subsets of a goal collection.
package filter

import (
	"goalplanner/internal/core"
	"goalplanner/internal/metrics"
)

// DefaultFarThreshold is the minimum number of days left for a goal to count as far.
const DefaultFarThreshold = 24

// FarGoals returns the goals whose deadline is at least thresholdDays after
// ref, in their original order. The input is never modified.
func FarGoals(goals []core.Goal, ref core.Date, thresholdDays int) []core.Goal {
	out := make([]core.Goal, 0, len(goals))
	for _, g := range goals {
		if metrics.DaysLeft(g.Deadline, ref) >= thresholdDays {
			out = append(out, g)
		}
	}
	return out
}
