// Package metrics derives status, progress and aggregate figures from goals.
// All functions are pure; the reference date is always passed in.
package metrics

import (
	"github.com/shopspring/decimal"

	"goalplanner/internal/core"
)

// NearDeadlineDays is the inclusive upper bound of the NearDeadline window.
const NearDeadlineDays = 30

type Status string

const (
	Completed    Status = "completed"
	Overdue      Status = "overdue"
	NearDeadline Status = "near_deadline"
	OnTrack      Status = "on_track"
)

// Label is the human readable status.
func (s Status) Label() string {
	switch s {
	case Completed:
		return "Completed"
	case Overdue:
		return "Overdue"
	case NearDeadline:
		return "Near Deadline"
	default:
		return "On Track"
	}
}

type Overview struct {
	TotalGoals     int        `json:"totalGoals"`
	TotalSaved     core.Money `json:"totalSaved"`
	CompletedCount int        `json:"completedCount"`
}

// GoalReport is the per-goal view shown in the overview.
type GoalReport struct {
	Goal      core.Goal  `json:"goal"`
	Status    Status     `json:"status"`
	DaysLeft  int        `json:"daysLeft"`
	Remaining core.Money `json:"remaining"`
	// Percent is saved/target*100 rounded to one decimal, nil for a zero target.
	Percent *decimal.Decimal `json:"percent"`
}

// DaysLeft returns the whole days from ref to deadline, negative once the
// deadline has passed.
func DaysLeft(deadline, ref core.Date) int {
	return ref.DaysUntil(deadline)
}

// StatusOf classifies a goal. Completion wins over any date rule, so a goal
// funded after its deadline is Completed rather than Overdue.
func StatusOf(g core.Goal, ref core.Date) Status {
	if g.Completed() {
		return Completed
	}
	days := DaysLeft(g.Deadline, ref)
	switch {
	case days < 0:
		return Overdue
	case days <= NearDeadlineDays:
		return NearDeadline
	default:
		return OnTrack
	}
}

func Summarize(goals []core.Goal) Overview {
	ov := Overview{TotalGoals: len(goals), TotalSaved: core.Zero()}
	for _, g := range goals {
		ov.TotalSaved = ov.TotalSaved.Add(g.SavedAmount)
		if g.Completed() {
			ov.CompletedCount++
		}
	}
	return ov
}

// ProgressRatio returns saved/target. ok is false when the target is zero.
func ProgressRatio(g core.Goal) (ratio decimal.Decimal, ok bool) {
	if g.TargetAmount.IsZero() {
		return decimal.Zero, false
	}
	return g.SavedAmount.Div(g.TargetAmount.Decimal), true
}

// Remaining returns what is left to save, never negative.
func Remaining(g core.Goal) core.Money {
	left := g.TargetAmount.Sub(g.SavedAmount.Decimal)
	if left.IsNegative() {
		return core.Zero()
	}
	return core.NewMoney(left)
}

// Report builds a GoalReport for each goal in order.
func Report(goals []core.Goal, ref core.Date) []GoalReport {
	out := make([]GoalReport, 0, len(goals))
	for _, g := range goals {
		r := GoalReport{
			Goal:      g,
			Status:    StatusOf(g, ref),
			DaysLeft:  DaysLeft(g.Deadline, ref),
			Remaining: Remaining(g),
		}
		if ratio, ok := ProgressRatio(g); ok {
			pct := ratio.Mul(decimal.NewFromInt(100)).Round(1)
			r.Percent = &pct
		}
		out = append(out, r)
	}
	return out
}

// ByCategory totals saved and target amounts per category, in first-seen order.
func ByCategory(goals []core.Goal) []core.CategoryTotal {
	idx := make(map[string]int)
	var out []core.CategoryTotal
	for _, g := range goals {
		name := g.Category
		if name == "" {
			name = "(uncategorized)"
		}
		i, ok := idx[name]
		if !ok {
			i = len(out)
			idx[name] = i
			out = append(out, core.CategoryTotal{Name: name, Saved: core.Zero(), Target: core.Zero()})
		}
		out[i].Goals++
		out[i].Saved = out[i].Saved.Add(g.SavedAmount)
		out[i].Target = out[i].Target.Add(g.TargetAmount)
	}
	return out
}
