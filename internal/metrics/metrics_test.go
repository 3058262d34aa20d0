package metrics

import (
	"testing"

	"goalplanner/internal/core"
)

var ref = core.NewDate(2025, 3, 1)

func goal(target, saved int64, deadline core.Date) core.Goal {
	return core.Goal{
		ID:           "g",
		Name:         "g",
		TargetAmount: core.MoneyFromInt(target),
		SavedAmount:  core.MoneyFromInt(saved),
		Deadline:     deadline,
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name string
		g    core.Goal
		want Status
	}{
		{"near deadline", goal(1000, 400, ref.AddDays(10)), NearDeadline},
		{"completed exactly", goal(1000, 1000, ref.AddDays(10)), Completed},
		{"overfunded", goal(100, 150, ref.AddDays(100)), Completed},
		{"completed past deadline", goal(100, 100, ref.AddDays(-5)), Completed},
		{"overdue", goal(100, 50, ref.AddDays(-5)), Overdue},
		{"due today", goal(100, 50, ref), NearDeadline},
		{"thirty days", goal(100, 50, ref.AddDays(30)), NearDeadline},
		{"thirty one days", goal(100, 50, ref.AddDays(31)), OnTrack},
		{"yesterday", goal(100, 50, ref.AddDays(-1)), Overdue},
		{"zero target", goal(0, 0, ref.AddDays(-1)), Completed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusOf(tc.g, ref); got != tc.want {
				t.Fatalf("StatusOf = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestStatusIsExhaustive(t *testing.T) {
	valid := map[Status]bool{Completed: true, Overdue: true, NearDeadline: true, OnTrack: true}
	for days := -400; days <= 400; days += 7 {
		for _, saved := range []int64{0, 50, 100, 200} {
			s := StatusOf(goal(100, saved, ref.AddDays(days)), ref)
			if !valid[s] {
				t.Fatalf("days=%d saved=%d produced %q", days, saved, s)
			}
		}
	}
}

func TestDepositCompletesGoal(t *testing.T) {
	g := goal(1000, 400, ref.AddDays(10))
	if StatusOf(g, ref) != NearDeadline {
		t.Fatalf("expected near deadline before deposit")
	}
	g.SavedAmount = g.SavedAmount.Add(core.MoneyFromInt(600))
	if StatusOf(g, ref) != Completed {
		t.Fatalf("expected completed after deposit")
	}
}

func TestDaysLeft(t *testing.T) {
	if d := DaysLeft(ref.AddDays(45), ref); d != 45 {
		t.Fatalf("expected 45, got %d", d)
	}
	if d := DaysLeft(ref.AddDays(-3), ref); d != -3 {
		t.Fatalf("expected -3, got %d", d)
	}
}

func TestSummarize(t *testing.T) {
	ov := Summarize([]core.Goal{goal(100, 100, ref), goal(200, 50, ref)})
	if ov.TotalGoals != 2 || ov.CompletedCount != 1 || !ov.TotalSaved.Equal(core.MoneyFromInt(150)) {
		t.Fatalf("unexpected overview %+v", ov)
	}
	empty := Summarize(nil)
	if empty.TotalGoals != 0 || !empty.TotalSaved.IsZero() || empty.CompletedCount != 0 {
		t.Fatalf("unexpected empty overview %+v", empty)
	}
}

func TestProgressRatio(t *testing.T) {
	r, ok := ProgressRatio(goal(200, 50, ref))
	if !ok || r.String() != "0.25" {
		t.Fatalf("expected 0.25, got %s ok=%v", r, ok)
	}
	if _, ok := ProgressRatio(goal(0, 50, ref)); ok {
		t.Fatalf("zero target must not yield a ratio")
	}
}

func TestReport(t *testing.T) {
	goals := []core.Goal{goal(3, 1, ref.AddDays(40)), goal(0, 0, ref.AddDays(1)), goal(10, 15, ref)}
	rep := Report(goals, ref)
	if len(rep) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(rep))
	}
	if rep[0].Percent == nil || rep[0].Percent.String() != "33.3" || rep[0].Status != OnTrack || rep[0].DaysLeft != 40 {
		t.Fatalf("unexpected first report %+v", rep[0])
	}
	if rep[1].Percent != nil {
		t.Fatalf("zero target should have no percent")
	}
	if !rep[2].Remaining.IsZero() || rep[2].Status != Completed {
		t.Fatalf("overfunded goal should have nothing remaining: %+v", rep[2])
	}
}

func TestByCategory(t *testing.T) {
	mk := func(cat string, target, saved int64) core.Goal {
		g := goal(target, saved, ref)
		g.Category = cat
		return g
	}
	totals := ByCategory([]core.Goal{mk("Travel", 100, 10), mk("Home", 50, 5), mk("Travel", 20, 20), mk("", 1, 0)})
	if len(totals) != 3 {
		t.Fatalf("expected 3 categories, got %+v", totals)
	}
	if totals[0].Name != "Travel" || totals[0].Goals != 2 || !totals[0].Saved.Equal(core.MoneyFromInt(30)) || !totals[0].Target.Equal(core.MoneyFromInt(120)) {
		t.Fatalf("unexpected travel totals %+v", totals[0])
	}
	if totals[1].Name != "Home" || totals[2].Name != "(uncategorized)" {
		t.Fatalf("order not preserved: %+v", totals)
	}
}
