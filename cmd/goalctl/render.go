package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"goalplanner/internal/amqp"
	"goalplanner/internal/core"
	"goalplanner/internal/metrics"
	"goalplanner/internal/store"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))

	statusStyles = map[metrics.Status]lipgloss.Style{
		metrics.Completed:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		metrics.Overdue:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		metrics.NearDeadline: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		metrics.OnTrack:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	}
)

func statusBadge(s metrics.Status) string {
	return statusStyles[s].Render(s.Label())
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, warningStyle.Render("Warning:"), msg)
}

// printOutcome reports a mutation, flagging changes that only exist locally.
func printOutcome(w, errW io.Writer, verb string, out store.Outcome) {
	fmt.Fprintf(w, "%s goal %s %s\n", verb, out.Goal.ID, mutedStyle.Render(out.Goal.Name))
	if out.Degraded {
		printWarning(errW, fmt.Sprintf("remote service unavailable, change saved locally (%v)", out.Cause))
	}
}

// deadlineText renders the days left relative to ref, e.g. "in 3 weeks".
func deadlineText(deadline, ref core.Date) string {
	days := metrics.DaysLeft(deadline, ref)
	if days == 0 {
		return "today"
	}
	return humanize.RelTime(deadline.Time, ref.Time, "ago", "from now")
}

func progressText(r metrics.GoalReport) string {
	if r.Percent == nil {
		return "-"
	}
	return r.Percent.StringFixed(1) + "%"
}

// writeGoalTable prints one row per goal report.
func writeGoalTable(w io.Writer, reports []metrics.GoalReport, ref core.Date) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("No goals."))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{"ID", "NAME", "CATEGORY", "SAVED", "TARGET", "PROGRESS", "DEADLINE", "STATUS"}, "\t"))
	for _, r := range reports {
		g := r.Goal
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s (%s)\t%s\n",
			g.ID,
			g.Name,
			g.Category,
			g.SavedAmount.Format(),
			g.TargetAmount.Format(),
			progressText(r),
			g.Deadline.String(),
			deadlineText(g.Deadline, ref),
			statusBadge(r.Status),
		)
	}
	return tw.Flush()
}

// writeOverview prints the summary block followed by category totals.
func writeOverview(w io.Writer, ov metrics.Overview, categories []core.CategoryTotal) error {
	fmt.Fprintln(w, headerStyle.Render("Overview"))
	fmt.Fprintf(w, "  Goals:      %d\n", ov.TotalGoals)
	fmt.Fprintf(w, "  Saved:      %s\n", ov.TotalSaved.Format())
	fmt.Fprintf(w, "  Completed:  %d\n", ov.CompletedCount)

	if len(categories) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tGOALS\tSAVED\tTARGET")
	for _, c := range categories {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.Name, c.Goals, c.Saved.Format(), c.Target.Format())
	}
	return tw.Flush()
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func writeAdvisory(w io.Writer, msg *amqp.GoalAdvisoryMessage) {
	line := fmt.Sprintf("%s  %-15s %-8s", mutedStyle.Render(formatTimestamp(msg.Timestamp)), msg.Kind, msg.Op)
	if msg.GoalID != "" {
		line += " goal " + msg.GoalID
	}
	if msg.Error != "" {
		line += " " + errorStyle.Render(msg.Error)
	}
	fmt.Fprintln(w, line)
}
