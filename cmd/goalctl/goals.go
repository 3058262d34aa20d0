package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"goalplanner/internal/core"
	"goalplanner/internal/filter"
	"goalplanner/internal/metrics"
	"goalplanner/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals with progress and status",
	Long: `List goals in collection order with progress and status.

Examples:
  goalctl list
  goalctl list --far                 # deadline at least FAR_THRESHOLD_DAYS away
  goalctl list --far --threshold 90`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := referenceDate()
		if err != nil {
			return err
		}
		goals, err := selectGoals(cmd, ref)
		if err != nil {
			return err
		}
		return writeGoalTable(cmd.OutOrStdout(), metrics.Report(goals, ref), ref)
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a goal",
	Long: `Create a goal. New goals always start with nothing saved.

Example:
  goalctl add --name "New bike" --category Travel --target 1200 --deadline 2026-06-30`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		category, _ := cmd.Flags().GetString("category")
		targetStr, _ := cmd.Flags().GetString("target")
		deadlineStr, _ := cmd.Flags().GetString("deadline")

		target, err := core.ParseMoney(targetStr)
		if err != nil {
			return fmt.Errorf("invalid --target: %w", err)
		}
		deadline, err := core.ParseDate(deadlineStr)
		if err != nil {
			return fmt.Errorf("invalid --deadline: %w", err)
		}

		out, err := app.Store.Add(cmd.Context(), core.Draft{
			Name:         name,
			Category:     category,
			TargetAmount: target,
			Deadline:     deadline,
		})
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), "Created", out)
		return nil
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit ID AMOUNT",
	Short: "Add money to a goal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := core.ParseMoney(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		out, err := app.Store.Deposit(cmd.Context(), args[0], amount)
		if err != nil {
			return describeStoreError(args[0], err)
		}
		printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), "Deposited "+amount.Format()+" into", out)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change fields of a goal",
	Long: `Change fields of a goal. Only the flags given are updated.

Example:
  goalctl edit 3 --target 1500 --deadline 2026-09-30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		if p.IsEmpty() {
			return errors.New("nothing to change: pass at least one of --name, --category, --target, --saved, --deadline")
		}
		out, err := app.Store.Edit(cmd.Context(), args[0], p)
		if err != nil {
			return describeStoreError(args[0], err)
		}
		printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), "Updated", out)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Delete a goal",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := app.Store.Remove(cmd.Context(), args[0])
		if err != nil {
			return describeStoreError(args[0], err)
		}
		printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), "Removed", out)
		return nil
	},
}

func init() {
	addFarFlags(listCmd)

	addCmd.Flags().String("name", "", "Goal name")
	addCmd.Flags().String("category", "", "Goal category")
	addCmd.Flags().String("target", "", "Target amount, e.g. 1200 or 1200,50")
	addCmd.Flags().String("deadline", "", "Deadline (YYYY-MM-DD)")
	_ = addCmd.MarkFlagRequired("name")
	_ = addCmd.MarkFlagRequired("target")
	_ = addCmd.MarkFlagRequired("deadline")

	editCmd.Flags().String("name", "", "New name")
	editCmd.Flags().String("category", "", "New category")
	editCmd.Flags().String("target", "", "New target amount")
	editCmd.Flags().String("saved", "", "Overwrite the saved amount")
	editCmd.Flags().String("deadline", "", "New deadline (YYYY-MM-DD)")

	rootCmd.AddCommand(listCmd, addCmd, depositCmd, editCmd, removeCmd)
}

func addFarFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("far", false, "Only goals whose deadline is at least --threshold days away")
	cmd.Flags().Int("threshold", -1, "Far threshold in days, default FAR_THRESHOLD_DAYS")
}

// selectGoals returns the loaded goals, narrowed to the far ones when --far
// or --threshold is set.
func selectGoals(cmd *cobra.Command, ref core.Date) ([]core.Goal, error) {
	goals := app.Store.Snapshot()
	far, _ := cmd.Flags().GetBool("far")
	threshold, _ := cmd.Flags().GetInt("threshold")
	if cmd.Flags().Changed("threshold") {
		if threshold < 0 {
			return nil, fmt.Errorf("invalid --threshold %d: must be >= 0", threshold)
		}
		far = true
	} else {
		threshold = cfg.FarThresholdDays
	}
	if far {
		goals = filter.FarGoals(goals, ref, threshold)
	}
	return goals, nil
}

// patchFromFlags builds a patch from the flags that were explicitly set.
func patchFromFlags(cmd *cobra.Command) (core.Patch, error) {
	var p core.Patch
	flags := cmd.Flags()

	if flags.Changed("name") {
		v, _ := flags.GetString("name")
		p.Name = &v
	}
	if flags.Changed("category") {
		v, _ := flags.GetString("category")
		p.Category = &v
	}
	for _, f := range []struct {
		name string
		dst  **core.Money
	}{{"target", &p.TargetAmount}, {"saved", &p.SavedAmount}} {
		if !flags.Changed(f.name) {
			continue
		}
		v, _ := flags.GetString(f.name)
		m, err := core.ParseMoney(v)
		if err != nil {
			return core.Patch{}, fmt.Errorf("invalid --%s: %w", f.name, err)
		}
		*f.dst = &m
	}
	if flags.Changed("deadline") {
		v, _ := flags.GetString("deadline")
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Patch{}, fmt.Errorf("invalid --deadline: %w", err)
		}
		p.Deadline = &d
	}
	return p, nil
}

func describeStoreError(id string, err error) error {
	if errors.Is(err, store.ErrGoalNotFound) {
		return fmt.Errorf("no goal with id %q", id)
	}
	return err
}
