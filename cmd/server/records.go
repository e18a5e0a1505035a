package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ohrner-it/task-timr/allocation"
	"github.com/ohrner-it/task-timr/api"
)

func recordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "records <working-time-id>",
		Short: "Print a working time's task durations and allocation status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			period, err := a.built.Backend.GetWorkingPeriod(ctx, allocation.PeriodID(args[0]))
			if err != nil {
				return err
			}
			res, err := a.built.Service.GetDurationRecords(ctx, period)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
}

func setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <working-time-id> <task-id> <minutes|none>",
		Short: "Set a task's minutes on a working time",
		Long: `Set a task's minutes on a working time and rewrite its slots.

Minutes must be positive; "none" removes the task from the working time.

Examples:
  task-timr set 4711 task-backend 90
  task-timr set 4711 task-backend none`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := parseMinutes(args[2])
			if err != nil {
				return err
			}

			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			period, err := a.built.Backend.GetWorkingPeriod(ctx, allocation.PeriodID(args[0]))
			if err != nil {
				return err
			}
			res, err := a.built.Service.ApplyDurationChange(ctx, period, allocation.TaskID(args[1]), minutes)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
}

// parseMinutes reads a positive minute count, or "none" for removal.
func parseMinutes(s string) (*int, error) {
	if strings.EqualFold(s, "none") {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("minutes must be a positive integer or \"none\", got %q", s)
	}
	return &n, nil
}

func printResult(w io.Writer, res *allocation.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(api.NewDurationsResponse(res, time.Now()))
}
