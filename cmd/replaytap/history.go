package main

import (
	"fmt"

	"github.com/funnyzak/replaytap/internal/journal"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/pkg/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List journaled replay runs or show the outcomes of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if err := cfg.RequireJournal(); err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)
			ctx := cmd.Context()

			j, err := journal.New(&cfg.Storage, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := j.Close(); err != nil {
					log.Warn("Failed to close journal", "error", err)
				}
			}()

			p := newPrinter(cmd, cfg, log)
			if len(args) == 0 {
				runs, err := j.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				return p.PrintRuns(runs)
			}

			run, err := j.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			outcomes, err := j.Outcomes(ctx, run.ID)
			if err != nil {
				return err
			}

			report := &session.Report{
				Context:         session.Context{SessionID: run.ID, Name: run.Name},
				SourceSessionID: run.SourceSessionID,
				Mode:            run.Mode,
				DryRun:          run.DryRun,
				Records:         run.Records,
				StartedAt:       run.StartedAt,
				FinishedAt:      run.FinishedAt,
			}
			if err := p.PrintStart(report); err != nil {
				return err
			}
			for _, o := range outcomes {
				if err := p.PrintOutcome(o); err != nil {
					return err
				}
			}
			report.Outcomes = outcomes
			return p.PrintSummary(report)
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}
