package main

import (
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/internal/plan"
	"github.com/funnyzak/replaytap/pkg/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newInspectCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the planned replay order of a session without replaying it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if err := cfg.RequireSession(); err != nil {
				return err
			}
			if err := cfg.RequireCredentials(false); err != nil {
				return err
			}
			classify, _ := cmd.Flags().GetBool("classify")
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)
			ctx := cmd.Context()

			records, err := newFetcher(cfg, log).FetchSession(ctx, cfg.Session.SourceID)
			if err != nil {
				return err
			}
			forest, err := plan.Build(records, plan.Options{
				Mode:            cfg.Replay.Mode,
				DuplicateAnchor: cfg.Replay.DuplicateAnchor,
				SortSiblings:    cfg.Replay.SortSiblings,
			})
			if err != nil {
				return err
			}

			var kinds map[int]session.Kind
			if classify {
				nodes := forest.Flatten()
				batch := make([]session.Record, len(nodes))
				for i, n := range nodes {
					batch[i] = n.Record
				}

				classifier := newClassifier(cfg)
				kinds = make(map[int]session.Kind, len(nodes))
				for i, res := range newLoader(cfg, log).Prefetch(ctx, batch, concurrency) {
					if res.Err != nil {
						log.Warn("Body unavailable", "record", res.Record.Label(), "error", res.Err)
						continue
					}
					kinds[nodes[i].Seq] = classifier.Classify(res.Record.RequestPath, res.Body)
				}
			}

			return newPrinter(cmd, cfg, log).PrintPlan(forest, kinds)
		},
	}

	cmd.Flags().Bool("classify", false, "Fetch bodies to show the call kind of every record")
	cmd.Flags().Int("concurrency", 4, "Parallel body fetches when classifying")
	return cmd
}
