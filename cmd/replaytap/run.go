package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/funnyzak/replaytap/internal/body"
	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/internal/dispatch"
	"github.com/funnyzak/replaytap/internal/fetcher"
	"github.com/funnyzak/replaytap/internal/journal"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/internal/printer"
	"github.com/funnyzak/replaytap/internal/replay"
	"github.com/funnyzak/replaytap/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runReplay(v *viper.Viper) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, v)
		if err != nil {
			return err
		}
		if err := cfg.RequireSession(); err != nil {
			return err
		}
		if err := cfg.RequireCredentials(!cfg.Replay.DryRun); err != nil {
			return err
		}

		log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdown, err := telemetry.Setup(ctx, &cfg.Telemetry, version)
		if err != nil {
			log.Warn("Tracing disabled", "error", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				log.Warn("Failed to flush spans", "error", err)
			}
		}()

		if cfg.Output.Mode != "json" && !cfg.Output.Silence {
			printStartupBanner(cmd.OutOrStdout(), cfg, log)
		}

		dispatcher := newDispatcher(cfg, log)
		defer dispatcher.Close()

		deps := replay.Dependencies{
			Fetcher:    newFetcher(cfg, log),
			Loader:     newLoader(cfg, log),
			Mutator:    newMutator(cfg),
			Classifier: newClassifier(cfg),
			Dispatcher: dispatcher,
			Printer:    newPrinter(cmd, cfg, log),
		}

		if cfg.Storage.Enable {
			j, err := journal.New(&cfg.Storage, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := j.Close(); err != nil {
					log.Warn("Failed to close journal", "error", err)
				}
			}()
			deps.Journal = j
		}

		report, runErr := replay.New(log, replay.OptionsFromConfig(cfg), deps).Run(ctx)
		if report != nil && cfg.Output.Report != "" {
			if err := printer.WriteReport(cfg.Output.Report, report); err != nil {
				log.Error("Failed to write report", "path", cfg.Output.Report, "error", err)
			} else {
				log.Info("Report written", "path", cfg.Output.Report)
			}
		}
		return runErr
	}
}

func newDispatcher(cfg *config.Config, log logger.Logger) *dispatch.Dispatcher {
	rules := make([]dispatch.RewriteRuleOption, 0, len(cfg.Downstream.URLStrategy.Rules))
	for _, r := range cfg.Downstream.URLStrategy.Rules {
		rules = append(rules, dispatch.RewriteRuleOption{Name: r.Name, Match: r.Match, Replace: r.Replace, Regex: r.Regex})
	}
	return dispatch.NewDispatcher(log.With("component", "dispatcher"), dispatch.Options{
		APIKey:                cfg.Downstream.APIKey,
		LogAPIKey:             cfg.Helicone.APIKey,
		MaxIdleConns:          cfg.Downstream.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.Downstream.MaxIdleConnsPerHost,
		IdleConnTimeout:       seconds(cfg.Downstream.IdleConnTimeout),
		ResponseHeaderTimeout: seconds(cfg.Downstream.ResponseHeaderTimeout),
		TLSHandshakeTimeout:   seconds(cfg.Downstream.TLSHandshakeTimeout),
		TLSInsecureSkipVerify: cfg.Downstream.TLSInsecureSkipVerify,
		URLStrategy: dispatch.URLStrategyOptions{
			Mode:  cfg.Downstream.URLStrategy.Mode,
			Rules: rules,
		},
	})
}

func newMutator(cfg *config.Config) *body.Mutator {
	return body.NewMutator(body.MutatorOptions{
		Enable:        cfg.Mutation.Enable,
		SystemSuffix:  cfg.Mutation.SystemSuffix,
		SystemContent: cfg.Mutation.SystemContent,
	})
}

func newFetcher(cfg *config.Config, log logger.Logger) *fetcher.Fetcher {
	return fetcher.New(log.With("component", "fetcher"), fetcher.Options{
		QueryURL:         cfg.Helicone.QueryURL,
		APIKey:           cfg.Helicone.APIKey,
		Timeout:          seconds(cfg.Helicone.Timeout),
		Limit:            cfg.Helicone.QueryLimit,
		MaxResponseBytes: cfg.Helicone.MaxResponseBytes,
	})
}

func newLoader(cfg *config.Config, log logger.Logger) *body.Loader {
	return body.NewLoader(log.With("component", "loader"), body.LoaderOptions{MaxBytes: cfg.Replay.MaxBodyBytes})
}

func newClassifier(cfg *config.Config) *dispatch.Classifier {
	return dispatch.NewClassifier(dispatch.ClassifierOptions{
		ChatMarker:      cfg.Dispatch.ChatMarker,
		EmbeddingMarker: cfg.Dispatch.EmbeddingMarker,
		IgnorableTypes:  cfg.Dispatch.IgnorableTypes,
	})
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
