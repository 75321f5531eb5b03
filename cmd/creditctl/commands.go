// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"creditlens/platform/orchestrator"
	"creditlens/platform/orchestrator/bureau"
	"creditlens/platform/orchestrator/history"
	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/shared/config"
)

// uploadCmd returns the command that copies local documents into the document store.
func uploadCmd(configPath *string) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload bureau documents to the document store",
		Long: `Upload .docx, .xlsx or .txt bureau documents to the configured document store.

Examples:
  creditctl upload financials_2024.xlsx
  creditctl upload --prefix acme/ annual_report.docx board_minutes.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("prefix") {
				prefix = cfg.Storage.Prefix
			}

			ctx := cmd.Context()
			store, err := orchestrator.OpenDocumentStore(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			if c, ok := store.(io.Closer); ok {
				defer c.Close()
			}

			out := cmd.OutOrStdout()
			for _, file := range args {
				ext := strings.ToLower(filepath.Ext(file))
				if !supported(ext) {
					return fmt.Errorf("unsupported document type %q: %s", ext, file)
				}
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				key := prefix + filepath.Base(file)
				if err := store.Put(ctx, key, data, mime.TypeByExtension(ext)); err != nil {
					return fmt.Errorf("failed to upload %s: %w", file, err)
				}
				fmt.Fprintf(out, "✅ Uploaded %s -> %s (%d bytes)\n", file, key, len(data))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix for the uploaded documents (default: storage.document_prefix)")
	return cmd
}

// summarizeCmd returns the command that builds and persists the bureau summary.
func summarizeCmd(configPath *string) *cobra.Command {
	var maxDocuments int

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize the newest bureau documents",
		Long: `Summarize the newest uploaded bureau documents and save the result as the
persisted summary used by the single-tool routes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := orchestrator.OpenDocumentStore(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			completer, _, err := orchestrator.NewReasoning(ctx, cfg.Reasoning)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-documents") {
				maxDocuments = cfg.Storage.MaxDocuments
			}

			producer := bureau.NewDocumentProducer(store, completer, bureau.DocumentOptions{
				Prefix:       cfg.Storage.Prefix,
				SummaryKey:   cfg.Storage.SummaryKey,
				MaxDocuments: maxDocuments,
				Poll:         reasoning.PollConfig{Attempts: cfg.Polling.Attempts, Interval: cfg.Polling.Interval},
			})
			result := producer.Produce(ctx)
			if result.IsFailed() {
				return fmt.Errorf("summary failed: %s", result.Error())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Summary)
			fmt.Fprintf(out, "\n✅ Summary saved to %s\n", cfg.Storage.SummaryKey)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDocuments, "max-documents", 1, "number of newest documents to summarize")
	return cmd
}

// runCmd returns the command that runs one analysis and prints the aggregate.
func runCmd(configPath *string) *cobra.Command {
	var strategy string
	var requirements []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a credit-risk analysis",
		Long: `Run a credit-risk analysis with the given strategy and print the aggregate as JSON.

Examples:
  creditctl run
  creditctl run --strategy conversational --requirement "assess covenant headroom"
  creditctl run --strategy direct`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch strategy {
			case history.StrategyDeterministic, history.StrategyConversational, history.StrategyDirect:
			default:
				return fmt.Errorf("unknown strategy %q (want deterministic, conversational or direct)", strategy)
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			comps, err := orchestrator.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			rec, err := execute(ctx, comps, strategy, requirements)
			if rec != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %s in %dms\n", rec.ID, rec.Status, rec.DurationMs)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec.Result)
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", history.StrategyDeterministic, "deterministic, conversational or direct")
	cmd.Flags().StringArrayVar(&requirements, "requirement", nil, "additional requirement for the conversational strategy (repeatable)")
	return cmd
}

func execute(ctx context.Context, comps *orchestrator.Components, strategy string, requirements []string) (*history.RunRecord, error) {
	switch strategy {
	case history.StrategyConversational:
		return comps.Conversation.Execute(ctx, requirements)
	case history.StrategyDirect:
		return comps.Conversation.ExecuteDirect(ctx)
	default:
		return comps.Pipeline.Execute(ctx)
	}
}

// runsCmd returns the command that reads the run history.
func runsCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [RUN_ID]",
		Short: "Show recorded runs",
		Long: `Show one run record, or the most recent runs, from the configured run history.
The memory history driver keeps nothing between processes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, closer, err := orchestrator.OpenHistory(ctx, cfg.History)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}

			if len(args) == 1 {
				rec, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			}

			runs, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			for _, rec := range runs {
				fmt.Fprintf(out, "%s  %-14s  %-9s  %s  %dms\n",
					rec.ID, rec.Strategy, rec.Status, rec.StartedAt.Format("2006-01-02 15:04:05"), rec.DurationMs)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func supported(ext string) bool {
	for _, e := range bureau.SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
