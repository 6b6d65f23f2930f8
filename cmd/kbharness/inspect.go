package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unamentis/kbharness/internal/config"
	"github.com/unamentis/kbharness/internal/resultstore"
	"github.com/unamentis/kbharness/internal/validate"
)

// inspectTimeout bounds the one-shot inspection commands, which each make a
// single provider or database round trip.
const inspectTimeout = 30 * time.Second

func newVoicesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices offered by the configured TTS provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Providers.TTS.Name == "" {
				return errors.New("no TTS provider configured")
			}

			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			p, err := reg.CreateTTS(cfg.Providers.TTS)
			if err != nil {
				return fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), inspectTimeout)
			defer cancel()
			voices, err := p.ListVoices(ctx)
			if err != nil {
				return fmt.Errorf("list voices: %w", err)
			}
			if len(voices) == 0 {
				fmt.Println("no voices reported")
				return nil
			}
			for _, v := range voices {
				fmt.Printf("%-24s %s\n", v.ID, v.Name)
			}
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	var answerType string

	cmd := &cobra.Command{
		Use:   "check <transcript> <expected>",
		Short: "Check a transcript against an expected answer without providers",
		Long: `Check runs the dependency-free quick matcher: normalized equality or a
high-similarity fuzzy match. Useful for sanity-checking expected answers
while writing suites. Exits non-zero when the transcript does not match.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			at := validate.AnswerType(answerType)
			if !at.IsValid() {
				return fmt.Errorf("invalid answer type %q; valid values: free_text, place, person, numeric, scientific", answerType)
			}
			if !validate.QuickMatch(args[0], args[1], at) {
				return fmt.Errorf("no match: %q vs %q", args[0], args[1])
			}
			fmt.Println("match")
			return nil
		},
	}
	cmd.Flags().StringVarP(&answerType, "answer-type", "t", string(validate.AnswerFreeText),
		"answer type steering normalization (free_text, place, person, numeric, scientific)")
	return cmd
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		suiteID string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent suite runs from the result store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), inspectTimeout)
			defer cancel()
			store, err := openStore(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRuns(ctx, suiteID, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			fmt.Printf("%-6s %-20s %-20s %6s %6s %6s %9s\n",
				"id", "suite", "started", "tests", "pass", "fail", "pass rate")
			for _, r := range runs {
				fmt.Printf("%-6d %-20s %-20s %6d %6d %6d %8.1f%%\n",
					r.ID, r.SuiteID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.TotalTests, r.Passed, r.Failed, r.PassRate()*100)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&suiteID, "suite", "", "only show runs of this suite ID")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of runs to show")
	return cmd
}

func newSimilarCmd(root *rootOptions) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "similar <transcript>",
		Short: "Find past failures with transcripts similar to the given one",
		Long: `Similar embeds the given transcript and searches the result store for past
failing results whose transcripts are closest in embedding space. Requires
both storage.postgres_dsn and providers.embeddings to be configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), inspectTimeout)
			defer cancel()
			store, err := openStore(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer store.Close()

			matches, err := store.SimilarFailures(ctx, args[0], topK)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println("no similar failures recorded")
				return nil
			}
			for _, m := range matches {
				fmt.Printf("run %d  %s  distance %.3f\n  transcript: %q\n  verdict:    %s (%s)\n",
					m.RunID, m.TestID, m.Distance, m.Transcript, m.MatchType, m.Reasoning)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top", 5, "number of matches to return")
	return cmd
}

// openStore connects to the configured result store, optionally attaching the
// configured embeddings provider for similarity search.
func openStore(ctx context.Context, cfg *config.Config, needEmbedder bool) (*resultstore.Store, error) {
	if cfg.Storage.PostgresDSN == "" {
		return nil, errors.New("storage.postgres_dsn is not configured")
	}

	var opts []resultstore.Option
	if needEmbedder {
		if cfg.Providers.Embeddings.Name == "" {
			return nil, errors.New("providers.embeddings is not configured")
		}
		reg := config.NewRegistry()
		registerBuiltinProviders(reg)
		embedder, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", cfg.Providers.Embeddings.Name, err)
		}
		opts = append(opts, resultstore.WithEmbedder(embedder))
	}

	return resultstore.NewStore(ctx, cfg.Storage.PostgresDSN, embeddingDimensions(cfg), opts...)
}
