package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/unamentis/kbharness/internal/config"
	"github.com/unamentis/kbharness/internal/generator"
	"github.com/unamentis/kbharness/internal/harness"
	"github.com/unamentis/kbharness/internal/health"
	"github.com/unamentis/kbharness/internal/injector"
	"github.com/unamentis/kbharness/internal/observe"
	"github.com/unamentis/kbharness/internal/resultstore"
	"github.com/unamentis/kbharness/internal/validate"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run [suite.yaml...]",
		Short: "Run test suites through the audio pipeline",
		Long: `Run executes each suite through the full pipeline: audio generation,
streaming injection into the STT provider, and transcript validation.
Suite files given as arguments override the suites listed in the config.

With --watch the harness keeps running after the initial pass and reruns a
suite whenever its file changes on disk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			suitePaths := cfg.Suites
			if len(args) > 0 {
				suitePaths = args
			}
			if len(suitePaths) == 0 {
				return errors.New("no suites: list them in the config or pass suite files as arguments")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runSuites(ctx, cfg, suitePaths, watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false,
		"keep running and rerun suites when their files change")
	return cmd
}

// runSuites wires the pipeline and executes every suite, optionally staying
// resident to rerun suites on file changes.
func runSuites(ctx context.Context, cfg *config.Config, suitePaths []string, watch bool) error {
	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "kbharness",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	ps, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}
	if ps.STT == nil {
		return errors.New("no STT provider configured; suites cannot run")
	}

	// ── Pipeline stages ───────────────────────────────────────────────────────
	genOpts := []generator.Option{}
	if ps.TTS != nil {
		genOpts = append(genOpts, generator.WithProvider(cfg.Providers.TTS.Name, ps.TTS))
	}
	if cfg.Harness.ResourceDir != "" {
		genOpts = append(genOpts, generator.WithResources(os.DirFS(cfg.Harness.ResourceDir)))
	}
	gen := generator.New(genOpts...)

	injOpts := []injector.Option{}
	if cfg.Harness.ChunkFrames > 0 {
		injOpts = append(injOpts, injector.WithChunkFrames(cfg.Harness.ChunkFrames))
	}
	if cfg.Harness.Language != "" {
		injOpts = append(injOpts, injector.WithLanguage(cfg.Harness.Language))
	}
	inj := injector.New(injOpts...)

	valOpts := []validate.Option{}
	if ps.Embeddings != nil {
		valOpts = append(valOpts, validate.WithEmbeddings(ps.Embeddings))
	}
	if ps.LLM != nil {
		valOpts = append(valOpts, validate.WithJudge(ps.LLM))
	}
	validator := validate.New(valOpts...)

	harnessOpts := []harness.Option{harness.WithMetrics(metrics)}
	if cfg.Harness.SettleDelayMs > 0 {
		harnessOpts = append(harnessOpts,
			harness.WithSettleDelay(time.Duration(cfg.Harness.SettleDelayMs)*time.Millisecond))
	}
	h := harness.New(gen, inj, validator, ps.STT, harnessOpts...)

	// ── Result store ──────────────────────────────────────────────────────────
	var store *resultstore.Store
	if cfg.Storage.PostgresDSN != "" {
		storeOpts := []resultstore.Option{}
		if ps.Embeddings != nil {
			storeOpts = append(storeOpts, resultstore.WithEmbedder(ps.Embeddings))
		}
		store, err = resultstore.NewStore(ctx, cfg.Storage.PostgresDSN, embeddingDimensions(cfg), storeOpts...)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	printStartupSummary(cfg, store != nil)

	// ── Metrics/health server ─────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.ListenAddr != "" {
		srv := newServer(cfg, metrics, store, h)
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", cfg.Server.ListenAddr)
			var err error
			if cfg.Server.TLS != nil {
				err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── Suite execution ───────────────────────────────────────────────────────
	g.Go(func() error {
		err := executeSuites(gctx, cfg, h, store, suitePaths, watch)
		if err == nil && !watch {
			// Cancel gctx so the server goroutines shut down and Wait returns.
			return errDone
		}
		return err
	})

	err = g.Wait()
	if errors.Is(err, errDone) || errors.Is(err, context.Canceled) || errors.Is(err, harness.ErrCancelled) {
		return nil
	}
	return err
}

// errDone signals normal completion through the errgroup so the metrics
// server shuts down once the last suite has finished.
var errDone = errors.New("suites complete")

// executeSuites runs every suite once, then (in watch mode) stays resident and
// reruns a suite each time its file changes.
func executeSuites(ctx context.Context, cfg *config.Config, h *harness.Harness, store *resultstore.Store, suitePaths []string, watch bool) error {
	for _, path := range suitePaths {
		suite, err := config.LoadSuite(path, cfg.Harness.DefaultPreset)
		if err != nil {
			return err
		}
		if err := runOneSuite(ctx, h, store, suite); err != nil {
			return err
		}
	}
	if !watch {
		return nil
	}

	// Watch mode: poll the suite files and rerun on change.
	rerun := make(chan *harness.TestSuite, len(suitePaths))
	for _, path := range suitePaths {
		w, err := config.NewSuiteWatcher(path, cfg.Harness.DefaultPreset,
			func(old, updated *harness.TestSuite) {
				d := config.DiffSuites(old, updated)
				slog.Info("suite changed, queueing rerun",
					"suite", updated.ID, "caseChanges", len(d.CaseChanges))
				select {
				case rerun <- updated:
				default:
					// A rerun of this generation is already queued.
				}
			})
		if err != nil {
			return err
		}
		defer w.Stop()
	}
	slog.Info("watching suites for changes", "count", len(suitePaths))

	for {
		select {
		case <-ctx.Done():
			return nil
		case suite := <-rerun:
			if err := runOneSuite(ctx, h, store, suite); err != nil {
				return err
			}
		}
	}
}

// runOneSuite runs a suite, prints its report, and persists the results when
// a store is configured.
func runOneSuite(ctx context.Context, h *harness.Harness, store *resultstore.Store, suite *harness.TestSuite) error {
	result, err := h.RunSuite(ctx, *suite)
	if err != nil {
		return fmt.Errorf("suite %q: %w", suite.ID, err)
	}

	fmt.Print(harness.Analyze(result).String())

	if store != nil {
		runID, err := store.SaveSuiteRun(ctx, result)
		if err != nil {
			// Persistence failure should not discard an otherwise good run.
			slog.Error("saving suite run failed", "suite", suite.ID, "err", err)
			return nil
		}
		slog.Info("suite run saved", "suite", suite.ID, "runID", runID)
	}
	return nil
}

// newServer builds the metrics/health HTTP server.
func newServer(cfg *config.Config, metrics *observe.Metrics, store *resultstore.Store, h *harness.Harness) *http.Server {
	var checkers []health.Checker
	if store != nil {
		checkers = append(checkers, health.Checker{Name: "resultstore", Check: store.Ping})
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)
	mux.HandleFunc("GET /current", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, h.CurrentTest())
	})

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// printStartupSummary mirrors the effective configuration back to the
// operator before the first suite starts.
func printStartupSummary(cfg *config.Config, persisting bool) {
	fmt.Println("kbharness", version)
	printProvider("stt", cfg.Providers.STT.Name, cfg.Providers.STT.Model, len(cfg.Providers.STTFallbacks))
	printProvider("tts", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model, len(cfg.Providers.TTSFallbacks))
	printProvider("llm", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model, len(cfg.Providers.LLMFallbacks))
	printProvider("embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model, 0)
	if persisting {
		fmt.Println("  results   : postgres")
	} else {
		fmt.Println("  results   : in-process only")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Println("  metrics   :", cfg.Server.ListenAddr)
	}
}

func printProvider(kind, name, model string, fallbacks int) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if fallbacks > 0 {
		value = fmt.Sprintf("%s (+%d fallback)", value, fallbacks)
	}
	fmt.Printf("  %-10s: %s\n", kind, value)
}
