package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"clause_lens/internal/app"
	"clause_lens/internal/config"
	"clause_lens/internal/logger"
)

var (
	dataDir  string
	provider string
	logMode  string

	parseOpts app.ParseOptions
	noRisk    bool
	topK      int
	review    bool
)

var rootCmd = &cobra.Command{
	Use:   "clause_lens",
	Short: "Split contracts into clauses and annotate legal risk",
	Long: `clause_lens splits raw contract text into clauses with provenance,
scores each clause for legal risk and stores the result.

Configuration is read from the environment (and .env): LLM_*, GEMINI_*,
SEGMENT_*, REDIS_*, OLLAMA_*, DATA_DIR, KEYWORDS_FILE. Flags override it.`,
	SilenceUsage: true,
}

var parseCmd = &cobra.Command{
	Use:   "parse <files...>",
	Short: "Parse contracts (.txt, .md, .pdf) and store the clauses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			opts := parseOpts
			opts.DetectRisk = !noRisk
			results, err := a.ProcessFiles(ctx, args, opts)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "❌ %s: %v\n", r.Path, r.Err)
					continue
				}
				s := r.Result.RiskSummary
				fmt.Fprintf(cmd.OutOrStdout(), "✅ %s → %s (%d clauses, 🔴 %d 🟡 %d 🟢 %d)\n",
					r.Path, r.DocID, r.Result.TotalClauses, s.High, s.Medium, s.Low)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <docID>",
	Short: "Print a stored parse result as a markdown report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Show(ctx, args[0], cmd.OutOrStdout(), review)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored contracts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Documents(ctx, cmd.OutOrStdout())
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <docID> <query>",
	Short: "Search clauses of a stored contract",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			results, err := a.Search(ctx, args[0], args[1], topK)
			if err != nil {
				return err
			}
			app.PrintSearch(cmd.OutOrStdout(), results)
			return nil
		})
	},
}

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Read contract paths and search queries from stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			opts := parseOpts
			opts.DetectRisk = !noRisk
			return a.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "Data directory for the clause database and index (DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Segmentation service: openai | gemini | none (LLM_PROVIDER)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "", "Log mode: dev | prod (LOG_MODE)")

	for _, cmd := range []*cobra.Command{parseCmd, interactiveCmd} {
		cmd.Flags().BoolVar(&parseOpts.IsOCR, "ocr", false, "Input comes from OCR, repair digit/letter confusions")
		cmd.Flags().BoolVar(&noRisk, "no-risk", false, "Skip risk scoring")
		cmd.Flags().StringVar(&parseOpts.SplitMethod, "split", "", "Structure detector: text | markdown (default by extension)")
		cmd.Flags().StringVar(&parseOpts.OutputDir, "output", "", "Save JSON results to this directory (optional)")
		cmd.Flags().BoolVar(&parseOpts.Report, "report", false, "Also save a markdown report (with --output)")
	}
	parseCmd.Flags().StringVar(&parseOpts.Name, "name", "", "Contract name (default: file name)")
	showCmd.Flags().BoolVar(&review, "review", false, "Only clauses with legal content")
	searchCmd.Flags().IntVar(&topK, "top", 5, "Maximum number of results")

	rootCmd.AddCommand(parseCmd, showCmd, listCmd, searchCmd, interactiveCmd)
}

// withApp загружает конфиг, собирает приложение и закрывает его после команды
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	// Загружаем .env (опционально)
	_ = godotenv.Load()

	// Флаги перекрывают переменные окружения
	overrides := map[string]string{"DATA_DIR": dataDir, "LLM_PROVIDER": provider, "LOG_MODE": logMode}
	for key, value := range overrides {
		if value != "" {
			_ = os.Setenv(key, value)
		}
	}

	cfg := config.Config{}
	if err := config.Init(&cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	a, err := app.New(ctx, &cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}()

	return fn(ctx, a)
}

func main() {
	// Контекст с сигналами завершения
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
