package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/devraulu/normkb/pkg/config"
	"github.com/devraulu/normkb/pkg/embedding"
	"github.com/devraulu/normkb/pkg/llm"
	"github.com/devraulu/normkb/pkg/logger"
	"github.com/devraulu/normkb/pkg/pipeline"
	"github.com/devraulu/normkb/pkg/rag"
	"github.com/devraulu/normkb/pkg/storage"
)

var (
	flagConfig string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "crawler",
	Short:         "Build the normative knowledge base and query it",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("couldn't load config: %w", err)
		}
		if dsn := os.Getenv("NORMKB_DSN"); dsn != "" {
			cfg.DSN = dsn
		}
		logger.InitLogger(cfg)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
			return p.Run(ctx)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl, harvest and index, then promote the new build",
	RunE:  rootCmd.RunE,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Discover and harvest document pages into staging",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
			_, err := p.Crawl(ctx)
			return err
		})
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed the harvested staging snippets and promote them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
			_, err := p.Index(ctx)
			return err
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the current build",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kb := storage.KnowledgeBase{Root: cfg.OutDir}
		eng, err := rag.Open(kb, newEmbedder(cfg))
		if err != nil {
			return err
		}

		answerer := rag.NewAnswerer(eng, newLLM(cfg), cfg.Retrieval.TopK, cfg.Retrieval.MinScore, cfg.Retrieval.UnknownAnswer)
		ans, err := answerer.Answer(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
		for _, s := range ans.Sources {
			fmt.Fprintf(cmd.OutOrStdout(), "  [%.3f] %s (%s)\n", s.Score, s.Record.Title, s.Record.SourceURL)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.toml", "path to the TOML config file")
	rootCmd.AddCommand(runCmd, crawlCmd, indexCmd, askCmd)
}

func newEmbedder(cfg *config.Config) *embedding.Ollama {
	return embedding.NewOllama(embedding.Options{
		BaseURL:    cfg.Embedder.BaseURL,
		Model:      cfg.Embedder.Model,
		Timeout:    cfg.Embedder.GetTimeout(),
		MaxRetries: embedding.DefaultMaxRetries,
	})
}

func newLLM(cfg *config.Config) *llm.Client {
	return llm.New(llm.Options{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.GetTimeout(),
	})
}

func runPipeline(ctx context.Context, phase func(context.Context, *pipeline.Pipeline) error) error {
	archive, err := storage.OpenArchive(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("couldn't open archive: %w", err)
	}
	defer archive.Close()

	p := pipeline.New(cfg, newEmbedder(cfg), nil, archive)
	return phase(ctx, p)
}

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	appSignal := make(chan os.Signal, 1)
	signal.Notify(appSignal, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		select {
		case s := <-appSignal:
			slog.Info("received system signal", slog.String("signal", s.String()))
			stop()
		case <-ctx.Done():
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
