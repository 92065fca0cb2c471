package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/devraulu/normkb/pkg/config"
	"github.com/devraulu/normkb/pkg/embedding"
	"github.com/devraulu/normkb/pkg/llm"
	"github.com/devraulu/normkb/pkg/logger"
	"github.com/devraulu/normkb/pkg/rag"
	"github.com/devraulu/normkb/pkg/storage"
)

//go:embed templates/*
var templates embed.FS

//go:embed static/*
var staticFiles embed.FS

const selfTestQuery = "требования к лестницам"

var (
	flagConfig string
	flagAddr   string
)

var rootCmd = &cobra.Command{
	Use:           "web",
	Short:         "Serve questions over the current knowledge base build",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("couldn't load config: %w", err)
		}
		logger.InitLogger(cfg)

		addr := cfg.Web.Addr
		if flagAddr != "" {
			addr = flagAddr
		}
		return serve(cmd.Context(), cfg, addr)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "config.toml", "path to the TOML config file")
	rootCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address, overrides web.addr")
}

func serve(ctx context.Context, cfg *config.Config, addr string) error {
	embedder := embedding.NewOllama(embedding.Options{
		BaseURL:    cfg.Embedder.BaseURL,
		Model:      cfg.Embedder.Model,
		Timeout:    cfg.Embedder.GetTimeout(),
		MaxRetries: embedding.DefaultMaxRetries,
	})
	generator := llm.New(llm.Options{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.GetTimeout(),
	})

	engine := rag.NewEngine(storage.KnowledgeBase{Root: cfg.OutDir}, embedder)
	if err := engine.Reload(); err != nil {
		if !errors.Is(err, rag.ErrNotBuilt) {
			return err
		}
		slog.Warn("serving without a knowledge base until POST /reload", slog.Any("err", err))
	} else {
		selfTest(engine, cfg)
	}

	s := &server{
		source:   engine,
		answerer: rag.NewAnswerer(engine, generator, cfg.Retrieval.TopK, cfg.Retrieval.MinScore, cfg.Retrieval.UnknownAnswer),
		engine:   engine,
		tmpl:     template.Must(template.New("").ParseFS(templates, "templates/*.html")),
		topK:     cfg.Retrieval.TopK,
		minScore: cfg.Retrieval.MinScore,
	}

	mux := http.NewServeMux()
	mux.Handle("/", s.routes())

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting web server",
		slog.String("addr", addr),
		slog.String("build", engine.Build()),
		slog.String("embedder", embedder.Model()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("web server failed", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
}

// selfTest runs one retrieval so a broken embedder shows up in the logs at
// startup rather than on the first user query.
func selfTest(engine *rag.Engine, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Embedder.GetTimeout())
	defer cancel()

	results, err := engine.Retrieve(ctx, selfTestQuery, cfg.Retrieval.TopK, cfg.Retrieval.MinScore)
	if err != nil {
		slog.Error("retrieval self-test failed", slog.Any("err", err))
		return
	}
	slog.Info("retrieval self-test passed",
		slog.String("query", selfTestQuery),
		slog.Int("results", len(results)),
		slog.Int("snippets", engine.Len()),
	)
}
