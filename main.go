// Command scout is a research agent: it answers questions by orchestrating a
// language model over web search, politeness-guarded page fetching, and
// document reading. It runs as an HTTP server (-serve), a one-shot question
// (-q), or an interactive REPL (default).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"scout/cli"
	"scout/config"
	"scout/core/orchestrator"
	"scout/core/orchestrator/middleware"
	"scout/internal/politeness"
	"scout/providers/ai"
	"scout/providers/ai/ollama"
	"scout/providers/ai/openai"
	"scout/providers/tool"
	"scout/providers/tool/docread"
	"scout/providers/tool/webfetch"
	"scout/providers/tool/websearch"
	"scout/server"
	"scout/session"
)

const systemPrompt = `You are a research assistant. Answer questions using the
available tools: search the web, fetch pages, and read documents. Cite the
URLs you relied on. When you have enough information, answer directly in
Markdown without further tool calls.`

const modelCallTimeout = 2 * time.Minute

func main() {
	serve := flag.Bool("serve", false, "run the HTTP API server")
	question := flag.String("q", "", "answer a single question and exit")
	flag.Parse()

	if err := run(*serve, *question); err != nil {
		fmt.Fprintln(os.Stderr, "scout:", err)
		os.Exit(1)
	}
}

func run(serve bool, question string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	cache := politeness.NewCache(politeness.WithLogger(logger))
	registry := tool.NewRegistry([]tool.GenericTool{
		websearch.New(),
		webfetch.New(cache),
		docread.New(),
	}, tool.WithLogger(logger))

	orch := orchestrator.New(provider, registry,
		orchestrator.WithModel(cfg.Model),
		orchestrator.WithSystemPrompt(systemPrompt),
		orchestrator.WithTurnBudget(cfg.TurnBudget),
		orchestrator.WithLogger(logger),
		orchestrator.WithMiddleware(
			middleware.NewLoggingMiddleware(logger),
			middleware.NewRetryMiddleware(middleware.RetryConfig{}),
			middleware.NewTimeoutMiddleware(modelCallTimeout),
		),
	)
	sessions := session.NewStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serve {
		return runServer(ctx, cfg, sessions, orch, logger)
	}

	front := cli.New(sessions, orch,
		cli.WithLogger(logger),
		cli.WithMarkdownRendering(term.IsTerminal(int(os.Stdout.Fd()))))
	if question != "" {
		return front.RunOnce(ctx, question)
	}
	return front.REPL(ctx)
}

func buildProvider(cfg *config.Config) (ai.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...), nil
	case config.ProviderOllama:
		var opts []ollama.Option
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(cfg.BaseURL))
		}
		return ollama.New(opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func runServer(ctx context.Context, cfg *config.Config, sessions *session.Store, orch *orchestrator.Orchestrator, logger *slog.Logger) error {
	api := server.New(sessions, orch,
		server.WithLogger(logger),
		server.WithBearerToken(cfg.APIToken))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
