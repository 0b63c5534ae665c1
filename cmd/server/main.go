package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/graphrag/config"
	"github.com/brunobiangulo/graphrag/dispatch"
	"github.com/brunobiangulo/graphrag/embedworker"
	"github.com/brunobiangulo/graphrag/graphworker"
	"github.com/brunobiangulo/graphrag/graphworker/sqlitegraph"
	"github.com/brunobiangulo/graphrag/llm"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addrFlag := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}

	// The outbound LLM client reads its endpoint and key from the
	// environment as documented in the external interfaces: OPENAI_API_KEY,
	// OPENAI_API_ENDPOINT.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_ENDPOINT"); v != "" {
		cfg.Chat.BaseURL = v
		cfg.Embedding.BaseURL = v
	}

	chatLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		slog.Error("creating chat provider", "error", err)
		os.Exit(1)
	}

	embedLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		slog.Error("creating embedding provider", "error", err)
		os.Exit(1)
	}

	graphDB, err := sqlitegraph.Open(cfg.GraphDBPath)
	if err != nil {
		slog.Error("opening graph database", "error", err)
		os.Exit(1)
	}
	defer graphDB.Close()

	textIn := make(chan embedworker.Message, cfg.TextQueueCapacity)
	embeddingOut := make(chan embedworker.EmbeddingOut, cfg.EmbeddingQueueCapacity)
	indexOut := make(chan uint32, cfg.IndexQueueCapacity)
	graphIn := make(chan graphworker.Query, cfg.GraphQueueCapacity)
	relationsOut := make(chan graphworker.Envelope, cfg.RelationsQueueCapacity)

	ctx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	ew := embedworker.New(embedLLM, textIn, embeddingOut, indexOut)
	go ew.Run(ctx)

	gw := graphworker.New(graphDB, graphIn, relationsOut)
	go gw.Run(ctx)

	state := dispatch.NewState(chatLLM, textIn, embeddingOut, indexOut, graphIn, relationsOut)
	h := dispatch.NewHandler(state)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", h.HandleIngest)
	mux.HandleFunc("GET /retrieve_knowledge", h.HandleRetrieveKnowledge)
	mux.HandleFunc("GET /related_knowledge", h.HandleRelatedKnowledge)
	mux.HandleFunc("GET /enhanced_knowledge", h.HandleEnhancedKnowledge)

	// Middleware chain: recovery -> logging -> mux. No auth/CORS layer —
	// this service is not meant to be exposed beyond trusted networks.
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ln, addr := bindWithFallback(cfg.Addr)
	slog.Info("server starting", "addr", addr)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(textIn)
	close(graphIn)

	slog.Info("server stopped")
}

// bindWithFallback binds addr, falling back to 127.0.0.1:0 (kernel-chosen
// port) if that fails, and logs whichever address it actually bound.
func bindWithFallback(addr string) (net.Listener, string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Warn("bind failed, falling back to an ephemeral port", "addr", addr, "error", err)
		ln, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			slog.Error("fallback bind failed", "error", err)
			os.Exit(1)
		}
	}
	return ln, ln.Addr().String()
}
