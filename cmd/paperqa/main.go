package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"paperqa/internal/cache"
	"paperqa/internal/chunker"
	"paperqa/internal/config"
	"paperqa/internal/embedding"
	"paperqa/internal/fingerprint"
	"paperqa/internal/llm"
	"paperqa/internal/loader"
	"paperqa/internal/pipeline"
	"paperqa/internal/retry"
	"paperqa/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath    string
		ask        string
		summary    bool
		invalidate bool
		timeout    time.Duration
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/paperqa/config.yaml if not provided)")
	flag.StringVar(&ask, "ask", "", "Ask a single question and exit instead of starting the chat UI")
	flag.BoolVar(&summary, "summary", false, "Print a document summary and exit")
	flag.BoolVar(&invalidate, "invalidate", false, "Remove the cached embeddings for the document and exit")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Wall-clock limit for building or loading the index")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Println("Usage: paperqa [--config=config.yaml] [--ask=question | --summary | --invalidate] document.txt")
		os.Exit(1)
	}
	docPath := flag.Arg(0)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := cache.NewFSStore(cfg.Cache.Dir)
	if err != nil {
		log.Fatalf("failed to open cache: %v", err)
	}

	if invalidate {
		fp, err := fingerprint.File(docPath)
		if err != nil {
			log.Fatalf("failed to fingerprint document: %v", err)
		}
		if err := store.Invalidate(fp); err != nil {
			log.Fatalf("failed to invalidate cache entry: %v", err)
		}
		fmt.Printf("invalidated cache entry %s\n", fp.Short())
		return
	}

	apiKey := os.Getenv(cfg.Embedding.APIKeyEnv)
	if apiKey == "" {
		log.Fatalf("missing API key in env %s", cfg.Embedding.APIKeyEnv)
	}

	policy := retry.DefaultPolicy()
	if cfg.Embedding.MaxRetries > 0 {
		policy.MaxAttempts = cfg.Embedding.MaxRetries
	}

	embedder, err := embedding.NewClient(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     apiKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
		Retry:      policy,
	})
	if err != nil {
		log.Fatalf("embedding client init failed: %v", err)
	}

	llmKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if llmKey == "" {
		llmKey = apiKey
	}
	completion, err := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      llmKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		Retry:       policy,
	})
	if err != nil {
		log.Fatalf("completion client init failed: %v", err)
	}

	ch, err := chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		log.Fatalf("chunker init failed: %v", err)
	}

	p, err := pipeline.New(ch, embedder, store, pipeline.Options{
		Completion: completion,
		TopK:       cfg.Retrieval.TopK,
	})
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}

	doc, err := loader.NewFileLoader(nil).Load(docPath)
	if err != nil {
		log.Fatalf("failed to load document: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	session, err := p.Open(ctx, doc)
	cancel()
	if err != nil {
		log.Fatalf("failed to prepare document: %v", err)
	}

	switch {
	case ask != "":
		printAnswer(session, ask)
	case summary:
		answer, err := session.Summarize(context.Background())
		if err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		fmt.Println(answer.Text)
	default:
		m := tui.New(session)
		if _, err := tea.NewProgram(m).Run(); err != nil {
			log.Fatal(err)
		}
	}
}

func printAnswer(session *pipeline.Session, question string) {
	answer, err := session.Ask(context.Background(), question)
	if err != nil {
		log.Fatalf("ask failed: %v", err)
	}
	fmt.Println(answer.Text)
	for _, s := range answer.Sources {
		fmt.Printf("  source #%d score=%.3f\n", s.Segment.Index, s.Score)
	}
}
