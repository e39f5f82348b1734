package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"postcrafter/agent"
	"postcrafter/analytics"
	"postcrafter/config"
	"postcrafter/database"
	"postcrafter/embedding"
	"postcrafter/llmclient"
	"postcrafter/rag"
	"postcrafter/retrieval"
	"postcrafter/tools"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	mode := flag.String("mode", "generate", "generate or refine")
	date := flag.String("date", time.Now().Format("2006-01-02"), "scheduled posting date")
	topic := flag.String("topic", "", "post topic")
	url := flag.String("url", "", "comma-separated reference URLs")
	remarks := flag.String("remarks", "", "free-form remarks for the writer")
	anniversary := flag.String("anniversary", "", "anniversary name for the posting date")
	selected := flag.String("post", "", "selected post text (refine mode)")
	instruction := flag.String("instruction", "", "refinement instruction (refine mode)")
	round := flag.Int("round", 1, "refinement round (refine mode)")
	flag.Parse()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := database.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	cache, err := embedding.NewLRUCache(cfg.EmbeddingCacheSize)
	if err != nil {
		logger.Fatal("Failed to initialize embedding cache", zap.Error(err))
	}
	embedder := embedding.NewCachedEmbedder(embedding.NewOpenAIEmbedder(cfg, logger), cache, logger)
	ranker := embedding.NewRanker(embedder, logger)

	knowledgeBase := retrieval.NewKnowledgeBase(store, embedder, logger)
	historyStore := retrieval.NewHistoryStore(store, logger)
	analyticsStore := retrieval.NewAnalyticsStore(store, logger)
	analyticsService := analytics.NewService(analyticsStore, cfg.HistoryFetchLimit, logger)

	aggregator := rag.NewAggregator(knowledgeBase, historyStore, ranker, analyticsService, cfg, logger)

	provider := llmclient.NewAnthropicProvider(cfg, logger)
	lengthChecker := tools.NewLengthChecker(cfg.LengthCheckerURL, cfg.ToolRequestTimeout, logger)
	controller := agent.NewController(provider, lengthChecker, cfg, logger)

	switch *mode {
	case "generate":
		bundle := aggregator.Aggregate(ctx, rag.Request{
			URL:         *url,
			Topic:       *topic,
			Anniversary: *anniversary,
		})
		result := controller.Generate(ctx, agent.GenerateRequest{
			Date:        *date,
			Topic:       *topic,
			URL:         *url,
			Remarks:     *remarks,
			Anniversary: *anniversary,
			Bundle:      bundle,
		})
		printResult(logger, result)
	case "refine":
		if *selected == "" || *instruction == "" {
			logger.Fatal("Refine mode requires -post and -instruction")
		}
		result := controller.Refine(ctx, agent.RefineRequest{
			SelectedPost: *selected,
			Instruction:  *instruction,
			Round:        *round,
		})
		printResult(logger, result)
	default:
		logger.Fatal("Unknown mode", zap.String("mode", *mode))
	}
}

func printResult(logger *zap.Logger, result any) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode result", zap.Error(err))
	}
	fmt.Println(string(out))
}
