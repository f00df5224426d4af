package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rxtech-lab/argo-exchange/internal/api"
	"github.com/rxtech-lab/argo-exchange/internal/config"
	"github.com/rxtech-lab/argo-exchange/internal/engine"
	"github.com/rxtech-lab/argo-exchange/internal/hub"
	"github.com/rxtech-lab/argo-exchange/internal/logger"
	"github.com/rxtech-lab/argo-exchange/internal/market/cache"
	"github.com/rxtech-lab/argo-exchange/internal/market/feed"
	"github.com/rxtech-lab/argo-exchange/internal/store"
	"go.uber.org/zap"
)

func main() {
	configFlag := flag.String("config", "", "Path to configuration file (required)")
	flag.Parse()

	if *configFlag == "" {
		fmt.Println("Error: --config flag is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Printf("Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger()
	if err != nil {
		fmt.Printf("Error: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	st, err := store.NewStore(cfg.Database.Path, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	if err := st.Initialize(); err != nil {
		log.Fatal("failed to initialize store", zap.Error(err))
	}

	for _, inst := range cfg.Instruments {
		if err := st.UpsertInstrument(st.DB(), inst.Instrument()); err != nil {
			log.Fatal("failed to seed instrument",
				zap.String("symbol", inst.Symbol),
				zap.Error(err))
		}
	}

	priceCache := cache.NewPriceCache()
	broadcastHub := hub.NewHub(log)
	eng := engine.NewEngine(st, priceCache, broadcastHub, log)
	evaluator := engine.NewEvaluator(eng)
	ingester := feed.NewIngester(cfg.Feed.Symbols, priceCache, broadcastHub, log, evaluator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go evaluator.Run(ctx)
	go ingester.Run(ctx)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(eng, st, broadcastHub, priceCache, log).Handler(),
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
}
