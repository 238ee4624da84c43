package main

import (
	"context"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tradedaemon/internal/catalog"
	"tradedaemon/internal/chainrpc"
	"tradedaemon/internal/config"
	"tradedaemon/internal/escrow"
	"tradedaemon/internal/eventbus"
	"tradedaemon/internal/marketplace"
	"tradedaemon/internal/middleware"
	"tradedaemon/internal/observability"
	"tradedaemon/internal/oracle"
	"tradedaemon/internal/store"
	"tradedaemon/internal/supervisor"
	"tradedaemon/internal/swap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}

	strategyStore, err := store.Open(cfg.DBDSN())
	if err != nil {
		log.Fatal("store open failed: ", err)
	}

	otelShutdown, err := observability.SetupOTelSDK(context.Background())
	if err != nil {
		log.Fatal("otel setup failed: ", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	logger := observability.NewLogger(strategyStore.DB(), "tradedaemon")

	masterKey, err := hex.DecodeString(cfg.EscrowMasterKeyHex)
	if err != nil {
		log.Fatal("escrow master key is not valid hex: ", err)
	}
	keyEscrow, err := escrow.NewLocalEscrow(strategyStore, masterKey)
	if err != nil {
		log.Fatal("escrow init failed: ", err)
	}

	tokenCatalog := catalog.NewStaticCatalog([]catalog.TokenInfo{
		{Mint: cfg.NativeMint, Symbol: "SOL", Name: "Wrapped SOL", Decimals: 9, Category: "native", CoinGeckoID: "solana", Tradable: true},
		{Mint: cfg.QuoteMint, Symbol: "USDC", Name: "USD Coin", Decimals: 6, Category: "stable", CoinGeckoID: "usd-coin", Tradable: true},
	})

	priceOracle, err := oracle.NewCachedOracle(
		oracle.NewCoinGeckoOracle(tokenCatalog.MintToCoinGeckoID()),
		cfg.RedisAddr,
		oracle.DefaultCacheTTL,
	)
	if err != nil {
		log.Fatal("oracle init failed: ", err)
	}

	chain := chainrpc.NewClient(cfg.ChainRPCURL)
	bus := eventbus.New()
	swapDriver := swap.NewDriver(swap.NewJupiterClient(cfg.JupiterAPIKey), chain, swap.LocalSigner{}, logger, bus)

	factory := &supervisor.WorkerFactory{
		Store:          strategyStore,
		Prices:         priceOracle,
		Chain:          chain,
		Swap:           swapDriver,
		Bus:            bus,
		NativeMint:     cfg.NativeMint,
		QuoteMint:      cfg.QuoteMint,
		PlatformFee:    cfg.PlatformFeeAccount,
		PlatformFeeBps: cfg.PlatformFeeBps,
	}
	sup := supervisor.New(strategyStore, keyEscrow, factory, cfg.PollInterval)
	sup.SetMetrics(observability.NewMetricsCollector(strategyStore.DB(), "tradedaemon"))

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)

	marketplaceSvc := marketplace.NewService(strategyStore)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	r.Use(middleware.RateLimiter(100, time.Minute))
	marketplace.RegisterRoutes(r, marketplaceSvc)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("server forced to shutdown: ", err)
	}

	sup.Stop()
	cancel()
	log.Println("shutdown complete")
}
