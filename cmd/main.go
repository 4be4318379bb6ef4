package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mstgnz/paypal-proxy/gateway"
	"github.com/mstgnz/paypal-proxy/handler"
	"github.com/mstgnz/paypal-proxy/infra/config"
	"github.com/mstgnz/paypal-proxy/infra/logger"
	"github.com/mstgnz/paypal-proxy/infra/metrics"
	"github.com/mstgnz/paypal-proxy/infra/middle"
	"github.com/mstgnz/paypal-proxy/infra/opensearch"
	"github.com/mstgnz/paypal-proxy/infra/storage"
	"github.com/mstgnz/paypal-proxy/proxy"
	"github.com/mstgnz/paypal-proxy/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Import for side-effect registration
	_ "github.com/mstgnz/paypal-proxy/gateway/paypal"
	_ "github.com/mstgnz/paypal-proxy/gateway/stripe"
)

const janitorInterval = 10 * time.Minute

func init() {
	// Load Env; deployments without a .env file rely on the process environment
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Load Env Error: %v\n", err)
		os.Exit(1)
	}
	// init conf
	_ = config.App()
}

func main() {
	cfg := config.GetAppConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit log sink is optional
	var auditLogger *opensearch.Logger
	var sink logger.Sink
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			logger.Warn("OpenSearch unavailable, continuing without audit logs", logger.LogContext{
				Fields: map[string]any{"error": err.Error()},
			})
		} else {
			auditLogger = opensearch.NewLogger(osClient)
			sink = auditLogger
		}
	}
	logger.InitGlobalLogger(sink, cfg)

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", err, logger.LogContext{
			Fields: map[string]any{"driver": cfg.StorageDriver},
		})
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", err)
		}
	}()

	// Short-lived state can live in process memory when only one replica runs
	var kv proxy.KVStore = store
	var purger storage.Purger = store
	var cache handler.CacheReporter
	if cfg.CacheDriver == "memory" {
		mem := storage.NewMemoryKV(cfg.CacheMaxEntries, nil)
		kv = mem
		purger = multiPurger{store, mem}
		cache = mem
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gw, err := gateway.New(cfg.GatewayProvider, cfg.GatewayConfig())
	if err != nil {
		logger.Fatal("Failed to initialize payment gateway", err, logger.LogContext{
			Gateway: cfg.GatewayProvider,
		})
	}

	service, err := proxy.NewService(proxy.Deps{
		Sites:               store,
		Ledger:              store,
		KV:                  kv,
		Catalog:             store,
		Gateway:             metrics.InstrumentGateway(gw, m),
		RequireSignatures:   cfg.RequireSignatures,
		SignatureWindow:     cfg.SignatureWindow,
		OrderContextTTL:     cfg.OrderContextTTL,
		SellerProtectionTTL: cfg.SellerProtectionTTL,
	})
	if err != nil {
		logger.Fatal("Failed to build proxy service", err)
	}

	rateLimiter := middle.NewRateLimiter(cfg.RateLimitPerMinute)
	go rateLimiter.Run(ctx)
	go storage.RunJanitor(ctx, purger, janitorInterval)

	h := router.New(router.Handlers{
		Proxy:   handler.NewProxyHandler(service, config.App().Validator, m),
		Health:  handler.NewHealthHandler(store, gw, auditLogger.IsEnabled(), cfg.Environment).WithCache(cache),
		Logs:    handler.NewLogsHandler(auditLogger, gw.Name()),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, router.Options{
		GatewayName:    gw.Name(),
		AdminAPIKey:    cfg.AdminAPIKey,
		IPWhitelist:    cfg.IPWhitelist,
		AllowedOrigins: cfg.CORSOrigins,
		RateLimiter:    rateLimiter,
		AuditLogger:    auditLogger,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{
		Gateway: gw.Name(),
		Fields: map[string]any{
			"port":        cfg.Port,
			"environment": gw.Environment(),
			"storage":     store.Driver(),
			"audit_logs":  auditLogger.IsEnabled(),
		},
	})

	// Block until a signal is received
	<-ctx.Done()

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
}

// multiPurger purges every backing store holding TTL entries
type multiPurger []storage.Purger

func (p multiPurger) PurgeExpired(ctx context.Context) (int64, error) {
	var total int64
	var errs []error
	for _, purger := range p {
		n, err := purger.PurgeExpired(ctx)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
