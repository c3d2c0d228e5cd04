// ERPGate Server - multi-tenant ERP core serving permission-filtered menus.
// Resolves tenants by subdomain, routes reads between the central store and
// dedicated tenant databases, and aggregates catalog, entitlement and
// authorization data into per-user menu documents.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"erpgate/server/audit"
	"erpgate/server/authz"
	"erpgate/server/catalog"
	"erpgate/server/entitlement"
	"erpgate/server/logger"
	"erpgate/server/menu"
	"erpgate/server/router"
	"erpgate/server/storage"
	"erpgate/server/tenancy"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to configuration file")
	svcFlag := flag.String("service", "", "Service control action: install, uninstall, start, stop, run")
	writeConfig := flag.Bool("write-config", false, "Write a default config file and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ERPGate Server %s (build %s, commit %s, %s/%s)\n",
			Version, BuildTime, GitCommit, runtime.GOOS, runtime.GOARCH)
		return
	}
	if *writeConfig {
		if err := WriteDefaultConfig(*configPath); err != nil {
			log.Fatal(err)
		}
		log.Printf("Wrote default configuration to %s", *configPath)
		return
	}

	if *svcFlag != "" {
		if err := handleServiceCommand(*svcFlag, *configPath); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runServer(ctx, *configPath); err != nil {
		log.Fatal(err)
	}
}

// runServer wires every subsystem and serves until the context is cancelled.
func runServer(ctx context.Context, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, "erpgate-server")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer zlog.Sync()
	storage.SetLogger(zlog)

	zlog.Info("server starting",
		zap.String("version", Version),
		zap.String("driver", cfg.Database.EffectiveDriver()))

	store, err := storage.NewStore(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open central store: %w", err)
	}
	defer store.Close()

	srv, err := newServer(cfg, store, zlog)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// server bundles the request-path subsystems.
type server struct {
	cfg        *Config
	log        *zap.Logger
	resolver   *tenancy.Resolver
	router     *router.Router
	aggregator *menu.Aggregator
	gate       *entitlement.Gate
	sink       audit.Sink
}

// newServer builds the resolver, router, accessors, gate, aggregator and
// audit sink over an open central store.
func newServer(cfg *Config, store storage.Store, zlog *zap.Logger) (*server, error) {
	var cipher storage.Cipher
	if cfg.Auth.CredentialKey != "" {
		c, err := storage.NewAEADCipher(cfg.Auth.CredentialKey)
		if err != nil {
			return nil, fmt.Errorf("invalid credential key: %w", err)
		}
		cipher = c
	} else {
		// No key configured: dedicated tenants cannot be served, shared
		// tenants still work. Generate an ephemeral key so the router has a
		// cipher to hold.
		key, err := storage.GenerateKey()
		if err != nil {
			return nil, err
		}
		cipher, _ = storage.NewAEADCipher(key)
		zlog.Warn("no credential key configured; dedicated-store credentials cannot be decrypted")
	}

	directory := tenancy.NewDirectory(store.ListActiveTenants, cfg.DirectoryTTL(), zlog)

	rt := router.New(store.DB(), store, cipher, router.Config{
		MaxLeasesPerTenant: cfg.Router.MaxLeasesPerTenant,
		AcquireTimeout:     time.Duration(cfg.Router.AcquireTimeoutMS) * time.Millisecond,
		ConnectAttempts:    cfg.Router.ConnectAttempts,
		ConnectBackoff:     time.Duration(cfg.Router.ConnectBackoffMS) * time.Millisecond,
		MetadataTTL:        time.Duration(cfg.Router.MetadataTTLSecs) * time.Second,
		MaxOpenConns:       cfg.Router.MaxOpenConns,
	}, zlog)

	catalogAccessor := catalog.NewAccessor(store, cfg.Catalog.MaxMenuDepth, zlog)
	authAccessor := authz.NewAccessor(rt, zlog)
	gate := entitlement.NewGate(store, cfg.EntitlementTTL(), zlog)
	aggregator := menu.NewAggregator(catalogAccessor, authAccessor, gate, cfg.Auth.PrivilegedLevel, zlog)

	var sink audit.Sink = audit.NopSink{}
	if cfg.Audit.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Audit.RedisAddr,
			Password: cfg.Audit.RedisPassword,
			DB:       cfg.Audit.RedisDB,
		})
		sink = audit.NewRedisSink(client, audit.RedisSinkConfig{Stream: cfg.Audit.Stream}, zlog)
	}

	return &server{
		cfg:        cfg,
		log:        zlog,
		resolver:   tenancy.NewResolver(directory),
		router:     rt,
		aggregator: aggregator,
		gate:       gate,
		sink:       sink,
	}, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/v1/menu", s.handleMenu)
	return s.withMiddleware(mux)
}

// Close releases the router's dedicated-store pools and flushes the audit
// sink. The central store is closed by the caller that opened it.
func (s *server) Close() error {
	err := s.router.Close()
	if sinkErr := s.sink.Close(); err == nil {
		err = sinkErr
	}
	return err
}
