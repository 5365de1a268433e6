package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	v1 "go_certhub/api/v1"
	"go_certhub/internal/account"
	"go_certhub/internal/acme"
	"go_certhub/internal/auth"
	"go_certhub/internal/cache"
	"go_certhub/internal/cert"
	"go_certhub/internal/config"
	"go_certhub/internal/db"
	"go_certhub/internal/dns"
	"go_certhub/internal/dns/providers"
	"go_certhub/internal/metrics"
	"go_certhub/internal/orchestrator"
	"go_certhub/internal/secret"
	"go_certhub/internal/session"
	"go_certhub/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const resolverTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to an INI config file (environment variables take precedence)")
	flag.Parse()

	// 1. Load configuration
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromINI(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	logger := newLogger(cfg.Log)

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.DB); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// 4. Auth, metrics and the secret store
	auth.InitJWT(cfg.JWT.Secret)

	metrics.Enabled = cfg.Metrics.Enabled
	metrics.Init()

	secrets, err := secret.NewStore(db.DB, cfg.Secret.MasterKey)
	if err != nil {
		log.Fatalf("Failed to initialize secret store: %v", err)
	}
	log.Println("✓ Secret store ready")

	// 5. Services
	hub := ws.NewHub(db.DB, logger, originChecker(cfg.CORS.AllowOrigins))
	hub.Serve()
	defer hub.Close()

	accounts := account.NewService(db.DB, secrets, acme.Options{
		UserAgent:          cfg.ACME.UserAgent,
		InsecureSkipVerify: cfg.ACME.InsecureSkipVerify,
		PollInitial:        seconds(cfg.ACME.PollInitialSec),
		PollMax:            seconds(cfg.ACME.PollMaxIntervalSec),
		PollTimeout:        seconds(cfg.ACME.PollTimeoutSec),
		FinalizeTimeout:    seconds(cfg.ACME.FinalizeTimeoutSec),
	}, logger)
	certs := cert.NewService(db.DB, secrets, accounts, hub, logger)
	dnsService := dns.NewService(db.DB, secrets, logger)

	retry := dns.DefaultRetryPolicy
	retry.Attempts = cfg.DNS.RetryAttempts

	orch := orchestrator.New(orchestrator.Deps{
		DB:          db.DB,
		Accounts:    accounts,
		Certs:       certs,
		Sessions:    session.NewStore(cache.Client, time.Duration(cfg.ACME.SessionTTLMin)*time.Minute),
		Credentials: dnsService,
		Providers: providers.NewRegistry(providers.Options{
			Retry:          retry,
			RequestTimeout: seconds(cfg.DNS.RequestTimeoutSec),
			HuaweiRegion:   cfg.DNS.HuaweiRegion,
		}),
		Checker: dns.NewResolverChecker(cfg.Propagation.Resolvers, resolverTimeout),
		Events:  hub,
	}, orchestrator.Options{
		PropagationInterval:     seconds(cfg.Propagation.IntervalSec),
		PropagationTimeout:      seconds(cfg.Propagation.TimeoutSec),
		PropagationInitialDelay: seconds(cfg.Propagation.InitialDelaySec),
	}, logger)

	sweeper := cert.NewSweeper(db.DB, cert.SweeperConfig{
		Enabled:           cfg.Sweeper.Enabled,
		Interval:          seconds(cfg.Sweeper.IntervalSec),
		NotIssuedKeepDays: cfg.Sweeper.NotIssuedKeepDays,
	}, logger)
	sweeper.Start()

	// 6. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	router := v1.NewRouter(v1.Deps{
		Accounts:     accounts,
		Certs:        certs,
		DNS:          dnsService,
		Orchestrator: orch,
		Events:       hub.Handler(),
		AllowOrigins: cfg.CORS.AllowOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("✓ Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	// stop taking requests first; issuances still running after the grace
	// period go back to pending and remove their records
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}

	orch.Shutdown()
	sweeper.Stop()
	log.Println("✓ Server stopped")
}

func newLogger(cfg config.LogConfig) *logrus.Entry {
	l := logrus.StandardLogger()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		l.SetLevel(level)
	}
	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(l).WithField("service", "certhub")
}

// originChecker allows socket.io handshakes from the configured CORS origins
func originChecker(origins []string) func(string) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(origin string) bool {
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
