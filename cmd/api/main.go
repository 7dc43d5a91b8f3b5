package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artreg.org/internal/audit"
	"artreg.org/internal/auth"
	"artreg.org/internal/config"
	"artreg.org/internal/gate"
	"artreg.org/internal/httpapi"
	"artreg.org/internal/obs"
	"artreg.org/internal/ratelimit"
	"artreg.org/internal/regexsafe"
	"artreg.org/internal/registry"
	"artreg.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		artifacts  registry.Store
		auditStore audit.Store
		db         *sql.DB
	)
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = pgStore.DB()
		artifacts = pgStore
		auditStore = pg.NewAuditStore(db)
	} else {
		log.Println("No REGISTRY_PG_DSN set, using in-memory stores")
		artifacts = registry.NewInMemory()
		auditStore = audit.NewInMemory()
	}

	recorder := audit.NewRecorder(auditStore)
	exec := registry.NewExecutor(artifacts, registry.Limits{
		MaxPageSize:     cfg.MaxPageSize,
		MaxOffset:       cfg.MaxOffset,
		MaxTotalResults: cfg.MaxTotalResults,
		QueryTimeout:    cfg.QueryTimeout,
		RegexTimeout:    cfg.RegexTimeout,
	})
	svc := registry.NewService(artifacts, exec)

	limiter := ratelimit.New(cfg.RateLimit, cfg.RateLimitWindow)
	analyzer := regexsafe.New(cfg.RegexMaxLength)

	var (
		tokens   *auth.TokenStore
		gateOpts []gate.Option
	)
	if cfg.AuthMode == config.AuthDisabled {
		log.Println("WARNING: auth is DISABLED, every request runs with admin rights")
		gateOpts = append(gateOpts, gate.WithAuthDisabled())
	} else {
		tokens, err = auth.NewTokenStore(cfg.TokenSecret,
			auth.WithMaxUses(cfg.TokenMaxUses),
			auth.WithLifetime(cfg.TokenLifetime),
		)
		if err != nil {
			log.Fatalf("token store: %v", err)
		}
	}

	creds := auth.NewStaticCredentials()
	if name := os.Getenv("REGISTRY_BOOTSTRAP_USER"); name != "" {
		role := os.Getenv("REGISTRY_BOOTSTRAP_ROLE")
		if role == "" {
			role = auth.RoleAdmin
		}
		creds.Add(name, os.Getenv("REGISTRY_BOOTSTRAP_PASSWORD"), role)
	}
	if cfg.AuthMode == config.AuthEnforced && creds.Len() == 0 {
		log.Println("WARNING: no bootstrap credential configured, /authenticate will reject everyone")
	}

	g := gate.New(limiter, tokens, analyzer, recorder, gateOpts...)

	api := httpapi.New(cfg, g, svc, recorder, tokens, creds, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweep := time.NewTicker(cfg.RateLimitWindow)
	go func() {
		for range sweep.C {
			limiter.Sweep()
		}
	}()

	log.Printf("Starting artreg-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	sweep.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
