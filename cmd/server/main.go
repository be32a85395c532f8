// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	formshandler "formhub/internal/forms/handler"
	formsmetrics "formhub/internal/forms/metrics"
	formsservice "formhub/internal/forms/service"
	formsstore "formhub/internal/forms/store"
	groupshandler "formhub/internal/groups/handler"
	groupsservice "formhub/internal/groups/service"
	groupsstore "formhub/internal/groups/store"
	"formhub/internal/identity"
	"formhub/internal/insights"
	insightshandler "formhub/internal/insights/handler"
	"formhub/internal/platform/config"
	"formhub/internal/platform/httpserver"
	"formhub/internal/platform/logger"
	platformmetrics "formhub/internal/platform/metrics"
	platformredis "formhub/internal/platform/redis"
	responseshandler "formhub/internal/responses/handler"
	responsesmetrics "formhub/internal/responses/metrics"
	responsesservice "formhub/internal/responses/service"
	responsesstore "formhub/internal/responses/store"
	"formhub/internal/storage"
	httptransport "formhub/internal/transport/http"
	"formhub/pkg/platform/audit/publisher"
	auditpostgres "formhub/pkg/platform/audit/store/postgres"
	auditworker "formhub/pkg/platform/audit/worker"
	"formhub/pkg/platform/circuit"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := storage.Migrate(ctx, db); err != nil {
		log.Error("migrate database", "error", err)
		os.Exit(1)
	}

	identityOpts := []identity.ClientOption{
		identity.WithBreaker(circuit.New("identity")),
	}
	if cfg.Redis.URL != "" {
		cache, err := platformredis.New(cfg.Redis)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = cache.Close() }()
		identityOpts = append(identityOpts, identity.WithCache(cache, cfg.Redis.CacheTTL))
	}
	users := identity.NewClient(cfg.Identity.BaseURL, log, identityOpts...)

	auditStore := auditpostgres.New(db)
	auditor := publisher.NewPublisher(auditStore, publisher.WithLogger(log))
	defer auditor.Close()

	if len(cfg.KafkaSeeds) > 0 {
		relay, err := auditworker.NewRelay(auditStore, cfg.KafkaSeeds, cfg.AuditTopic, log)
		if err != nil {
			log.Error("start audit relay", "error", err)
			os.Exit(1)
		}
		defer relay.Close()
		if err := relay.EnsureTopic(ctx, 3, 1); err != nil {
			log.Error("ensure audit topic", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit relay stopped", "error", err)
			}
		}()
	}

	unit := storage.NewPostgresUnit(db)
	forms := formsstore.NewPostgresForms(db)
	collabs := formsstore.NewPostgresCollaborators(db)
	responses := responsesstore.NewPostgres(db)
	groups := groupsstore.NewPostgres(db)

	formsSvc := formsservice.New(forms, collabs, responses, users, unit,
		formsservice.WithLogger(log),
		formsservice.WithMetrics(formsmetrics.New()),
		formsservice.WithAuditPublisher(auditor),
	)
	responsesSvc := responsesservice.New(responses, forms, collabs, users, unit,
		responsesservice.WithLogger(log),
		responsesservice.WithMetrics(responsesmetrics.New()),
		responsesservice.WithAuditPublisher(auditor),
	)
	groupsSvc := groupsservice.New(groups, unit,
		groupsservice.WithLogger(log),
		groupsservice.WithAuditPublisher(auditor),
	)
	insightsSvc := insights.New(forms, collabs, responses,
		insights.WithLogger(log),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Metrics:   platformmetrics.New(),
		Validator: identity.NewJWTValidator(cfg.JWTSigningKey),
		Public: []httptransport.Registrar{
			formshandler.New(formsSvc, log),
			responseshandler.New(responsesSvc, log),
		},
		Authenticated: []httptransport.Registrar{
			groupshandler.New(groupsSvc, log),
			insightshandler.New(insightsSvc, log),
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
