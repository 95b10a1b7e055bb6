package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/parametric-claims/internal/adapter/ach"
	"github.com/couchcryptid/parametric-claims/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/parametric-claims/internal/adapter/kafka"
	"github.com/couchcryptid/parametric-claims/internal/adapter/llm"
	"github.com/couchcryptid/parametric-claims/internal/adapter/postgres"
	"github.com/couchcryptid/parametric-claims/internal/adapter/webhook"
	"github.com/couchcryptid/parametric-claims/internal/audit"
	"github.com/couchcryptid/parametric-claims/internal/config"
	"github.com/couchcryptid/parametric-claims/internal/decision"
	"github.com/couchcryptid/parametric-claims/internal/evaluator"
	"github.com/couchcryptid/parametric-claims/internal/monitor"
	"github.com/couchcryptid/parametric-claims/internal/observability"
	"github.com/couchcryptid/parametric-claims/internal/payout"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to open ledger store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	auditor := audit.NewLog(store, logger)
	publisher := kafkaadapter.NewPublisher(cfg, auditor, metrics, clock, logger)

	// Decision engine: the rule engine always exists; with an advisor
	// configured it becomes the fallback instead of the primary.
	fraudCfg := decision.FraudConfig{
		MaxClaimsPerWindow: cfg.FraudMaxClaims,
		ClaimWindow:        cfg.FraudClaimWindow,
		StormWindFloorMPH:  cfg.FraudStormWindMPH,
	}
	rules := decision.NewRuleEngine(logger, decision.DefaultChecks(fraudCfg)...)
	var engine decision.Engine = rules
	if cfg.AdvisorEnabled {
		chat := llm.NewClient(cfg.AdvisorEndpoint, cfg.AdvisorAPIKey, cfg.AdvisorModel, cfg.AdvisorTimeout, logger)
		engine = decision.NewAdvisor(chat, rules, cfg.AdvisorTimeout, logger, metrics.DecisionFallbacks.Inc)
		logger.Info("ai advisor enabled", "model", cfg.AdvisorModel, "timeout", cfg.AdvisorTimeout)
	} else {
		logger.Info("ai advisor disabled, using rule engine")
	}

	gateway := ach.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, logger)
	notifier := webhook.NewNotifier(cfg.NotifierURL, cfg.NotifierTimeout, logger, metrics.NotifierFailures.Inc)

	outageMonitor := monitor.NewMonitor(store, publisher, metrics, clock, logger,
		cfg.MonitorInterval, cfg.PolicyRadiusMiles)
	resolutionMonitor := monitor.NewResolution(store, publisher, metrics, clock, logger,
		cfg.ResolutionInterval, cfg.ResolutionAfter)

	go func() {
		if err := outageMonitor.Run(ctx); err != nil {
			logger.Error("outage monitor error", "error", err)
		}
	}()
	go func() {
		if err := resolutionMonitor.Run(ctx); err != nil {
			logger.Error("resolution monitor error", "error", err)
		}
	}()

	readiness := []httpadapter.ReadinessChecker{outageMonitor}

	// The consuming workers need the bus; without brokers the service runs
	// monitors only and publishes audit as local_only.
	var closers []interface{ Close() error }
	if cfg.BusEnabled {
		evalSub := kafkaadapter.NewSubscriber(cfg, cfg.KafkaOutageTopic, "evaluator", logger)
		paySub := kafkaadapter.NewSubscriber(cfg, cfg.KafkaClaimTopic, "payout", logger)
		closers = append(closers, evalSub, paySub)

		eval := evaluator.New(store, evalSub, engine, publisher, metrics, clock, logger,
			cfg.WeatherLookback, cfg.FraudClaimWindow)
		proc := payout.New(store, paySub, gateway, publisher, notifier, metrics, clock, logger)
		readiness = append(readiness, eval, proc)

		go func() {
			if err := eval.Run(ctx); err != nil {
				logger.Error("threshold evaluator error", "error", err)
			}
		}()
		go func() {
			if err := proc.Run(ctx); err != nil {
				logger.Error("payout processor error", "error", err)
			}
		}()
	} else {
		logger.Warn("event bus disabled, evaluator and payout processor not started")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, allReady(readiness), logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("subscriber close error", "error", err)
		}
	}
	if err := publisher.Close(); err != nil {
		logger.Error("publisher close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// allReady aggregates readiness over every worker; the service is ready only
// when all of them are.
func allReady(checkers []httpadapter.ReadinessChecker) httpadapter.ReadinessFunc {
	return func(ctx context.Context) error {
		for _, c := range checkers {
			if err := c.CheckReadiness(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
