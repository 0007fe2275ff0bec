// Command trader wires the configuration, broker session, ENS stream,
// orchestrator and state store together and runs one trading day.
// Grounded on the teacher's cmd/server/main.go startup order: load
// config, build the logger, construct dependencies bottom-up, run,
// shut down on signal.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fxtrader/internal/broker"
	"fxtrader/internal/config"
	"fxtrader/internal/ens"
	"fxtrader/internal/logging"
	"fxtrader/internal/models"
	"fxtrader/internal/notify"
	"fxtrader/internal/orchestrator"
	"fxtrader/internal/plan"
	"fxtrader/internal/scheduler"
	"fxtrader/internal/state"
	"fxtrader/internal/waiter"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "trader:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	tz, err := time.LoadLocation(cfg.Trading.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	oauthCfg := broker.NewOAuthConfig(cfg.Broker.AuthURL, cfg.Broker.TokenURL, cfg.Broker.ClientID, cfg.Broker.ClientSecret, cfg.Broker.RedirectURI)
	brokerClient := broker.NewClient(cfg.Broker.APIBaseURL, oauthCfg, broker.ManualCodeProvider{}, logger)

	if err := brokerClient.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	logger.Info("trader: authenticated with broker")

	trades, err := loadAndEnrichPlan(ctx, cfg.Trading.PlanPath, brokerClient)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	logger.Info("trader: loaded plan", zap.Int("trade_count", len(trades)))

	store := state.NewStore(cfg.State.Path, logger)
	recovered, err := store.Load(trades)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if recovered {
		logger.Info("trader: recovered trade state from previous run")
		if orphans := state.Reconcile(ctx, brokerClient, store, trades, logger); len(orphans) > 0 {
			logger.Error("trader: recovery found orphaned positions, flagged closed (price-unknown)", zap.Strings("orphans", orphans))
		}
	}

	waiters := waiter.NewRegistry()
	ensClient := ens.New(cfg.Broker.StreamBaseURL, brokerClient, ensConfig(cfg), logger, waiters.Dispatch)

	contextID, err := ensClient.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect ens stream: %w", err)
	}
	logger.Info("trader: ens stream connected", zap.String("context_id", contextID))
	defer ensClient.Close()

	refresher := scheduler.NewRefresher(brokerClient, cfg.Session.TokenRefreshInterval, logger)
	if cfg.Session.StreamingAuthorizeEnabled {
		refresher.SetContextID(contextID)
	}
	go refresher.Run(ctx)

	notifier := notify.NewZapNotifier(logger)

	orch := orchestrator.New(brokerClient, waiters, notifier, store, logger, orchestrator.Config{
		StopLossPips:       decimal.NewFromFloat(cfg.Trading.StopLossPips),
		TakeProfitPips:     decimal.NewFromFloat(cfg.Trading.TakeProfitPips),
		SpreadPipsLimit:    decimal.NewFromFloat(cfg.Trading.SpreadPipsLimit),
		BracketsEnabled:    true,
		FillTimeoutSeconds: cfg.Trading.FillTimeoutSeconds,
		Timezone:           tz,
	})

	orch.Run(ctx, trades)

	if allTerminal(trades) {
		if err := store.Delete(); err != nil {
			logger.Warn("trader: failed to delete trade_status.json on clean completion", zap.Error(err))
		}
	}

	logger.Info("trader: run complete")
	return nil
}

func loadAndEnrichPlan(ctx context.Context, path string, client *broker.Client) ([]*models.Trade, error) {
	trades, err := (plan.JSONSource{}).Load(path)
	if err != nil {
		return nil, err
	}
	for _, t := range trades {
		symbol := stripSlash(t.Pair)
		uic, decimals, err := client.FetchInstrument(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("resolve instrument %s: %w", t.Pair, err)
		}
		t.UIC = uic
		t.Decimals = decimals
		t.AssetType = "FxSpot"
	}
	return trades, nil
}

func stripSlash(pair string) string {
	out := make([]byte, 0, len(pair))
	for i := 0; i < len(pair); i++ {
		if pair[i] != '/' {
			out = append(out, pair[i])
		}
	}
	return string(out)
}

func allTerminal(trades []*models.Trade) bool {
	for _, t := range trades {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func ensConfig(cfg *config.Config) ens.Config {
	notifyThresholds := make([]time.Duration, 0, len(cfg.Stream.NotifyThresholdsSeconds))
	for _, s := range cfg.Stream.NotifyThresholdsSeconds {
		notifyThresholds = append(notifyThresholds, time.Duration(s)*time.Second)
	}
	return ens.Config{
		PingInterval:      cfg.Stream.PingInterval,
		PingTimeout:       cfg.Stream.PingTimeout,
		CloseTimeout:      cfg.Stream.CloseTimeout,
		StaleTimeout:      cfg.Stream.StaleSeconds,
		MonitorInterval:   cfg.Stream.MonitorInterval,
		NotifyThresholds:  notifyThresholds,
		ReconnectMaxDelay: cfg.Stream.ReconnectMaxDelaySeconds,
	}
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("trader: serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("trader: metrics server exited", zap.Error(err))
	}
}
