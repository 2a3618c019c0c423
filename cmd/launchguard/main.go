package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/launchguard/internal/alert"
	"github.com/nexus-trading/launchguard/internal/config"
	"github.com/nexus-trading/launchguard/internal/conviction"
	"github.com/nexus-trading/launchguard/internal/entry"
	"github.com/nexus-trading/launchguard/internal/feedcounters"
	"github.com/nexus-trading/launchguard/internal/heat"
	"github.com/nexus-trading/launchguard/internal/microstructure"
	"github.com/nexus-trading/launchguard/internal/mintvalidator"
	"github.com/nexus-trading/launchguard/internal/pipeline"
	"github.com/nexus-trading/launchguard/internal/solanarpc"
	"github.com/nexus-trading/launchguard/internal/status"
	"github.com/nexus-trading/launchguard/internal/store"
	"github.com/nexus-trading/launchguard/internal/txintrospect"
	"github.com/nexus-trading/launchguard/internal/watcher"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "launchguard").
		Logger()

	log.Info().Msg("========================================")
	log.Info().Msg("Launch Detection and Decision Pipeline - Starting")
	log.Info().Msg("========================================")

	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if lvl, parseErr := zerolog.ParseLevel(cfg.General.LogLevel); parseErr == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Bool("dry_run", cfg.General.DryRun).
		Str("mint_verify_mode", cfg.MintVerify.Mode).
		Str("tx_lookup_mode", cfg.TxLookup.Mode).
		Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	tokenStore, err := store.Open(cfg.Store.Path, cfg.Store.BusyTimeoutMs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open persistent store")
	}
	defer tokenStore.Close()

	rpcClient := solanarpc.NewLiveClient(solanarpc.LiveConfig{
		Endpoint:     cfg.Endpoints.HTTPPrimary,
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RateLimitRPS: float64(cfg.TxLookup.QPS),
	})
	defer rpcClient.Close()

	var allProgramIDs []string
	for _, ids := range originProgramMap(cfg) {
		allProgramIDs = append(allProgramIDs, ids...)
	}
	validator := mintvalidator.New(rpcClient, allProgramIDs, cfg.MintVerify.TTLSec)

	isRealMint := func(ctx context.Context, addr string) bool { return validator.IsRealMint(ctx, addr) }
	introspector := txintrospect.New(rpcClient, txintrospect.Mode(cfg.TxLookup.Mode), cfg.TxLookup.QPS, cfg.TxLookup.MaxPerMin, isRealMint)
	defer introspector.Close()

	microTracker := microstructure.New()

	heatCtl := heat.New(heat.Config{
		Enabled:         cfg.Heat.Enabled,
		WindowMin:       cfg.Heat.WindowMin,
		MinAcceptsPerHr: cfg.Heat.MinAcceptsPerHr,
		MaxAcceptsPerHr: cfg.Heat.MaxAcceptsPerHr,
		LoosenScore:     cfg.Heat.LoosenDelta.Score,
		LoosenBuyers:    cfg.Heat.LoosenDelta.Buyers,
		TightenScore:    cfg.Heat.TightenDelta.Score,
		TightenBuyers:   cfg.Heat.TightenDelta.Buyers,
		FloorScore:      cfg.Heat.Floor.Score,
		CeilScore:       cfg.Heat.Ceil.Score,
		FloorBuyers:     cfg.Heat.Floor.Buyers,
		CeilBuyers:      cfg.Heat.Ceil.Buyers,
		BaseMinScore:    cfg.Entry.MinScore,
		BaseApexScore:   cfg.Entry.ApexScore,
		BaseMinBuyers:   cfg.Entry.MinObsBuyers,
		BaseMinUnique:   cfg.Entry.MinObsUnique,
	})

	cohort := conviction.NewCohort(nil)
	deployerStats := conviction.NewDeployerStats()

	notifier := alert.New(256, cfg.Alerts.RateLimitSec)

	entryEngine := entry.New(entry.Config{
		ReevalCooldownSec: cfg.Entry.ReevalCooldownSec,
		HoldTTLSec:        cfg.Entry.HoldTTLSec,
		HoldMaxReevals:    cfg.Entry.HoldMaxReevals,
		AcceptCooldownSec: cfg.Entry.AcceptCooldownSec,
		CohortBoostAmount: 10,
		CohortDecaySec:    3600,
	}, microTracker, heatCtl, cohort, deployerStats, tokenStore, notifier)

	counters := feedcounters.New()

	byOrigin := originProgramMap(cfg)
	launchWatcher := watcher.New(watcher.Config{
		WSPrimary:     cfg.Endpoints.WSPrimary,
		WSBackup:      cfg.Endpoints.WSBackup,
		Subscriptions: watcher.BuildSubscriptions(byOrigin),
		VerifyMode:    watcher.MintVerifyMode(cfg.MintVerify.Mode),
		PingIntervalS: 30,
	}, validator, introspector, microTracker, cohort, entryEngine, tokenStore, counters, notifier)

	go launchWatcher.Run(ctx)

	collector := status.NewCollector(counters, microTracker, entryEngine, notifier)
	statusServer := status.NewServer(collector)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.General.HTTPPort),
		Handler: statusServer.Router(),
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server failed")
		}
	}()

	go summaryTicker(ctx, notifier, cfg.Alerts.SummaryEverySec)
	go expireTicker(ctx, microTracker, 15)

	log.Info().Msg("launchguard pipeline running")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)

	log.Info().Msg("launchguard pipeline shutdown complete")
}

func originProgramMap(cfg *config.Config) map[pipeline.Origin][]string {
	return map[pipeline.Origin][]string{
		pipeline.OriginPumpfun:  cfg.Origins.Pumpfun,
		pipeline.OriginLetsbonk: cfg.Origins.Letsbonk,
		pipeline.OriginMoonshot: cfg.Origins.Moonshot,
		pipeline.OriginRaydium:  cfg.Origins.Raydium,
		pipeline.OriginOrca:     cfg.Origins.Orca,
	}
}

// expireTicker periodically evicts microstructure state for mints the
// watcher has stopped observing, enforcing the 120s staleness bound the
// tracker itself only offers as a method.
func expireTicker(ctx context.Context, micro *microstructure.Tracker, everySec int) {
	if everySec <= 0 {
		everySec = 15
	}
	ticker := time.NewTicker(time.Duration(everySec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := micro.Expire(time.Now().UnixMilli(), 0)
			if removed > 0 {
				log.Debug().Int("removed", removed).Msg("expired stale microstructure state")
			}
		}
	}
}

func summaryTicker(ctx context.Context, notifier *alert.Notifier, everySec int) {
	if everySec <= 0 {
		everySec = 300
	}
	ticker := time.NewTicker(time.Duration(everySec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts := notifier.SummarySnapshot()
			notifier.Emit(alert.KindSummary, "", 0, fmt.Sprintf("%v", counts))
		}
	}
}
