package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"riftgate/internal/authn"
	"riftgate/internal/authn/adapters"
	authnmetrics "riftgate/internal/authn/metrics"
	"riftgate/internal/authn/ports"
	"riftgate/internal/binder"
	"riftgate/internal/encoder"
	"riftgate/internal/governance"
	govmetrics "riftgate/internal/governance/metrics"
	"riftgate/internal/lattice"
	"riftgate/internal/ledger"
	ledgermetrics "riftgate/internal/ledger/metrics"
	"riftgate/internal/ledger/publisher"
	ledgermemory "riftgate/internal/ledger/store/memory"
	ledgerpostgres "riftgate/internal/ledger/store/postgres"
	"riftgate/internal/platform/config"
	"riftgate/internal/platform/httpserver"
	"riftgate/internal/platform/logger"
	platformmetrics "riftgate/internal/platform/metrics"
	platformredis "riftgate/internal/platform/redis"
	"riftgate/internal/session"
	httptransport "riftgate/internal/transport/http"
)

// main wires dependencies and keeps the process lifecycle small. Business
// logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("riftgate exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	engine := lattice.NewEngine(lattice.WithNoiseBits(cfg.NoiseBits))
	enc, err := encoder.New(engine)
	if err != nil {
		return err
	}
	bnd, err := binder.New([]byte(cfg.BinderSecret))
	if err != nil {
		return err
	}

	provider := governance.NewProvider(governance.Thresholds{
		FullAccessScore:        cfg.FullAccessScore,
		RestrictedScore:        cfg.RestrictedScore,
		MaxEntropyDeviation:    cfg.MaxEntropyDeviation,
		MaxThreatLevel:         cfg.MaxThreatLevel,
		AuthorizeReintegration: true,
	})
	governanceMetrics := govmetrics.New()
	// No approver integration is wired yet, so attempts that reach manual
	// oversight fail closed rather than waiting on a quorum that cannot form.
	machine := governance.NewMachine(nil,
		governance.WithLogger(log),
		governance.WithMachineMetrics(governanceMetrics),
	)
	monitor := governance.NewMonitor(
		governance.StaticFeed{},
		provider,
		governance.WithInterval(cfg.MonitorInterval),
		governance.WithMonitorLogger(log),
		governance.WithMonitorMetrics(governanceMetrics),
	)

	var store ledger.Store
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, ledgerpostgres.Schema); err != nil {
			return err
		}
		store = ledgerpostgres.New(db)
		log.Info("audit ledger backed by postgres")
	} else {
		store = ledgermemory.New()
		log.Warn("audit ledger backed by memory, records do not survive restarts")
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(log), ledger.WithMetrics(ledgermetrics.New())}
	if cfg.KafkaBrokers != "" {
		pub, err := publisher.New(
			strings.Split(cfg.KafkaBrokers, ","),
			publisher.WithTopic(cfg.KafkaTopic),
			publisher.WithLogger(log),
		)
		if err != nil {
			return err
		}
		defer pub.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithSink(pub))
	}
	led, err := ledger.New(store, []byte(cfg.AttestationKey), ledgerOpts...)
	if err != nil {
		return err
	}

	var registry ports.ProfileRegistry = adapters.NewMemoryRegistry()
	if cfg.RedisURL != "" {
		rdb, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		registry = adapters.NewCachedRegistry(registry, rdb.Client, adapters.WithCacheLogger(log))
	}

	tokens, err := session.NewTokenService([]byte(cfg.SessionSigningKey), cfg.SessionIssuer, cfg.SessionAudience)
	if err != nil {
		return err
	}

	svc, err := authn.New(authn.Deps{
		Engine:    engine,
		Encoder:   enc,
		Binder:    bnd,
		Machine:   machine,
		Snapshots: provider,
		Ledger:    led,
		// The static validator ships empty; deployments register credentials
		// through the SSO adapter behind the same port.
		Validator: adapters.NewStaticValidator(),
		Registry:  registry,
		Confirmer: &adapters.AutoConfirmer{Answer: ports.AnswerYes},
		Tokens:    tokens,
	},
		authn.WithLogger(log),
		authn.WithMetrics(authnmetrics.New()),
		authn.WithConstraints(encoder.Constraints{
			Tolerance:           cfg.NoiseTolerance,
			NegligibleThreshold: cfg.NegligibleThreshold,
		}),
		authn.WithConfirmTimeout(cfg.ConfirmTimeout),
		authn.WithSessionTTL(cfg.SessionTTL),
	)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Authn:    svc,
		Logger:   log,
		Metrics:  platformmetrics.New(),
		Sessions: tokens,
		Healthy:  func(r *http.Request) bool { return led.Healthy(r.Context()) },
	})
	srv := httpserver.New(cfg.Addr, router)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		log.Info("riftgate listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := monitor.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
