// Package main runs the sniper engine behind its control API.
//
// Configuration comes from an optional YAML file, .env, the environment and
// flags, in that order of precedence (flags win). Persistence sinks are
// enabled by their DSNs; without them everything stays in memory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"solana-sniper/internal/api"
	"solana-sniper/internal/config"
	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/engine"
	"solana-sniper/internal/eventlog"
	"solana-sniper/internal/gateway"
	"solana-sniper/internal/logging"
	"solana-sniper/internal/observability"
	solrpc "solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	chstore "solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/migrations"
	pgstore "solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/storage/redisstore"
)

// DEX program aliases mapped to program IDs.
var dexAliases = map[string]string{
	"raydium": discovery.RaydiumAMMV4,
	"pumpfun": discovery.PumpFun,
}

// stores holds the optional persistence backends.
type stores struct {
	trades   storage.TradeStore
	archive  storage.EventLogStore
	balances storage.BalanceStore
	seen     storage.SeenStore
	lastSeq  uint64
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("SNIPER_CONFIG"), "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	network := flag.String("network", "", "Network name or RPC URL (overrides config)")
	mode := flag.String("mode", "", "Gateway mode: paper or live (overrides config)")
	autoStart := flag.Bool("auto-start", false, "Start the engine with the configured private key")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *network != "" {
		cfg.Engine.Network = *network
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *autoStart {
		cfg.Engine.AutoStart = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("config:\n" + cfg.String())

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("sniper exited")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoint, err := engine.ResolveEndpoint(cfg.Engine.Network)
	if err != nil {
		return err
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Metrics.Enabled {
		registry = observability.NewRegistry()
		metrics = observability.NewMetrics(cfg.Metrics.Namespace, registry)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	sinks, closeSinks, err := buildSinks(cfg, st, metrics)
	if err != nil {
		return err
	}
	events := eventlog.New(eventlog.Options{
		Capacity: cfg.Engine.LogCapacity,
		Logger:   logger.With().Str("component", "eventlog").Logger(),
		Sinks:    sinks,
		LastSeq:  st.lastSeq,
	})
	defer closeSinks()
	defer events.Close()

	source, stopSource, err := buildSource(ctx, cfg, endpoint, st, metrics, events, logger)
	if err != nil {
		return err
	}
	defer stopSource()

	jitter := cfg.Engine.Jitter
	if jitter == 0 {
		jitter = -1
	}
	eng := engine.New(engine.Options{
		Gateways:        gatewayFactory(cfg, metrics, logger),
		Source:          source,
		Log:             events,
		Trades:          st.trades,
		Balances:        st.balances,
		Metrics:         metrics,
		Logger:          logger,
		MinInterval:     cfg.Engine.MinInterval,
		Jitter:          jitter,
		RunningInterval: cfg.Engine.BalanceRunning,
		StoppedInterval: cfg.Engine.BalanceStopped,
	})
	defer eng.Close()

	srvOpts := api.ServerOptions{
		Addr:    cfg.Server.Addr,
		Handler: api.NewHandler(eng, logger),
		Logger:  logger,
	}
	if registry != nil {
		srvOpts.Gatherer = registry
	}
	server := api.NewServer(srvOpts)
	server.Start()

	if cfg.Engine.AutoStart {
		amount, err := engine.ParseAmount(cfg.Engine.SnipeAmount)
		if err != nil {
			return err
		}
		err = eng.Start(cfg.Engine.PrivateKey, domain.EngineConfig{NetworkEndpoint: endpoint, SnipeAmount: amount})
		if err != nil {
			return fmt.Errorf("auto start: %w", err)
		}
	}

	logger.Info().
		Str("mode", cfg.Mode).
		Str("network", endpoint).
		Str("source", cfg.Discovery.Source).
		Str("addr", cfg.Server.Addr).
		Msg("sniper ready")

	waitForShutdown(ctx, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	eng.Close()
	return nil
}

// waitForShutdown blocks until SIGINT or SIGTERM. A second signal, or a
// shutdown that takes over 30s, forces exit.
func waitForShutdown(ctx context.Context, logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
	case <-ctx.Done():
		return
	}

	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	st := &stores{}
	fail := func(err error) (*stores, error) {
		st.close()
		return nil, err
	}

	if cfg.Postgres.DSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fail(err)
		}
		st.closers = append(st.closers, pool.Close)
		if err := migrations.RunPostgres(ctx, pool); err != nil {
			return fail(err)
		}
		st.trades = pgstore.NewTradeStore(pool)
		st.archive = pgstore.NewEventLogStore(pool)

		recent, err := st.archive.Recent(ctx, 1)
		if err != nil {
			return fail(fmt.Errorf("read event log archive: %w", err))
		}
		if len(recent) > 0 {
			st.lastSeq = recent[len(recent)-1].Seq
		}
		logger.Info().Uint64("last_seq", st.lastSeq).Msg("postgres journal enabled")
	}

	if cfg.ClickHouse.DSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return fail(err)
		}
		st.closers = append(st.closers, func() { conn.Close() })
		if err := migrations.RunClickhouse(ctx, conn); err != nil {
			return fail(err)
		}
		st.balances = chstore.NewBalanceStore(conn)
		logger.Info().Msg("clickhouse balance history enabled")
	}

	if cfg.Redis.Addr != "" {
		client, err := redisstore.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fail(err)
		}
		st.closers = append(st.closers, func() { client.Close() })
		st.seen = redisstore.NewSeenStore(client, redisstore.SeenStoreOptions{TTL: cfg.Redis.SeenTTL})
		logger.Info().Msg("redis seen set enabled")
	}

	return st, nil
}

// buildSinks returns the event log sinks and a function closing the ones
// holding connections. The Kafka sink is closed after the log flushes.
func buildSinks(cfg *config.Config, st *stores, metrics *observability.Metrics) ([]eventlog.Sink, func(), error) {
	var sinks []eventlog.Sink
	closeFn := func() {}

	if metrics != nil {
		sinks = append(sinks, eventlog.SinkFunc(func(_ context.Context, e domain.LogEntry) error {
			metrics.RecordLogEntry(e)
			return nil
		}))
	}
	if st.archive != nil {
		archive := st.archive
		sinks = append(sinks, eventlog.SinkFunc(func(ctx context.Context, e domain.LogEntry) error {
			err := archive.Append(ctx, e)
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil
			}
			return err
		}))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := eventlog.NewKafkaSink(eventlog.KafkaSinkConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, sink)
		closeFn = func() { sink.Close() }
	}
	return sinks, closeFn, nil
}

func gatewayFactory(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) engine.GatewayFactory {
	opts := engine.FactoryOptions{
		CallTimeout:   cfg.Engine.TxTimeout,
		SkipPreflight: cfg.Gateway.SkipPreflight,
		FillDelay:     cfg.Gateway.FillDelay,
		Metrics:       metrics,
		Logger:        logger,
	}
	if cfg.Gateway.Destination != "" {
		dest, err := solana.PublicKeyFromBase58(cfg.Gateway.Destination)
		if err != nil {
			return func(string) (gateway.Gateway, error) {
				return nil, fmt.Errorf("gateway destination: %w", err)
			}
		}
		opts.Builder = gateway.TransferBuilder{Destination: dest}
	}

	if cfg.Mode == config.ModeLive {
		return engine.RPCGateways(opts)
	}
	return engine.PaperGateways(opts)
}

// buildSource returns the discovery source and a function that stops it.
func buildSource(
	ctx context.Context,
	cfg *config.Config,
	endpoint string,
	st *stores,
	metrics *observability.Metrics,
	events *eventlog.Log,
	logger zerolog.Logger,
) (discovery.CandidateSource, func(), error) {
	if cfg.Discovery.Source != config.SourceLaunches {
		return discovery.NewSimulatedSource(cfg.Discovery.Symbols), func() {}, nil
	}

	wsEndpoint := cfg.Discovery.WSEndpoint
	if wsEndpoint == "" {
		var err error
		if wsEndpoint, err = engine.WSEndpoint(endpoint); err != nil {
			return nil, nil, err
		}
	}

	wsCfg := solrpc.DefaultWSConfig()
	wsCfg.Logger = logger
	ws, err := solrpc.NewWSClient(ctx, wsEndpoint, &wsCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect launch feed: %w", err)
	}

	feed := discovery.NewLaunchFeed(discovery.LaunchFeedOptions{
		WS:         ws,
		RPC:        solrpc.NewHTTPClient(endpoint, solrpc.WithObserver(metrics.ObserveRPC)),
		Seen:       st.seen,
		Programs:   resolvePrograms(cfg.Discovery.Programs),
		BufferSize: cfg.Discovery.BufferSize,
		Logger:     logger,
		OnDrop:     func(domain.Candidate) { metrics.RecordFeedDrop() },
	})

	feedCtx, feedCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := feed.Run(feedCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("launch feed stopped")
			events.Error("Launch feed stopped: %v", err)
		}
	}()

	stop := func() {
		feedCancel()
		ws.Close()
		<-done
	}
	return feed, stop, nil
}

// resolvePrograms maps aliases to program IDs; unknown entries are taken as
// raw program IDs. Empty input uses the feed defaults.
func resolvePrograms(entries []string) []string {
	var out []string
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if id, ok := dexAliases[strings.ToLower(e)]; ok {
			e = id
		}
		out = append(out, e)
	}
	return out
}
