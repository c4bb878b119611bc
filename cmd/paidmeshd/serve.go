package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"github.com/paidmesh/paidmesh/config"
	"github.com/paidmesh/paidmesh/health"
	"github.com/paidmesh/paidmesh/internal/logger"
	"github.com/paidmesh/paidmesh/internal/metrics"
	"github.com/paidmesh/paidmesh/pkg/bootstrap"
	"github.com/paidmesh/paidmesh/pkg/connector"
	"github.com/paidmesh/paidmesh/pkg/dispatch"
	"github.com/paidmesh/paidmesh/pkg/handshake"
	"github.com/paidmesh/paidmesh/pkg/msgutil/nonce"
	"github.com/paidmesh/paidmesh/pkg/paymenthandler"
	"github.com/paidmesh/paidmesh/pkg/peer"
	"github.com/paidmesh/paidmesh/pkg/pricing"
	"github.com/paidmesh/paidmesh/pkg/relay"
	"github.com/paidmesh/paidmesh/pkg/store"
)

var signingKeyPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay, connector, and bootstrap orchestrator",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&signingKeyPath, "signing-key", "", "Path to a hex-encoded secp256k1 private key file (required; generate one with 'paidmeshd keygen')")
}

// bootstrapLogger adapts internal/logger.Logger's Field-based API to
// bootstrap.Logger's key-value variadic shape.
type bootstrapLogger struct{ l logger.Logger }

func (b bootstrapLogger) Info(msg string, kv ...interface{}) { b.l.Info(msg, fieldsFromKV(kv)...) }
func (b bootstrapLogger) Warn(msg string, kv ...interface{}) { b.l.Warn(msg, fieldsFromKV(kv)...) }

func fieldsFromKV(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}

func loadSigningKey(path string) (*secp256k1.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("--signing-key is required (generate one with 'paidmeshd keygen')")
	}
	return readSigningKeyFile(path)
}

func buildRouter(cfg *config.Config) (connector.Client, error) {
	switch cfg.Connector.Mode {
	case config.ConnectorModeRemote:
		remoteCfg := connector.RemoteConfig{
			MaxRetries:     cfg.Connector.MaxRetries,
			RetryDelay:     cfg.Connector.RetryDelay,
			RequestTimeout: cfg.Connector.RequestTimeout,
		}
		if cfg.Connector.RemoteBaseURL == "" {
			return nil, fmt.Errorf("connector.remote_base_url is required in remote mode")
		}
		return connector.NewRemoteClient(cfg.Connector.RemoteBaseURL, remoteCfg), nil
	default:
		router := connector.NewRouter()
		return connector.NewDirectClient(router, cfg.Relay.ListenAddr), nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	signingKey, err := loadSigningKey(signingKeyPath)
	if err != nil {
		return err
	}
	encryptionKey, err := handshake.GenerateEncryptionKey()
	if err != nil {
		return fmt.Errorf("generate handshake encryption key: %w", err)
	}

	log := newLogger(cfg)
	log.Info("starting paidmeshd", logger.String("environment", cfg.Environment), logger.String("listen_addr", cfg.Relay.ListenAddr))

	eventStore := store.NewMemoryStore()

	defaultRule := pricing.Rule{FlatAmount: cfg.Pricing.DefaultFlatAmount, BasePricePerByte: cfg.Pricing.DefaultPricePerByte}
	policy := pricing.NewPolicy(cfg.Owner.Key, cfg.Pricing.AssetScale, defaultRule, cfg.Pricing.HandshakeRequestKind)
	for _, kr := range cfg.Pricing.KindRules {
		policy.SetRule(kr.Kind, pricing.Rule{FlatAmount: kr.FlatAmount, BasePricePerByte: kr.BasePricePerByte})
	}
	policy.SetBootstrapZeroPrice(cfg.Pricing.BootstrapZeroPrice)

	client, err := buildRouter(cfg)
	if err != nil {
		return fmt.Errorf("build connector: %w", err)
	}

	encResolver := &tableEncryptionResolver{}
	selfKeyHex := hexPublicKey(signingKey)
	encResolver.setSelf(selfKeyHex, encryptionKey.PublicKey())

	responder := &handshake.Responder{
		SigningKey:          signingKey,
		EncryptionKey:       encryptionKey,
		Connector:           client,
		Resolver:            encResolver,
		RequestIDs:          nonce.NewManager(cfg.Trust.CacheTTL, cfg.Trust.CacheTTL),
		SupportedChains:     cfg.Owner.SupportedChains,
		SettlementAddresses: cfg.Owner.SettlementAddresses,
		ResponseKind:        cfg.Pricing.HandshakeRequestKind + 1,
	}
	requester := &handshake.Requester{
		SigningKey:          signingKey,
		EncryptionKey:       encryptionKey,
		Connector:           client,
		Resolver:            encResolver,
		RequestKind:         cfg.Pricing.HandshakeRequestKind,
		SupportedChains:     cfg.Owner.SupportedChains,
		SettlementAddresses: cfg.Owner.SettlementAddresses,
	}

	paymentHandler := &paymenthandler.Handler{
		Pricing:          policy,
		Store:            eventStore,
		Handshake:        responder,
		Dispatch:         dispatch.NewTable(),
		HandshakeReqKind: cfg.Pricing.HandshakeRequestKind,
	}
	relayServer := relay.NewServer(eventStore, policy, paymentHandler, relay.Limits{
		MaxSubscriptionsPerConn: cfg.Relay.MaxSubscriptionsPerConn,
		MaxFiltersPerSub:        cfg.Relay.MaxFiltersPerSub,
		OutboundQueueCapacity:   cfg.Relay.OutboundQueueCapacity,
	})
	paymentHandler.Broadcaster = relayServer
	client.RegisterPacketHandler(paymentHandler.HandlePacket)

	genesisPeers := make([]bootstrap.GenesisPeer, 0, len(cfg.Bootstrap.GenesisPeers))
	for _, gp := range cfg.Bootstrap.GenesisPeers {
		genesisPeers = append(genesisPeers, bootstrap.GenesisPeer{Key: gp.Key, TransportEndpoint: gp.TransportEndpoint, RoutingAddress: gp.RoutingAddress})
	}

	machine := bootstrap.NewMachine(bootstrap.Config{
		SelfKey: signingKey,
		SelfRecord: peer.Record{
			RoutingAddress:      cfg.Relay.ListenAddr,
			TransportEndpoint:   "ws://" + cfg.Relay.ListenAddr + "/gossip",
			AssetScale:          cfg.Pricing.AssetScale,
			EncryptionKey:       hex.EncodeToString(encryptionKey.PublicKey().Bytes()),
			SupportedChains:     cfg.Owner.SupportedChains,
			SettlementAddresses: cfg.Owner.SettlementAddresses,
		},
		GenesisPeers:             genesisPeers,
		Connector:                client,
		PeerReader:               &bootstrap.GossipClient{},
		Watcher:                  &bootstrap.GossipClient{},
		Requester:                requester,
		AnnouncePrice:            cfg.Bootstrap.AnnouncePrice,
		ReverseDiscoveryCooldown: cfg.Bootstrap.ReverseDiscoveryCooldown,
		Logger:                   bootstrapLogger{l: log},
	})
	encResolver.setLookup(func(peerKey string) (string, bool) {
		entry, ok := machine.PeerTable().Get(peerKey)
		return entry.EncryptionKey, ok
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := machine.Run(ctx); err != nil {
			log.Error("bootstrap failed", logger.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/gossip", relayServer.Handler())
	if remote, ok := client.(*connector.RemoteClient); ok {
		mux.HandleFunc("/handle-packet", remote.HandlePacketHTTP)
	}

	healthChecker := health.NewHealthChecker(0)
	healthChecker.SetLogger(log)
	healthChecker.RegisterCheck("bootstrap", health.BootstrapHealthCheck(func() string { return string(machine.Phase()) }))
	healthChecker.RegisterCheck("store", health.StoreHealthCheck(func(context.Context) error { return nil }))
	healthChecker.RegisterCheck("connector", health.ConnectorHealthCheck(func(context.Context) error { return nil }))
	healthChecker.RegisterCheck("system", health.SystemHealthCheck())

	bootstrapPhase := func() (string, int, int) {
		h := machine.Health()
		return string(h.Phase), h.PeerCount, h.ChannelCount
	}

	var servers []*http.Server
	if cfg.Health.Enabled {
		healthMux := http.NewServeMux()
		healthMux.Handle(cfg.Health.Path, health.Handler(healthChecker, bootstrapPhase))
		servers = append(servers, startBackground(log, "health", cfg.Health.Addr, healthMux))
	}
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, metrics.Handler())
		servers = append(servers, startBackground(log, "metrics", cfg.Metrics.Addr, metricsMux))
	}

	relaySrv := startBackground(log, "relay", cfg.Relay.ListenAddr, mux)
	servers = append(servers, relaySrv)

	log.Info("paidmeshd ready", logger.String("selfKey", selfKeyHex))

	<-ctx.Done()
	log.Info("shutting down")
	for _, s := range servers {
		_ = s.Shutdown(context.Background())
	}
	return nil
}

func startBackground(log logger.Logger, name, addr string, handler http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		log.Info("listening", logger.String("server", name), logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", logger.String("server", name), logger.Error(err))
		}
	}()
	return srv
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func newLogger(cfg *config.Config) logger.Logger {
	level := logger.InfoLevel
	switch cfg.Logging.Level {
	case "debug":
		level = logger.DebugLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	}
	return logger.NewLogger(os.Stdout, level)
}
