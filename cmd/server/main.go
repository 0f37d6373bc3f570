package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/ptcgai/referee-server-go/internal/catalog"
	"github.com/ptcgai/referee-server-go/internal/config"
	"github.com/ptcgai/referee-server-go/internal/game"
	"github.com/ptcgai/referee-server-go/internal/game/compiler"
	"github.com/ptcgai/referee-server-go/internal/game/interpreter"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
	"github.com/ptcgai/referee-server-go/internal/metrics"
	"github.com/ptcgai/referee-server-go/internal/repository"
	"github.com/ptcgai/referee-server-go/internal/rulebook"
	"github.com/ptcgai/referee-server-go/internal/server"
	"github.com/ptcgai/referee-server-go/internal/tracing"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, v, err := config.Open(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := zap.NewAtomicLevelAt(parseLevel(cfg.Logging.Level))
	logger, err := initLogger(cfg.Logging, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting referee server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	config.Watch(v, func(next *config.Config) {
		if next.Logging.Level != level.Level().String() {
			level.SetLevel(parseLevel(next.Logging.Level))
			logger.Info("log level changed", zap.String("level", next.Logging.Level))
		}
	}, func(err error) {
		logger.Warn("ignoring invalid configuration change", zap.Error(err))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	store, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	cards, err := catalog.Load(cfg.Engine.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load card catalog", zap.Error(err))
	}
	logger.Info("card catalog loaded",
		zap.String("path", cfg.Engine.CatalogPath),
		zap.Int("cards", cards.Len()),
	)

	tracer, err := tracing.New(cfg.Tracing, nil)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	m := metrics.New()
	bus := rules.NewEventBus()
	m.Watch(bus)

	interp := interpreter.New(interpreter.Chain{
		interpreter.NewCompiledSource(store,
			compiler.New(logger, compiler.WithVersion(cfg.Engine.PlanVersion)), logger),
		interpreter.NewLegacySource(logger),
	}, logger, interpreter.WithCardLookup(func(name string) (*model.CardDefinition, bool) {
		defs := cards.ByName(name)
		if len(defs) == 0 {
			return nil, false
		}
		return defs[0], true
	}))

	refOpts := []referee.Option{
		referee.WithInterpreter(interp),
		referee.WithEventBus(bus),
		referee.WithMatchStore(store),
	}
	if cfg.Engine.RulebookPath != "" {
		kb, err := rulebook.Load(cfg.Engine.RulebookPath)
		if err != nil {
			logger.Warn("rulebook unavailable; query_rule will find nothing",
				zap.String("path", cfg.Engine.RulebookPath),
				zap.Error(err),
			)
		} else {
			refOpts = append(refOpts, referee.WithRuleBook(kb))
			logger.Info("rulebook loaded", zap.Int("sections", kb.Len()))
		}
	}

	registry := game.NewRegistry(logger,
		game.WithRefereeOptions(refOpts...),
		game.WithHooks(m),
		game.WithReplayDir(cfg.Engine.ReplayDir),
		game.WithLimit(cfg.Server.MaxMatches),
	)

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.ChainUnaryInterceptors(
			server.RecoveryInterceptor(logger),
			server.LoggingInterceptor(logger),
			server.MetricsInterceptor(m),
			server.TracingInterceptor(tracer),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.Server.GRPC.KeepaliveTime,
			Timeout: cfg.Server.GRPC.KeepaliveTimeout,
		}),
		grpc.MaxConcurrentStreams(uint32(cfg.Server.GRPC.MaxConcurrentStreams)),
	)
	server.RegisterRefereeServer(grpcServer, server.NewRefereeService(registry, cards, logger))

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	go func() {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	hub := server.NewHub(registry, bus, logger,
		server.WithHubMetrics(m),
		server.WithWriteTimeout(cfg.Server.WebSocket.WriteTimeout),
		server.WithMaxMessageSize(cfg.Server.WebSocket.MaxMessageSize),
	)
	go func() {
		if wsErr := server.StartWebSocketServer(ctx, cfg.Server.WebSocket, hub, logger); wsErr != nil {
			logger.Error("WebSocket server error", zap.Error(wsErr))
		}
	}()

	if cfg.Server.Metrics.Enabled {
		go func() {
			if mErr := m.Serve(ctx, cfg.Server.Metrics.Address, logger); mErr != nil {
				logger.Error("metrics server error", zap.Error(mErr))
			}
		}()
	}

	logger.Info("referee server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
		zap.String("database", cfg.Database.Driver),
		zap.Int("max_matches", cfg.Server.MaxMatches),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()
	grpcServer.GracefulStop()

	logger.Info("referee server stopped", zap.Int("matches_hosted", registry.Len()))
}

func parseLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// initLogger builds the zap logger. level stays live so configuration
// reloads can change it.
func initLogger(cfg config.LoggingConfig, level zap.AtomicLevel) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = level

	return zapCfg.Build()
}
