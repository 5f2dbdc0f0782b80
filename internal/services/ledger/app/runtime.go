package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/folio/internal/platform/logging"
	"github.com/louisbranch/folio/internal/services/ledger/consumer"
	"github.com/louisbranch/folio/internal/services/ledger/outbox"
	"github.com/louisbranch/folio/internal/services/ledger/projection"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// RuntimeConfig controls the ledger process.
type RuntimeConfig struct {
	Port         int
	DBPath       string
	PollInterval time.Duration
	BatchSize    int
	MessageCodec string
	// Broker receives outbox messages. Nil logs them.
	Broker outbox.Broker
	Logger zerolog.Logger
}

const defaultLedgerPort = 8095

// Health service names reported by the runtime.
const (
	HealthProjection = "ledger.projection"
	HealthOutbox     = "ledger.outbox"
)

// Run opens the ledger store and runs the projection and outbox consumers
// beside a gRPC health server until ctx is done.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if cfg.Port <= 0 {
		cfg.Port = defaultLedgerPort
	}
	ledger, err := Open(cfg.DBPath, cfg.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			cfg.Logger.Warn().Err(closeErr).Msg("close ledger store")
		}
	}()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on ledger port %d: %w", cfg.Port, err)
	}
	return Serve(ctx, ledger.Store, listener, cfg)
}

// Serve runs the consumers over store and the health server on listener.
// The first failing task cancels the others.
func Serve(ctx context.Context, store storage.Store, listener net.Listener, cfg RuntimeConfig) error {
	runners, err := newRunners(store, cfg)
	if err != nil {
		listener.Close()
		return err
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	for _, runner := range runners {
		service := "ledger." + runner.Name()
		healthServer.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
		g.Go(func() error {
			err := runner.Run(gctx)
			healthServer.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s runner: %w", runner.Name(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		cfg.Logger.Info().Str("addr", listener.Addr().String()).Msg("ledger health server listening")
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve health: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})
	return g.Wait()
}

func newRunners(store storage.Store, cfg RuntimeConfig) ([]*consumer.Runner, error) {
	codec, err := outbox.NewCodec(cfg.MessageCodec)
	if err != nil {
		return nil, err
	}
	broker := cfg.Broker
	if broker == nil {
		broker = outbox.LogBroker{Logger: logging.Component(cfg.Logger, "broker")}
	}
	publisher, err := outbox.NewPublisher(codec, broker)
	if err != nil {
		return nil, err
	}

	projectionLogger := logging.Component(cfg.Logger, projection.ConsumerName)
	projections, err := projection.NewRunner(store, runnerOptions(cfg, &projectionLogger))
	if err != nil {
		return nil, err
	}
	outboxLogger := logging.Component(cfg.Logger, outbox.ConsumerName)
	publications, err := outbox.NewRunner(store, publisher, runnerOptions(cfg, &outboxLogger))
	if err != nil {
		return nil, err
	}
	return []*consumer.Runner{projections, publications}, nil
}

func runnerOptions(cfg RuntimeConfig, logger *zerolog.Logger) consumer.Options {
	return consumer.Options{
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	}
}
