package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"zk-tax-system/internal/chain"
	"zk-tax-system/internal/config"
	"zk-tax-system/internal/database"
	"zk-tax-system/internal/handlers"
	"zk-tax-system/internal/lifecycle"
	"zk-tax-system/internal/outbox"
	"zk-tax-system/internal/payment"
	"zk-tax-system/internal/store"
	"zk-tax-system/internal/workers"
	"zk-tax-system/internal/zkp"
	appbuilder "zk-tax-system/pkg/app_builder"
	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
	"zk-tax-system/pkg/utilities"
)

const (
	ProofEventPublisher   rabbitmq.PublisherAlias = "ProofEventPublisher"
	PaymentEventPublisher rabbitmq.PublisherAlias = "PaymentEventPublisher"
	LogPublisher          rabbitmq.PublisherAlias = "LogPublisher"
)

type builder = appbuilder.AppBuilder[ServiceConfigJson, ServiceConfig]

func main() {
	utilities.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := appbuilder.New[ServiceConfigJson, ServiceConfig]().
		InitLogger(logger.GlobalLoggerConfig{Args: []logger.LoggerArg{{Key: "app", Value: "proof-service"}}}).
		LoadConfig(utilities.GetenvDefault(utilities.ConfigPathEnvKey, "config.json")).
		InitRabbitmq().
		WithOption(attachLogSink).
		WithOption(func(a *builder) {
			if err := wire(ctx, a); err != nil {
				a.Logger.Error(err, "Failed to assemble proof service")
				panic(err)
			}
		}).
		InitGinRouter().
		Build()

	if err := app.Start(ctx); err != nil {
		app.Logger.Fatal(err, "Proof service stopped")
	}
}

func attachLogSink(a *builder) {
	if a.Registry == nil {
		return
	}
	logger.AddSinkToLoggerInstance(a.Logger, rabbitmq.CreateRabbitmqLoggerSink(a.Registry.Publisher(LogPublisher)))
}

func wire(ctx context.Context, a *builder) error {
	cfg := a.Config
	l := a.Logger

	mode, err := config.ParseDeploymentMode(string(cfg.Mode))
	if err != nil {
		return err
	}
	l.Infof("Deployment mode: %s", mode)

	db, err := database.Connect(cfg.DatabaseConf, l)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		a.OnClose(sqlDB.Close)
	}

	backend, err := zkp.Select(cfg.ZkpConf, mode, l.Named("zkp"))
	if err != nil {
		return err
	}

	gateway, err := newGateway(ctx, cfg, mode, backend, l.Named("chain"))
	if err != nil {
		return err
	}

	proofEvents, paymentEvents := eventPublishers(a, store.NewOutboxRepository(db))

	proofs := lifecycle.NewService(
		store.NewProofRepository(db),
		backend,
		gateway,
		proofEvents,
		mode,
		cfg.LifecycleConf,
		l,
	)
	proofs.LedgerTimeout = cfg.ChainConf.CallTimeout
	payments := payment.NewCoordinator(
		store.NewPaymentRepository(db),
		proofs,
		gateway,
		paymentEvents,
		l,
	)

	a.AddWorkerServices(workers.NewExpiryWorker(proofs, cfg.LifecycleConf.ExpirySweepSpec, l))
	if consumer, ok := a.Registry.Consumer(workers.RevocationConsumerAlias); ok {
		a.AddWorkerServices(workers.NewRevocationWorker(proofs, consumer, l))
	}

	if cfg.LifecycleConf.InternalToken == "" {
		l.Warn("No internal token configured, internal routes reject every request")
	}
	a.AddGinMiddleware(handlers.Middlewares(cfg.LifecycleConf.InternalToken)...)
	a.AddGinRoutes(handlers.Routes(
		handlers.NewProofHandler(proofs),
		handlers.NewPaymentHandler(payments),
		handlers.NewChainHandler(gateway),
	)...)
	return nil
}

// eventPublishers routes status events through the outbox when messaging is enabled.
func eventPublishers(a *builder, repo store.OutboxRepository) (rabbitmq.IRabbitmqPublisher, rabbitmq.IRabbitmqPublisher) {
	if a.Registry == nil {
		return rabbitmq.NopPublisher{}, rabbitmq.NopPublisher{}
	}
	a.AddWorkerServices(workers.NewOutboxWorker(repo, a.Registry, a.Config.LifecycleConf.OutboxPublishSpec, a.Logger))
	return outbox.NewPublisher(ProofEventPublisher, repo), outbox.NewPublisher(PaymentEventPublisher, repo)
}

func newGateway(ctx context.Context, cfg ServiceConfig, mode config.DeploymentMode, backend zkp.Backend, l *logger.Logger) (chain.Gateway, error) {
	switch cfg.ChainConf.Gateway {
	case "ethereum":
		signerKey := utilities.GetenvDefault(cfg.ChainConf.SignerKeyEnv, "")
		return chain.DialEthGateway(ctx, cfg.ChainConf, signerKey, l)
	case "simulated":
		if mode.IsProduction() {
			return nil, fmt.Errorf("production requires the ethereum gateway")
		}
		opts := []chain.SimulatedOption{
			chain.WithFiat(cfg.ChainConf.TokenDecimals, cfg.ChainConf.FiatRate, cfg.ChainConf.FiatCurrency),
		}
		if vk := backend.VerifyingKey(); vk != nil {
			verifier, err := chain.NewEVMVerifier(vk)
			if err != nil {
				return nil, fmt.Errorf("build simulated verifier: %w", err)
			}
			opts = append(opts, chain.WithVerifier(verifier))
		}
		l.Warn("Using simulated ledger, transactions are synthetic")
		return chain.NewSimulatedGateway(l, opts...), nil
	default:
		return nil, fmt.Errorf("unknown chain gateway %q", cfg.ChainConf.Gateway)
	}
}
