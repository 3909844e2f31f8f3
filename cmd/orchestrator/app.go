package main

import (
	"fmt"
	"log/slog"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/forgeflow/orchestrator/pkg/agentregistry"
	"github.com/forgeflow/orchestrator/pkg/bus"
	"github.com/forgeflow/orchestrator/pkg/config"
	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/learning"
	"github.com/forgeflow/orchestrator/pkg/learning/applier"
	"github.com/forgeflow/orchestrator/pkg/learning/validator"
	"github.com/forgeflow/orchestrator/pkg/logging"
	"github.com/forgeflow/orchestrator/pkg/monitor"
	"github.com/forgeflow/orchestrator/pkg/phasecontroller"
	"github.com/forgeflow/orchestrator/pkg/safety"
	"github.com/forgeflow/orchestrator/pkg/statestore"
)

// app bundles every component a command needs, built once per CLI
// invocation from the loaded Config.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *statestore.Store
	sqlIndex   *statestore.SQLIndex
	events     *events.Bus
	bus        *bus.Bus
	etcdClient *clientv3.Client
	agents     *agentregistry.Registry
	safety     *safety.Controller
	phases     *phasecontroller.Controller
	pipeline   *learning.Pipeline
	monitor    *monitor.Monitor
}

// newApp wires every component from cfg. Agent dispatch uses an empty
// plugin handle set: with no agent binaries configured, every dispatch
// attempt fails and flows through the bus's own retry/dead-letter path,
// which is the correct degraded behavior rather than a fabricated
// always-succeeds stub.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := statestore.Open(cfg.State.Root)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	var sqlIndex *statestore.SQLIndex
	if cfg.SQLIndex.Enabled {
		sqlIndex, err = statestore.OpenSQLIndex(cfg.SQLIndex.Driver, cfg.SQLIndex.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sql index: %w", err)
		}
		store.WithSQLIndex(sqlIndex)
	}

	agents, err := agentregistry.LoadFile(cfg.AgentsFile)
	if err != nil {
		return nil, fmt.Errorf("load agent registry: %w", err)
	}

	if cfg.Discovery.Enabled {
		sync, err := agentregistry.NewConsulSync(cfg.Discovery.Address, cfg.Discovery.Prefix, cfg.Discovery.Tags, logger)
		if err != nil {
			return nil, fmt.Errorf("connect consul discovery: %w", err)
		}
		if err := sync.Apply(agents); err != nil {
			logger.Warn("consul discovery sync failed", "error", err)
		}
	}

	eventBus := events.New()

	dispatcher := bus.NewPluginDispatcher(map[string]*agentregistry.PluginHandle{})
	msgBus := bus.New(bus.RetryPolicy(cfg.Retry), dispatcher, eventBus, logger)

	var etcdClient *clientv3.Client
	if cfg.Lock.Enabled {
		etcdClient, err = clientv3.New(clientv3.Config{
			Endpoints:   cfg.Lock.Endpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("connect etcd for distributed locking: %w", err)
		}
		msgBus.UseEtcdLocking(bus.NewEtcdLocker(etcdClient, cfg.Lock.TTL, "orchestrator/locks"))
	}

	safetyCtrl, err := safety.New(safety.Config{
		ManualBlockListPath: cfg.ManualBlockListPath,
		RateLimits: safety.RateLimits{
			PerMinute: int64(cfg.RateLimits.PerMinute),
			PerHour:   int64(cfg.RateLimits.PerHour),
			PerDay:    int64(cfg.RateLimits.PerDay),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build safety controller: %w", err)
	}

	phases := phasecontroller.New(store, msgBus, eventBus,
		phasecontroller.WithApprovalTTL(cfg.ApprovalExpiry),
	)

	applierState := applier.NewState()
	validatorMode := validator.ModeStrict
	if !cfg.RequireAllGates {
		validatorMode = validator.ModeRelaxed
	}
	pipeline, err := learning.New(learning.Config{
		AutoApply:           cfg.AutoApply,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		ValidatorMode:       validatorMode,
		ApplierConfig: applier.Config{
			VerifyAfterApply:      true,
			AutoRollbackOnFailure: cfg.AutoRollback,
		},
	}, store, eventBus, safetyCtrl, applierState)
	if err != nil {
		return nil, fmt.Errorf("build learning pipeline: %w", err)
	}

	mon := monitor.New(monitor.Config{Namespace: "orchestrator"}, eventBus)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		sqlIndex:   sqlIndex,
		events:     eventBus,
		bus:        msgBus,
		etcdClient: etcdClient,
		agents:     agents,
		safety:     safetyCtrl,
		phases:     phases,
		pipeline:   pipeline,
		monitor:    mon,
	}, nil
}

func (a *app) close() {
	a.monitor.Close()
	_ = a.safety.Close()
	if a.sqlIndex != nil {
		_ = a.sqlIndex.Close()
	}
	if a.etcdClient != nil {
		_ = a.etcdClient.Close()
	}
}

// bootstrap loads configuration from cli.Config and wires a fresh app.
func bootstrap(cli *CLI) (*app, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(cfg, logging.Default())
}
