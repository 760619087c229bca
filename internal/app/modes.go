package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/gogratta/pm-contracts/internal/collateral"
	"github.com/gogratta/pm-contracts/internal/crypto"
	"github.com/gogratta/pm-contracts/internal/ctf"
	"github.com/gogratta/pm-contracts/internal/domain"
	"github.com/gogratta/pm-contracts/internal/notify"
	"github.com/gogratta/pm-contracts/internal/pipeline"
	"github.com/gogratta/pm-contracts/internal/server"
	"github.com/gogratta/pm-contracts/internal/server/handler"
	"github.com/gogratta/pm-contracts/internal/server/ws"
	"github.com/gogratta/pm-contracts/internal/service"
)

// ledgerServices bundles the service layer built on top of a wired engine.
// engine and registry are nil on read-only deployments; the services then
// answer reads from cache and store and reject writes.
type ledgerServices struct {
	custody    common.Address
	engine     *ctf.Ledger
	registry   *collateral.Registry
	journal    *service.Journal
	conditions *service.ConditionService
	positions  *service.PositionService
	transfers  *service.TransferService
	collateral *service.CollateralService
}

// ServeMode runs the live ledger: identity load, state restore, and the HTTP
// API with full write access.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildLedger(ctx, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	a.startNotifyBridge(ctx, g, deps)

	// No pipeline in serve mode: trigger requests answer 503 until a replica
	// in archive or full mode picks the jobs up.
	ph := handler.NewPipelineHandler(a.logger)
	a.startHTTPServer(ctx, g, deps, svcs, ph, false)

	return g.Wait()
}

// ArchiveMode runs only the snapshot and archive pipeline. It holds no engine
// and serves no API; it exists so archival can run on a separate replica.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: blob storage is not wired")
	}
	if !a.cfg.Pipeline.Enabled {
		a.logger.WarnContext(ctx, "pipeline.enabled is false, but archive mode always runs the pipeline")
	}

	g, ctx := errgroup.WithContext(ctx)

	// No engine in this mode, so there are no in-memory holdings to flush;
	// the snapshotter only uploads balance snapshots from the store.
	orch := a.newPipeline(deps, nil)
	g.Go(func() error {
		err := orch.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	return g.Wait()
}

// MonitorMode serves the read-only API: no identity, no engine, no mutating
// routes. Reads come from cache with a store fallback.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.readOnlyServices(deps)
	ph := handler.NewPipelineHandler(a.logger)
	a.startHTTPServer(ctx, g, deps, svcs, ph, true)

	return g.Wait()
}

// FullMode runs everything in one process: the live ledger, the HTTP API, and
// (when enabled) the snapshot/archive pipeline with manual triggers wired to
// POST /api/pipeline/trigger.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildLedger(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	a.startNotifyBridge(ctx, g, deps)

	ph := handler.NewPipelineHandler(a.logger)
	if deps.Archiver != nil {
		orch := a.newPipeline(deps, svcs.collateral)
		ph = ph.WithSnapshotTrigger(orch.SnapshotTrigger()).
			WithArchiveTrigger(orch.ArchiveTrigger())
		g.Go(func() error {
			err := orch.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return err
		})
	}

	a.startHTTPServer(ctx, g, deps, svcs, ph, false)

	return g.Wait()
}

// buildLedger loads the custody identity, constructs the in-memory engine,
// restores persisted state into it, and builds the service layer on top. It
// must complete before the first request is served.
func (a *App) buildLedger(ctx context.Context, deps *Dependencies) (*ledgerServices, error) {
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Identity.PrivateKey,
		EncryptedKeyPath: a.cfg.Identity.EncryptedKeyPath,
		KeyPassword:      a.cfg.Identity.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("load identity key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex, a.cfg.Ledger.ChainID)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	custody := signer.Address()

	registry := collateral.NewRegistry()
	engine := ctf.New(custody, registry)

	journal := service.NewJournal(deps.EventStore, deps.SignalBus, a.logger)
	engine.AddSink(journal)

	collateralSvc := service.NewCollateralService(
		registry, custody, deps.CollateralStore, a.cfg.Collateral.AllowMint, deps.AuditStore, a.logger,
	)
	for _, asset := range a.cfg.Collateral.Assets {
		regErr := collateralSvc.Register(ctx, domain.CollateralAsset{
			Address:  common.HexToAddress(asset.Address),
			Symbol:   asset.Symbol,
			Name:     asset.Name,
			Decimals: uint8(asset.Decimals),
		})
		if regErr != nil {
			return nil, fmt.Errorf("register collateral %s: %w", asset.Symbol, regErr)
		}
	}

	// Restore persisted state into the engine. Limit zero loads every row.
	conditions, err := deps.ConditionStore.List(ctx, domain.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("load conditions: %w", err)
	}
	balances, err := deps.BalanceStore.LoadBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	allowances, err := deps.BalanceStore.LoadAllowances(ctx)
	if err != nil {
		return nil, fmt.Errorf("load allowances: %w", err)
	}
	lastSeq, err := deps.EventStore.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("load journal seq: %w", err)
	}
	if err := engine.Restore(conditions, balances, allowances, lastSeq); err != nil {
		return nil, fmt.Errorf("restore engine: %w", err)
	}
	holdings, err := collateralSvc.RestoreHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore holdings: %w", err)
	}

	a.logger.InfoContext(ctx, "ledger state restored",
		slog.String("custody", custody.Hex()),
		slog.Int("conditions", len(conditions)),
		slog.Int("balances", len(balances)),
		slog.Int("allowances", len(allowances)),
		slog.Int("holdings", holdings),
		slog.Uint64("last_seq", lastSeq),
	)

	return &ledgerServices{
		custody:    custody,
		engine:     engine,
		registry:   registry,
		journal:    journal,
		conditions: service.NewConditionService(engine, deps.ConditionStore, deps.ConditionCache, journal, deps.AuditStore, a.logger),
		positions:  service.NewPositionService(engine, custody, registry, deps.BalanceStore, deps.CollateralStore, deps.BalanceCache, journal, deps.AuditStore, a.logger),
		transfers:  service.NewTransferService(engine, deps.BalanceStore, deps.BalanceCache, journal, deps.AuditStore, a.logger),
		collateral: collateralSvc,
	}, nil
}

// readOnlyServices builds the service layer with no engine attached. Every
// write returns ErrReadOnly.
func (a *App) readOnlyServices(deps *Dependencies) *ledgerServices {
	journal := service.NewJournal(deps.EventStore, deps.SignalBus, a.logger)
	return &ledgerServices{
		journal:    journal,
		conditions: service.NewConditionService(nil, deps.ConditionStore, deps.ConditionCache, journal, deps.AuditStore, a.logger),
		positions:  service.NewPositionService(nil, common.Address{}, nil, deps.BalanceStore, deps.CollateralStore, deps.BalanceCache, journal, deps.AuditStore, a.logger),
		transfers:  service.NewTransferService(nil, deps.BalanceStore, deps.BalanceCache, journal, deps.AuditStore, a.logger),
		collateral: service.NewCollateralService(nil, common.Address{}, deps.CollateralStore, false, deps.AuditStore, a.logger),
	}
}

// newPipeline assembles the snapshot and archive workers. holdings is nil
// when no engine runs in this process.
func (a *App) newPipeline(deps *Dependencies, holdings pipeline.HoldingSnapshotter) *pipeline.Orchestrator {
	snapshotInterval := a.cfg.Pipeline.SnapshotInterval.Duration
	if snapshotInterval <= 0 {
		snapshotInterval = time.Hour
	}
	archiveInterval := a.cfg.Pipeline.ArchiveInterval.Duration
	if archiveInterval <= 0 {
		archiveInterval = 24 * time.Hour
	}

	snapshotter := pipeline.NewSnapshotter(deps.Archiver, holdings, a.logger)
	archiver := pipeline.NewArchiver(
		deps.Archiver, deps.EventStore, deps.LockManager,
		a.cfg.Pipeline.ArchiveRetentionDays, a.logger,
	)
	return pipeline.NewOrchestrator(snapshotter, archiver, snapshotInterval, archiveInterval, a.logger)
}

// startNotifyBridge forwards journal events from the ledger channel to the
// configured notification senders.
func (a *App) startNotifyBridge(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	bridge := notify.NewBridge(deps.SignalBus, deps.Notifier, service.ChannelLedger, a.logger)
	g.Go(func() error {
		err := bridge.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})
}

// startHTTPServer adds the API server and its WebSocket hub to the given
// errgroup. The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svcs *ledgerServices,
	pipelineHandler *handler.PipelineHandler,
	readOnly bool,
) {
	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, but this mode always serves the API")
	}

	sessions := &crypto.SessionAuth{
		Secret: a.cfg.Auth.SessionSecret,
		TTL:    a.cfg.Auth.SessionTTL.Duration,
	}
	accessSvc := service.NewAccessService(
		a.cfg.Ledger.ChainID,
		sessions,
		a.cfg.Auth.MaxClockSkew.Duration,
		a.cfg.Auth.APIKeys,
		deps.LockManager,
		deps.AuditStore,
		a.logger,
	)

	startedAt := time.Now().UTC()
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
		Origins:   a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(startedAt),
		Status:     handler.NewStatusHandler(a.cfg.Mode, svcs.custody, a.cfg.Ledger.ChainID, deps.EventStore, a.logger),
		Auth:       handler.NewAuthHandler(accessSvc, a.logger),
		Conditions: handler.NewConditionHandler(svcs.conditions, a.logger),
		Positions:  handler.NewPositionHandler(svcs.positions, a.logger),
		Transfers:  handler.NewTransferHandler(svcs.transfers, a.logger),
		Collateral: handler.NewCollateralHandler(svcs.collateral, a.logger),
		Events:     handler.NewEventHandler(deps.EventStore, a.logger),
		Pipeline:   pipelineHandler,
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
			ReadOnly:    readOnly,
			Faucet:      a.cfg.Collateral.AllowMint,
		},
		handlers,
		server.Auth{Sessions: accessSvc, Keys: accessSvc},
		deps.RateLimiter,
		hub,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
