package reconciler

import (
	"context"
	"strings"
	"time"

	"github.com/WilsonNous/NousCard/internal/audit"
	"github.com/WilsonNous/NousCard/internal/lock"
	"github.com/WilsonNous/NousCard/internal/matcher"
	"github.com/WilsonNous/NousCard/internal/models"
	"github.com/WilsonNous/NousCard/internal/repository"
	"github.com/WilsonNous/NousCard/pkg/errors"
	"github.com/WilsonNous/NousCard/pkg/logger"

	"github.com/google/uuid"
)

// RunState identifies where a reconciliation run currently is. Runs move
// strictly forward through the states; there are no retries within a run.
type RunState string

const (
	StateLoading               RunState = "loading"
	StateMatchingExact         RunState = "matching_exact"
	StateMatchingTolerant      RunState = "matching_tolerant"
	StateMatchingPartial       RunState = "matching_partial"
	StateMatchingConsolidation RunState = "matching_consolidation"
	StateFinalizing            RunState = "finalizing"
	StateCommitted             RunState = "committed"
	StateRolledBack            RunState = "rolled_back"
)

// DefaultBudget is the wall-clock budget for one run. When it is exhausted
// the run stops matching, commits what it staged and reports a partial
// timeout; the next run picks up the remaining backlog.
const DefaultBudget = 25 * time.Second

// Config carries the orchestrator's tunables.
type Config struct {
	// Matcher holds the amount and date tolerances. Nil means defaults.
	Matcher *matcher.Config

	// Budget is the wall-clock budget per run. Zero means DefaultBudget.
	Budget time.Duration

	// Logger receives run progress. Nil means the global logger.
	Logger logger.Logger
}

// Orchestrator runs the reconciliation state machine for one tenant at a
// time: acquire the tenant lock, load the backlog, run the strategy passes
// in order, commit atomically and emit the audit fact.
type Orchestrator struct {
	repo   repository.Repository
	locker lock.TenantLocker
	sink   audit.Sink
	engine *matcher.Engine
	budget time.Duration
	log    logger.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(repo repository.Repository, locker lock.TenantLocker, sink audit.Sink, config *Config) (*Orchestrator, error) {
	if config == nil {
		config = &Config{}
	}

	matcherConfig := config.Matcher
	if matcherConfig == nil {
		matcherConfig = matcher.DefaultConfig()
	}
	if err := matcherConfig.Validate(); err != nil {
		return nil, errors.ConfigurationError("matcher", matcherConfig.String(), err)
	}

	budget := config.Budget
	if budget == 0 {
		budget = DefaultBudget
	}
	if budget < 0 {
		return nil, errors.ConfigurationError("budget", budget, nil)
	}

	log := config.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	if sink == nil {
		sink = audit.NewLogSink(log)
	}

	return &Orchestrator{
		repo:   repo,
		locker: locker,
		sink:   sink,
		engine: matcher.NewEngine(matcherConfig),
		budget: budget,
		log:    log.WithComponent("reconciler"),
	}, nil
}

// Run executes one reconciliation run for the tenant. It returns the run
// statistics on success, including partial-timeout runs, which commit what
// they matched. The returned error is an *errors.EngineError: no tenant,
// a concurrent run, or a persistence failure.
func (o *Orchestrator) Run(ctx context.Context, tenantID, userID string) (*models.RunStatistics, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.NoTenantContext(tenantID)
	}

	runID := uuid.NewString()
	log := o.log.WithFields(logger.Fields{
		"tenant_id": tenantID,
		"run_id":    runID,
	})

	release, err := o.locker.Acquire(ctx, tenantID)
	if err == lock.ErrAlreadyHeld {
		return nil, errors.AlreadyRunning(tenantID)
	}
	if err != nil {
		return nil, errors.InternalError("acquire tenant lock", err)
	}
	defer func() {
		if err := release(ctx); err != nil {
			log.WithError(err).Warn("Failed to release tenant lock")
		}
	}()

	start := time.Now()
	deadline := start.Add(o.budget)
	overBudget := func() bool {
		return ctx.Err() != nil || !time.Now().Before(deadline)
	}

	state := StateLoading
	setState := func(next RunState) {
		state = next
		log.WithField("state", string(state)).Debug("Run state changed")
	}

	tx, err := o.repo.Begin(ctx)
	if err != nil {
		return nil, errors.PersistenceFailure("begin transaction", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		setState(StateRolledBack)
		if err := tx.Rollback(); err != nil {
			log.WithError(err).Warn("Failed to roll back run transaction")
		}
	}()

	stats := &models.RunStatistics{}

	stage := logger.NewStageLogger("load", log)
	sales, receipts, err := tx.LoadUnsettled(ctx, tenantID)
	if err != nil {
		stage.Error(err, "Failed to load backlog")
		return nil, errors.PersistenceFailure("load unsettled backlog", err)
	}
	matchedPairs, err := tx.LoadMatchedPairs(ctx, tenantID)
	if err != nil {
		stage.Error(err, "Failed to load matched pairs")
		return nil, errors.PersistenceFailure("load matched pairs", err)
	}

	sales, receipts = o.screenBacklog(sales, receipts, stats, log)
	stage.WithField("sales", len(sales)).WithField("receipts", len(receipts)).Success("Backlog loaded")

	pool := matcher.NewPool(sales, receipts)
	recorder := NewSettlementRecorder(tx, tenantID, matchedPairs, o.engine.Config().Epsilon, log)

	timedOut := false

	passes := []struct {
		state   RunState
		find    func(*models.Sale, *matcher.Pool) *matcher.Allocation
		counter *int
	}{
		{StateMatchingExact, o.engine.FindExact, &stats.SettledCount},
		{StateMatchingTolerant, o.engine.FindTolerant, &stats.TolerantCount},
		{StateMatchingPartial, o.engine.FindPartial, &stats.PartialCount},
	}
	for _, pass := range passes {
		if timedOut {
			break
		}
		setState(pass.state)
		timedOut, err = o.runSinglePass(ctx, pool, recorder, pass.find, pass.counter, overBudget)
		if err != nil {
			return nil, err
		}
	}

	if !timedOut {
		setState(StateMatchingConsolidation)
		timedOut, err = o.runConsolidationPass(ctx, pool, recorder, stats, overBudget)
		if err != nil {
			return nil, err
		}
	}

	setState(StateFinalizing)
	stats.PartialTimeout = timedOut
	if timedOut {
		stats.AddNote("time budget of %s exhausted; staged matches committed, remaining backlog deferred", o.budget)
		log.Warn("Run exceeded its time budget, committing partial result")
	}
	if skipped := recorder.SkippedPairs(); skipped > 0 {
		stats.AddNote("%d allocation(s) skipped by the duplicate-pair guard", skipped)
	}

	for _, s := range sales {
		if s.OutstandingBalance().IsPositive() {
			stats.StillPendingSaleCount++
		}
	}
	for _, r := range receipts {
		if r.OutstandingBalance().IsPositive() {
			stats.StillOpenReceiptCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.PersistenceFailure("commit run", err)
	}
	committed = true
	setState(StateCommitted)
	stats.Duration = time.Since(start)

	event := audit.Event{
		TenantID:     tenantID,
		UserID:       userID,
		RunID:        runID,
		CountsByKind: stats.CountsByKind(),
		DurationMs:   stats.Duration.Milliseconds(),
		TimedOut:     timedOut,
	}
	if err := o.sink.Record(ctx, event); err != nil {
		log.WithError(err).Warn("Failed to record audit fact")
	}

	log.WithFields(logger.Fields{
		"settled":       stats.SettledCount,
		"tolerant":      stats.TolerantCount,
		"partial":       stats.PartialCount,
		"consolidated":  stats.ConsolidatedCount,
		"still_pending": stats.StillPendingSaleCount,
		"duration":      stats.Duration.String(),
	}).Info("Reconciliation run committed")

	return stats, nil
}

// screenBacklog drops rows that fail basic validation before they reach
// the pool, counting and noting each so the run report names them.
func (o *Orchestrator) screenBacklog(sales []*models.Sale, receipts []*models.Receipt, stats *models.RunStatistics, log logger.Logger) ([]*models.Sale, []*models.Receipt) {
	usableSales := make([]*models.Sale, 0, len(sales))
	for _, s := range sales {
		if err := s.Validate(); err != nil {
			stats.SkippedSaleCount++
			stats.AddNote("sale %d skipped: %v", s.ID, err)
			log.WithError(err).WithField("sale_id", s.ID).Warn("Skipping invalid sale")
			continue
		}
		usableSales = append(usableSales, s)
	}

	usableReceipts := make([]*models.Receipt, 0, len(receipts))
	for _, r := range receipts {
		if err := r.Validate(); err != nil {
			stats.SkippedReceiptCount++
			stats.AddNote("receipt %d skipped: %v", r.ID, err)
			log.WithError(err).WithField("receipt_id", r.ID).Warn("Skipping invalid receipt")
			continue
		}
		usableReceipts = append(usableReceipts, r)
	}

	return usableSales, usableReceipts
}

// runSinglePass applies one single-receipt strategy to every sale still in
// the pool. A successful allocation consumes both sides for the rest of
// the run. Returns true when the budget ran out mid-pass.
func (o *Orchestrator) runSinglePass(ctx context.Context, pool *matcher.Pool, recorder *SettlementRecorder, find func(*models.Sale, *matcher.Pool) *matcher.Allocation, counter *int, overBudget func() bool) (bool, error) {
	for _, sale := range pool.RemainingSales() {
		if overBudget() {
			return true, nil
		}

		alloc := find(sale, pool)
		if alloc == nil {
			continue
		}

		recorded, err := recorder.Record(ctx, alloc)
		if err != nil {
			return false, errors.PersistenceFailure("record settlement", err)
		}
		if !recorded {
			continue
		}

		pool.TakeSale(sale.ID)
		pool.TakeReceipt(alloc.Receipt.ID)
		*counter++
	}
	return false, nil
}

// runConsolidationPass covers each remaining receipt with a group of still
// open sales. The receipt is consumed even when only partially covered;
// its unallocated remainder stays available to the next run through the
// persisted running totals.
func (o *Orchestrator) runConsolidationPass(ctx context.Context, pool *matcher.Pool, recorder *SettlementRecorder, stats *models.RunStatistics, overBudget func() bool) (bool, error) {
	for _, receipt := range pool.RemainingReceipts() {
		if overBudget() {
			return true, nil
		}

		allocations := o.engine.FindConsolidation(receipt, pool)
		if len(allocations) == 0 {
			continue
		}

		recordedAny := false
		for i := range allocations {
			recorded, err := recorder.Record(ctx, &allocations[i])
			if err != nil {
				return false, errors.PersistenceFailure("record settlement", err)
			}
			if !recorded {
				continue
			}
			pool.TakeSale(allocations[i].Sale.ID)
			stats.ConsolidatedCount++
			recordedAny = true
		}
		if recordedAny {
			pool.TakeReceipt(receipt.ID)
		}
	}
	return false, nil
}
