// Package supervisor implements the reconciliation loop: the top-level
// process matching a live worker map against the Strategy Store's
// desired set on a fixed poll interval.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tradedaemon/internal/escrow"
	"tradedaemon/internal/models"
	"tradedaemon/internal/workers"
)

// StrategyLister is the subset of the Strategy Store the Supervisor needs
// to discover the desired worker set each cycle.
type StrategyLister interface {
	ListAll() ([]models.Strategy, error)
}

// Factory constructs the concrete Worker for one strategy row, given its
// decrypted wallet keypair. Kept as an interface (rather than depending on
// the concrete WorkerFactory type) so the reconcile loop is testable
// without a real chain client, swap driver, or oracle.
type Factory interface {
	Build(strategy *models.Strategy, wallet models.TradingWallet, keypair []byte) (workers.Worker, error)
}

// Metrics is the subset of internal/observability.MetricsCollector the
// Supervisor uses to record worker lifecycle counters. Optional: a nil
// Metrics is a no-op, so tests and minimal deployments can omit it.
type Metrics interface {
	RecordCounter(name string, value float64, labels map[string]string)
}

type liveWorker struct {
	worker workers.Worker
	cancel context.CancelFunc
	kind   models.StrategyKind
}

// Supervisor reconciles a live worker map against the Strategy Store.
type Supervisor struct {
	store   StrategyLister
	escrow  escrow.KeyEscrow
	factory Factory
	poll    time.Duration
	metrics Metrics

	mu     sync.Mutex
	live   map[string]liveWorker
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New builds a Supervisor. poll is the reconcile cadence (≈60s typically).
func New(store StrategyLister, keyEscrow escrow.KeyEscrow, factory Factory, poll time.Duration) *Supervisor {
	return &Supervisor{
		store:   store,
		escrow:  keyEscrow,
		factory: factory,
		poll:    poll,
		live:    make(map[string]liveWorker),
		stopCh:  make(chan struct{}),
	}
}

// Run performs one reconcile immediately, then loops on the poll interval
// until ctx is cancelled or Stop is called. On reconcile failure it doubles
// the wait once, then resumes the normal cadence.
func (s *Supervisor) Run(ctx context.Context) {
	s.reconcileLogged(ctx)

	wait := s.poll
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.stopCh:
			s.shutdown()
			return
		case <-time.After(wait):
			if err := s.reconcile(ctx); err != nil {
				log.Printf("[SUPERVISOR][ERROR] reconcile failed: %v", err)
				wait = s.poll * 2
				continue
			}
			wait = s.poll
		}
	}
}

// SetMetrics attaches a Metrics recorder used for worker lifecycle
// counters. Optional; must be called before Run if used.
func (s *Supervisor) SetMetrics(m Metrics) {
	s.metrics = m
}

// Stop ends the reconcile loop; Run stops every live worker before
// returning.
func (s *Supervisor) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

func (s *Supervisor) reconcileLogged(ctx context.Context) {
	if err := s.reconcile(ctx); err != nil {
		log.Printf("[SUPERVISOR][ERROR] initial reconcile failed: %v", err)
	}
}

// reconcile runs one cycle: start missing active workers, restart live
// PriceMonitor workers to refresh state, stop deactivated workers, and
// drop orphans absent from the fetched set.
func (s *Supervisor) reconcile(ctx context.Context) error {
	strategies, err := s.store.ListAll()
	if err != nil {
		return fmt.Errorf("supervisor: listing strategies: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	desired := make(map[string]*models.Strategy, len(strategies))
	for i := range strategies {
		st := &strategies[i]
		desired[st.ID.String()] = st
	}

	for id, st := range desired {
		if !st.IsActive {
			continue
		}
		existing, running := s.live[id]
		if !running {
			s.startLocked(ctx, st)
			continue
		}
		if existing.kind == models.KindPriceMonitor {
			s.stopLocked(id)
			s.startLocked(ctx, st)
		}
	}

	for id := range s.live {
		st, stillDesired := desired[id]
		if !stillDesired || !st.IsActive {
			s.stopLocked(id)
		}
	}

	return nil
}

func (s *Supervisor) startLocked(ctx context.Context, st *models.Strategy) {
	keypair, err := s.escrow.PrivateKeyBytes(st.TradingWalletID.String())
	if err != nil {
		log.Printf("[SUPERVISOR][ERROR] decrypting key material for strategy %s: %v", st.ID, err)
		return
	}
	if len(keypair) != escrow.PrivateKeySize {
		log.Printf("[SUPERVISOR][ERROR] strategy %s: decrypted key has length %d, expected %d", st.ID, len(keypair), escrow.PrivateKeySize)
		return
	}

	w, err := s.factory.Build(st, st.TradingWallet, keypair)
	if err != nil {
		log.Printf("[SUPERVISOR][ERROR] constructing worker for strategy %s: %v", st.ID, err)
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	s.live[st.ID.String()] = liveWorker{worker: w, cancel: cancel, kind: st.Kind}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.Run(workerCtx)
	}()

	log.Printf("[SUPERVISOR][INFO] started worker %s (kind=%s)", st.ID, st.Kind)
	if s.metrics != nil {
		s.metrics.RecordCounter("supervisor_worker_started", 1, map[string]string{"kind": string(st.Kind)})
	}
}

func (s *Supervisor) stopLocked(id string) {
	existing, ok := s.live[id]
	if !ok {
		return
	}
	existing.worker.Stop()
	existing.cancel()
	delete(s.live, id)
	log.Printf("[SUPERVISOR][INFO] stopped worker %s", id)
	if s.metrics != nil {
		s.metrics.RecordCounter("supervisor_worker_stopped", 1, map[string]string{"kind": string(existing.kind)})
	}
}

// shutdown stops every live worker (best-effort) and waits for their
// goroutines to exit before Run returns.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	for _, id := range ids {
		s.stopLocked(id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
