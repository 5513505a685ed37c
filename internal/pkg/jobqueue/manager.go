package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	metrics "github.com/ManuelReschke/CreditFox/internal/pkg/metrics/counter"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue              *Queue
	counterFlushTicker *time.Ticker
	auditSweepTicker   *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:  NewQueue(envInt("JOBQUEUE_WORKERS", 5)),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Start counter flush worker (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	// Periodic ledger audit sweep - configurable interval
	auditInterval := time.Duration(envInt("LEDGER_AUDIT_INTERVAL_MINUTES", 60)) * time.Minute
	m.auditSweepTicker = time.NewTicker(auditInterval)
	m.wg.Add(1)
	go m.auditSweepWorker(auditInterval)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	if m.auditSweepTicker != nil {
		m.auditSweepTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// counterFlushWorker periodically flushes pending quota counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := m.flushCountersOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush error: %v", err)
			}
		}
	}
}

// auditSweepWorker periodically enqueues a full ledger audit sweep
func (m *Manager) auditSweepWorker(interval time.Duration) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started audit sweep worker (interval: %s)", interval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Audit sweep worker stopping")
			return
		case <-m.auditSweepTicker.C:
			if err := m.RunAuditSweepOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Audit sweep enqueue error: %v", err)
			}
		}
	}
}

func (m *Manager) flushCountersOnce() error {
	// Flush Redis -> DB (batched upsert)
	return metrics.FlushAll()
}

// RunAuditSweepOnce enqueues a single full audit sweep (also used as a manual admin trigger).
func (m *Manager) RunAuditSweepOnce() error {
	payload := LedgerAuditSweepJobPayload{CursorID: 0, BatchSize: defaultAuditBatchSize}
	_, err := m.queue.EnqueueJob(JobTypeLedgerAuditSweep, payload.ToMap())
	return err
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return def
}
