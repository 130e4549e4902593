// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Snapshot represents the full runtime statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	StoreRead     *OperationSnapshot
	StoreWrite    *OperationSnapshot
	StoreDelete   *OperationSnapshot
	StoreList     *OperationSnapshot
	APICall       *OperationSnapshot
	SyncPush      *OperationSnapshot
	SyncSweep     *OperationSnapshot
	SyncPull      *OperationSnapshot
	QuestionGen   *OperationSnapshot
}

// Operation names for the collector.
const (
	OpStoreRead   = "store_read"
	OpStoreWrite  = "store_write"
	OpStoreDelete = "store_delete"
	OpStoreList   = "store_list"
	OpAPICall     = "api_call"
	OpSyncPush    = "sync_push"
	OpSyncSweep   = "sync_sweep"
	OpSyncPull    = "sync_pull"
	OpQuestionGen = "question_gen"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for a successful operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.record(op, duration, false)
}

// RecordFailure records timing for a failed operation.
func (c *Collector) RecordFailure(op string, duration time.Duration) {
	c.record(op, duration, true)
}

func (c *Collector) record(op string, duration time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	if failed {
		m.Failures++
	}
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Count returns the number of recorded calls for an operation.
func (c *Collector) Count(op string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.ops[op]
	if !ok {
		return 0
	}
	return m.Count
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		StoreRead:     snapshotOp(c.ops[OpStoreRead]),
		StoreWrite:    snapshotOp(c.ops[OpStoreWrite]),
		StoreDelete:   snapshotOp(c.ops[OpStoreDelete]),
		StoreList:     snapshotOp(c.ops[OpStoreList]),
		APICall:       snapshotOp(c.ops[OpAPICall]),
		SyncPush:      snapshotOp(c.ops[OpSyncPush]),
		SyncSweep:     snapshotOp(c.ops[OpSyncSweep]),
		SyncPull:      snapshotOp(c.ops[OpSyncPull]),
		QuestionGen:   snapshotOp(c.ops[OpQuestionGen]),
	}
}
