package match

import (
	"context"
	"sync"

	"github.com/0x5487/order-process-system/protocol"
	"go.uber.org/zap"
)

// PublishLog receives a drop copy of every execution report the engine produces.
//
// Reports are immutable once published, so implementations may keep the pointers.
// Publish is called from matching goroutines and must not block for long; wrap slow
// sinks (network, disk) in an AsyncPublishLog.
type PublishLog interface {
	Publish(...*protocol.ExecutionReport)
}

// MemoryPublishLog stores reports in memory, useful for testing.
type MemoryPublishLog struct {
	mu      sync.RWMutex
	Reports []*protocol.ExecutionReport
}

// NewMemoryPublishLog creates a new MemoryPublishLog.
func NewMemoryPublishLog() *MemoryPublishLog {
	return &MemoryPublishLog{
		Reports: make([]*protocol.ExecutionReport, 0),
	}
}

// Publish appends reports to the in-memory slice.
func (m *MemoryPublishLog) Publish(reports ...*protocol.ExecutionReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reports = append(m.Reports, reports...)
}

// Count returns the number of reports stored.
func (m *MemoryPublishLog) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Reports)
}

// Get returns the report at the specified index.
func (m *MemoryPublishLog) Get(index int) *protocol.ExecutionReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Reports[index]
}

// Logs returns a copy of all reports stored.
func (m *MemoryPublishLog) Logs() []*protocol.ExecutionReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reports := make([]*protocol.ExecutionReport, len(m.Reports))
	copy(reports, m.Reports)
	return reports
}

// DiscardPublishLog discards all reports, useful for benchmarking.
type DiscardPublishLog struct {
}

// NewDiscardPublishLog creates a new DiscardPublishLog.
func NewDiscardPublishLog() *DiscardPublishLog {
	return &DiscardPublishLog{}
}

// Publish does nothing.
func (p *DiscardPublishLog) Publish(reports ...*protocol.ExecutionReport) {

}

// MultiPublishLog fans reports out to several sinks in order.
type MultiPublishLog []PublishLog

func (m MultiPublishLog) Publish(reports ...*protocol.ExecutionReport) {
	for _, p := range m {
		p.Publish(reports...)
	}
}

// AsyncPublishLog decouples a downstream PublishLog from the matching path with a RingBuffer.
// Matching goroutines publish into the ring; one consumer forwards each report downstream.
type AsyncPublishLog struct {
	ring       *RingBuffer[*protocol.ExecutionReport]
	downstream PublishLog
}

// NewAsyncPublishLog creates and starts an async publisher. size must be a power of 2.
func NewAsyncPublishLog(size int64, downstream PublishLog) *AsyncPublishLog {
	p := &AsyncPublishLog{downstream: downstream}
	p.ring = NewRingBuffer[*protocol.ExecutionReport](size, p)
	p.ring.Start()
	return p
}

// Publish enqueues the reports; reports published after Shutdown are dropped.
func (p *AsyncPublishLog) Publish(reports ...*protocol.ExecutionReport) {
	for _, report := range reports {
		if err := p.ring.Publish(report); err != nil {
			logger.Warn("drop copy discarded", zap.Uint64("order_id", report.OrderID), zap.Error(err))
			return
		}
	}
}

// OnEvent implements EventHandler.
func (p *AsyncPublishLog) OnEvent(report *protocol.ExecutionReport) {
	p.downstream.Publish(report)
}

// Pending returns the number of reports not yet forwarded.
func (p *AsyncPublishLog) Pending() int64 {
	return p.ring.GetPendingEvents()
}

// Shutdown flushes pending reports and stops the consumer.
func (p *AsyncPublishLog) Shutdown(ctx context.Context) error {
	return p.ring.Shutdown(ctx)
}
