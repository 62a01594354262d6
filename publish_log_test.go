package match

import (
	"context"
	"testing"
	"time"

	"github.com/0x5487/order-process-system/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublishLog(t *testing.T) {
	publishLog := NewMemoryPublishLog()
	publishLog.Publish(
		&protocol.ExecutionReport{OrderID: 1},
		&protocol.ExecutionReport{OrderID: 2},
	)

	assert.Equal(t, 2, publishLog.Count())
	assert.Equal(t, uint64(2), publishLog.Get(1).OrderID)

	logs := publishLog.Logs()
	logs[0] = nil
	assert.NotNil(t, publishLog.Get(0))
}

func TestMultiPublishLog(t *testing.T) {
	a, b := NewMemoryPublishLog(), NewMemoryPublishLog()
	multi := MultiPublishLog{a, NewDiscardPublishLog(), b}

	multi.Publish(&protocol.ExecutionReport{OrderID: 1})
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 1, b.Count())
}

func TestAsyncPublishLog(t *testing.T) {
	downstream := NewMemoryPublishLog()
	publishLog := NewAsyncPublishLog(8, downstream)

	for i := 1; i <= 20; i++ {
		publishLog.Publish(&protocol.ExecutionReport{OrderID: uint64(i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, publishLog.Shutdown(ctx))

	require.Equal(t, 20, downstream.Count())
	for i, report := range downstream.Logs() {
		assert.Equal(t, uint64(i+1), report.OrderID)
	}
	assert.Equal(t, int64(0), publishLog.Pending())

	// dropped after shutdown
	publishLog.Publish(&protocol.ExecutionReport{OrderID: 99})
	assert.Equal(t, 20, downstream.Count())
}

func TestEngineWithAsyncPublishLog(t *testing.T) {
	downstream := NewMemoryPublishLog()
	publishLog := NewAsyncPublishLog(64, downstream)
	engine := NewMatchingEngine(publishLog)

	engine.ProcessNewOrder(limitOrder(1, Sell, 10, 10.0), nil)
	engine.ProcessNewOrder(limitOrder(2, Buy, 10, 10.0), nil)
	engine.ProcessCancelOrder(&protocol.CancelOrderRequest{OrderID: 1})

	require.NoError(t, publishLog.Shutdown(context.Background()))

	statuses := make([]protocol.ReportStatus, 0)
	for _, report := range downstream.Logs() {
		statuses = append(statuses, report.Status)
	}
	assert.Equal(t, []protocol.ReportStatus{
		protocol.StatusOrderAccept,
		protocol.StatusOrderAccept,
		protocol.StatusFill,
		protocol.StatusFill,
		protocol.StatusCancelReject,
	}, statuses)
}
