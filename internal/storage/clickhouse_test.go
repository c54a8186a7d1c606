package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/securityjoes/MoltSoc/internal/event"
	"go.uber.org/zap"
)

// fakeConn records the size of every sent batch. Unused driver.Conn methods
// panic through the nil embedded interface.
type fakeConn struct {
	driver.Conn

	mu      sync.Mutex
	batches []int
	closed  bool
}

func (c *fakeConn) PrepareBatch(context.Context, string, ...driver.PrepareBatchOption) (driver.Batch, error) {
	return &fakeBatch{conn: c}, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sent() (total int, sizes []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.batches {
		total += n
	}
	return total, append([]int(nil), c.batches...)
}

type fakeBatch struct {
	driver.Batch
	conn *fakeConn
	rows int
}

func (b *fakeBatch) Append(...any) error {
	b.rows++
	return nil
}

func (b *fakeBatch) Send() error {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	b.conn.batches = append(b.conn.batches, b.rows)
	return nil
}

func newTestClickHouseSink(conn driver.Conn) *ClickHouseSink {
	s := &ClickHouseSink{
		conn:    conn,
		buffer:  make(chan event.Event, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  zap.NewNop(),
	}
	go s.flushLoop()
	return s
}

func TestClickHouseSink_CloseWritesEverythingQueued(t *testing.T) {
	conn := &fakeConn{}
	s := newTestClickHouseSink(conn)

	const n = 2*flushBatch + 500
	for i := 0; i < n; i++ {
		s.Write(testEvent(time.Now(), "x"))
	}
	s.Close()

	total, sizes := conn.sent()
	if total != n {
		t.Errorf("inserted %d events, want %d", total, n)
	}
	for _, size := range sizes {
		if size > flushBatch {
			t.Errorf("batch of %d exceeds %d", size, flushBatch)
		}
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
}

func TestClickHouseSink_TickerFlushesPartialBatch(t *testing.T) {
	conn := &fakeConn{}
	s := newTestClickHouseSink(conn)
	defer s.Close()

	s.Write(testEvent(time.Now(), "x"))
	deadline := time.Now().Add(5 * flushInterval)
	for {
		if total, _ := conn.sent(); total == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("partial batch was not flushed on the interval")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
