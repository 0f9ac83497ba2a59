package storage

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	infralogger "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/logger"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/metrics"
)

const (
	// visitColumnsPerRow is the number of columns inserted per visit event row.
	visitColumnsPerRow = 8

	// visitInsertBatchSize is the maximum number of rows per INSERT statement.
	visitInsertBatchSize = 50

	// visitFlushTimeout bounds each flush.
	visitFlushTimeout = 5 * time.Second

	// defaultMemoryVisitCapacity bounds MemoryVisitLog.
	defaultMemoryVisitCapacity = 10000
)

const insertVisitsPrefix = "INSERT INTO visit_events (id, domain, remote_address, user_agent, " +
	"referrer, device_type, is_bot, visited_at) VALUES "

// VisitBuffer is a channel buffer for non-blocking visit ingestion.
type VisitBuffer struct {
	events chan domain.VisitEvent
	closed chan struct{}
	once   sync.Once
}

// NewVisitBuffer creates a buffer holding up to capacity events.
func NewVisitBuffer(capacity int) *VisitBuffer {
	return &VisitBuffer{
		events: make(chan domain.VisitEvent, capacity),
		closed: make(chan struct{}),
	}
}

// Send enqueues ev without blocking. It returns false if the buffer is full
// or closed.
func (b *VisitBuffer) Send(ev domain.VisitEvent) bool {
	select {
	case <-b.closed:
		return false
	default:
	}

	select {
	case b.events <- ev:
		return true
	default:
		return false
	}
}

// Len returns the number of queued events.
func (b *VisitBuffer) Len() int {
	return len(b.events)
}

// Close stops the buffer accepting events. It is safe to call repeatedly.
func (b *VisitBuffer) Close() {
	b.once.Do(func() {
		close(b.closed)
	})
}

// VisitLogConfig tunes the flush loop.
type VisitLogConfig struct {
	FlushInterval  time.Duration
	FlushThreshold int
}

// VisitLog batch-writes visit events to the visit_events table. Writes happen
// on a background goroutine, so a slow or failing database never delays a
// click.
type VisitLog struct {
	db      *sql.DB
	buffer  *VisitBuffer
	log     infralogger.Logger
	metrics *metrics.Metrics
	cfg     VisitLogConfig
	wg      sync.WaitGroup
}

// NewVisitLog creates a VisitLog. m may be nil.
func NewVisitLog(
	db *sql.DB,
	buffer *VisitBuffer,
	log infralogger.Logger,
	m *metrics.Metrics,
	cfg VisitLogConfig,
) *VisitLog {
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = visitInsertBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &VisitLog{
		db:      db,
		buffer:  buffer,
		log:     log,
		metrics: m,
		cfg:     cfg,
	}
}

// Record enqueues ev. A full buffer drops it.
func (v *VisitLog) Record(ev domain.VisitEvent) {
	if !v.buffer.Send(ev) {
		v.metrics.RecordVisitDropped()
		v.log.Warn("Visit buffer full, dropping event",
			infralogger.Domain(ev.Domain),
		)
		return
	}
	v.metrics.RecordVisitBuffered()
	v.metrics.SetVisitBufferDepth(v.buffer.Len())
}

// Start launches the flush goroutine.
func (v *VisitLog) Start() {
	v.wg.Add(1)
	go v.flushLoop()
}

// Stop closes the buffer and waits until queued events are written.
func (v *VisitLog) Stop() {
	v.buffer.Close()
	v.wg.Wait()
}

func (v *VisitLog) flushLoop() {
	defer v.wg.Done()

	ticker := time.NewTicker(v.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]domain.VisitEvent, 0, v.cfg.FlushThreshold)

	for {
		select {
		case ev := <-v.buffer.events:
			batch = append(batch, ev)
			if len(batch) >= v.cfg.FlushThreshold {
				v.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				v.flush(batch)
				batch = batch[:0]
			}

		case <-v.buffer.closed:
			batch = v.drain(batch)
			if len(batch) > 0 {
				v.flush(batch)
			}
			return
		}
	}
}

func (v *VisitLog) drain(batch []domain.VisitEvent) []domain.VisitEvent {
	for {
		select {
		case ev := <-v.buffer.events:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
}

// flush writes batch in chunks of visitInsertBatchSize. Failed chunks are
// logged and counted, not retried.
func (v *VisitLog) flush(batch []domain.VisitEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), visitFlushTimeout)
	defer cancel()

	for chunk := range slices.Chunk(batch, visitInsertBatchSize) {
		if err := v.batchInsert(ctx, chunk); err != nil {
			v.metrics.RecordVisitFlushFailure()
			v.log.Error("Failed to insert visit events",
				infralogger.Error(err),
				infralogger.Int("batch_size", len(chunk)),
			)
			continue
		}
		v.metrics.RecordVisitsFlushed(len(chunk))
	}

	v.metrics.SetVisitBufferDepth(v.buffer.Len())
	v.log.Debug("Flushed visit events", infralogger.Int("total", len(batch)))
}

func (v *VisitLog) batchInsert(ctx context.Context, events []domain.VisitEvent) error {
	if len(events) == 0 {
		return nil
	}

	args := make([]any, 0, len(events)*visitColumnsPerRow)
	var sb strings.Builder
	sb.WriteString(insertVisitsPrefix)

	for i := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeVisitTuple(&sb, i)

		ev := &events[i]
		args = append(args,
			ev.ID, ev.Domain, ev.RemoteAddress, ev.UserAgent,
			ev.Referrer, ev.DeviceType, ev.IsBot, ev.Timestamp,
		)
	}

	if _, err := v.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("exec visit batch insert: %w", err)
	}
	return nil
}

// writeVisitTuple writes one ($n, ...) placeholder tuple offset by rowIndex.
func writeVisitTuple(sb *strings.Builder, rowIndex int) {
	base := rowIndex * visitColumnsPerRow
	sb.WriteByte('(')
	for col := 1; col <= visitColumnsPerRow; col++ {
		if col > 1 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "$%d", base+col)
	}
	sb.WriteByte(')')
}

// MemoryVisitLog keeps the most recent visit events in memory.
type MemoryVisitLog struct {
	mu       sync.Mutex
	events   []domain.VisitEvent
	capacity int
}

// NewMemoryVisitLog keeps at most capacity events. Zero picks a default.
func NewMemoryVisitLog(capacity int) *MemoryVisitLog {
	if capacity <= 0 {
		capacity = defaultMemoryVisitCapacity
	}
	return &MemoryVisitLog{capacity: capacity}
}

// Record appends ev, evicting the oldest event when full.
func (m *MemoryVisitLog) Record(ev domain.VisitEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) >= m.capacity {
		m.events = slices.Delete(m.events, 0, len(m.events)-m.capacity+1)
	}
	m.events = append(m.events, ev)
}

// Events returns the retained events for name in arrival order.
func (m *MemoryVisitLog) Events(name string) []domain.VisitEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.VisitEvent
	for i := range m.events {
		if m.events[i].Domain == name {
			out = append(out, m.events[i])
		}
	}
	return out
}

// Len returns the number of retained events.
func (m *MemoryVisitLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
