package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/client"
	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

const (
	insertEventQuery = `INSERT INTO security_events
		(mentor_id, event, outcome, ip, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	bufferSize    = 1024
	flushInterval = 5 * time.Second
	flushBatch    = 100
)

// Recorder streams security events into ClickHouse off the request
// path. Record never blocks a request: when the buffer is full the
// event is dropped and counted in a warning instead.
type Recorder struct {
	ch     *client.ClickHouseClient
	events chan model.SecurityEvent

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewRecorder(ch *client.ClickHouseClient) *Recorder {
	r := &Recorder{
		ch:     ch,
		events: make(chan model.SecurityEvent, bufferSize),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues an event for the background flusher.
func (r *Recorder) Record(event model.SecurityEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	select {
	case r.events <- event:
	default:
		util.Warn("Security event buffer full, dropping event",
			zap.String("event", event.Event),
			zap.String("mentor_id", event.MentorID))
	}
}

// Close flushes whatever is buffered and stops the flusher.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]model.SecurityEvent, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.insert(batch); err != nil {
			util.Error("Failed to flush security events",
				zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-r.events:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			// drain what is already queued before exiting
			for {
				select {
				case event := <-r.events:
					batch = append(batch, event)
					if len(batch) >= flushBatch {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) insert(batch []model.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows := make([][]interface{}, 0, len(batch))
	for _, event := range batch {
		rows = append(rows, []interface{}{
			event.MentorID,
			event.Event,
			event.Outcome,
			event.IP,
			event.Detail,
			event.CreatedAt,
		})
	}
	return r.ch.BatchInsert(ctx, insertEventQuery, rows)
}
