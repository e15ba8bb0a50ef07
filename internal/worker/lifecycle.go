package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/cablesync/internal/kafka"
	"github.com/jmehdipour/cablesync/internal/logger"
	"github.com/jmehdipour/cablesync/internal/metrics"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmehdipour/cablesync/internal/notify"
	"github.com/jmehdipour/cablesync/internal/repository"
	"go.uber.org/zap"
)

// Source is the subset of the Kafka consumer the worker needs.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, n notify.Notification) error
}

// LifecycleKafka:
// - fetches lifecycle events relayed from the outbox,
// - notifies staff about fresh cancellations,
// - batches history rows into ClickHouse and commits offsets after each flush.
type LifecycleKafka struct {
	Source   Source
	History  repository.HistoryRepository
	Notifier Notifier

	BatchSize int           // max buffered messages; a full batch blocks reads until stored
	BatchWait time.Duration // max time to wait before flush
	Backoff   time.Duration // pause after a fetch or flush error
}

func NewLifecycleKafka(src Source, history repository.HistoryRepository, n Notifier) *LifecycleKafka {
	return &LifecycleKafka{
		Source:    src,
		History:   history,
		Notifier:  n,
		BatchSize: 200,
		BatchWait: 500 * time.Millisecond,
		Backoff:   200 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled, flushing what is buffered on the way out.
func (w *LifecycleKafka) Run(ctx context.Context) error {
	if w.Source == nil || w.History == nil {
		return errors.New("lifecycle worker: source and history are required")
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 200
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 500 * time.Millisecond
	}
	if w.Backoff <= 0 {
		w.Backoff = 200 * time.Millisecond
	}

	msgCh := make(chan kafka.Message, w.BatchSize)
	go w.fetch(ctx, msgCh)

	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	b := &batch{}
	for {
		select {
		case <-ctx.Done():
			w.finalFlush(b)
			return nil

		case m, ok := <-msgCh:
			if !ok {
				w.finalFlush(b)
				return nil
			}
			w.handle(ctx, m, b)
			if len(b.msgs) >= w.BatchSize {
				w.drain(ctx, b)
			}

		case <-tick.C:
			w.flush(ctx, b)
		}
	}
}

func (w *LifecycleKafka) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := w.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("kafka fetch failed", zap.Error(err))
			sleep(ctx, w.Backoff)
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

type batch struct {
	rows []model.StatusChange
	msgs []kafka.Message
}

func (b *batch) reset() {
	b.rows = b.rows[:0]
	b.msgs = b.msgs[:0]
}

// handle decodes one message into the batch. Poison messages are kept only
// for their offset.
func (w *LifecycleKafka) handle(ctx context.Context, m kafka.Message, b *batch) {
	b.msgs = append(b.msgs, m)

	ev, err := DecodeEvent(m.Value)
	if err != nil {
		metrics.LifecycleEventsTotal.WithLabelValues("poison").Inc()
		logger.Log.Warn("skipping undecodable lifecycle event",
			zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}
	b.rows = append(b.rows, ev.StatusChange())

	if w.Notifier == nil || !w.Notifier.Enabled() || !notify.Wants(ev) {
		return
	}
	if err := w.Notifier.Notify(ctx, notify.FromEvent(ev)); err != nil {
		metrics.LifecycleEventsTotal.WithLabelValues("notify_failed").Inc()
		logger.Log.Error("staff notification failed",
			zap.String("event_id", ev.ID), zap.String("customer_id", ev.CustomerID), zap.Error(err))
		return
	}
	metrics.LifecycleEventsTotal.WithLabelValues("notified").Inc()
}

// flush writes buffered rows and commits their offsets. On a store error the
// batch is kept so the next flush retries it.
func (w *LifecycleKafka) flush(ctx context.Context, b *batch) bool {
	if len(b.msgs) == 0 {
		return true
	}
	if err := w.History.InsertBatch(ctx, b.rows); err != nil {
		logger.Log.Error("history batch insert failed", zap.Int("rows", len(b.rows)), zap.Error(err))
		return false
	}
	metrics.LifecycleEventsTotal.WithLabelValues("stored").Add(float64(len(b.rows)))

	if err := w.Source.Commit(ctx, b.msgs...); err != nil {
		// rows are deduplicated by event id, so a redelivery is harmless
		logger.Log.Warn("kafka commit failed", zap.Int("messages", len(b.msgs)), zap.Error(err))
	}
	logger.Log.Debug("lifecycle batch flushed", zap.Int("rows", len(b.rows)), zap.Int("messages", len(b.msgs)))
	b.reset()
	return true
}

// drain retries a full batch until it is stored. Nothing more is read from
// Kafka meanwhile, so the buffer stays at BatchSize while ClickHouse is down.
func (w *LifecycleKafka) drain(ctx context.Context, b *batch) {
	for !w.flush(ctx, b) {
		sleep(ctx, w.Backoff)
		if ctx.Err() != nil {
			return
		}
	}
}

// finalFlush runs on shutdown with a short detached context, since the run
// context is already cancelled.
func (w *LifecycleKafka) finalFlush(b *batch) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flush(ctx, b)
}

// DecodeEvent accepts the event either as a JSON object or, as the outbox
// relay emits it without payload expansion, as a JSON string holding one.
func DecodeEvent(raw []byte) (model.LifecycleEvent, error) {
	var ev model.LifecycleEvent
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return ev, err
		}
		raw = []byte(inner)
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, err
	}
	if ev.ID == "" || ev.CustomerID == "" {
		return ev, errors.New("event missing id or customer_id")
	}
	return ev, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
