package worker

import (
	"context"
	"encoding/json"
	"time"

	"inventory-service/config"
	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Consumer is the queue side of the worker.
type Consumer interface {
	ConsumeMessage(ctx context.Context) (kafka.Message, error)
	CommitMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Releaser flips a held serial unit back to available. The operation is
// idempotent, so re-delivered jobs are always safe.
type Releaser interface {
	Release(ctx context.Context, serialNumber string) error
}

// ReleaseWorker consumes delayed reservation-release jobs. Concurrency is
// bounded and job starts are rate-limited so a cart-abandonment spike
// cannot overload the inventory store. Each job is processed independently:
// one failing job is logged and left for redelivery, never crashing the
// worker.
type ReleaseWorker struct {
	consumer    Consumer
	releaser    Releaser
	limiter     *rate.Limiter
	concurrency int
	logger      *zap.Logger
}

// NewReleaseWorker creates a new release worker
func NewReleaseWorker(consumer Consumer, releaser Releaser, cfg config.WorkerConfig) *ReleaseWorker {
	// Burst 1 keeps job starts evenly spaced, so no window of RateWindow
	// length ever sees more than RateLimit starts.
	limit := rate.Limit(float64(cfg.RateLimit) / cfg.RateWindow.Seconds())

	return &ReleaseWorker{
		consumer:    consumer,
		releaser:    releaser,
		limiter:     rate.NewLimiter(limit, 1),
		concurrency: cfg.Concurrency,
		logger:      util.GetLogger(),
	}
}

// Start runs the consume loop until the context is cancelled.
func (w *ReleaseWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting release worker",
		zap.Int("concurrency", w.concurrency),
		zap.Float64("jobs_per_second", float64(w.limiter.Limit())))

	g := &errgroup.Group{}
	g.SetLimit(w.concurrency)
	defer func() { _ = g.Wait() }()

	for {
		msg, err := w.consumer.ConsumeMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Release worker stopping")
				return ctx.Err()
			}
			w.logger.Error("Failed to fetch release job", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		var event models.ReservationReleaseEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			w.logger.Error("Dropping malformed release job", zap.Error(err))
			w.commit(ctx, msg)
			continue
		}

		// Jobs are enqueued in release-time order per partition, so
		// waiting on the head message never starves a later one.
		if err := w.waitUntilDue(ctx, event.ReleaseAt); err != nil {
			return err
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}

		job := event
		jobMsg := msg
		g.Go(func() error {
			// The offset moves only once the release succeeded; a job
			// that exhausts its retries stays uncommitted so the queue
			// redelivers it, and release idempotency makes any
			// re-delivery safe.
			if w.process(ctx, job) {
				w.commit(ctx, jobMsg)
			}
			return nil
		})
	}
}

// Stop stops the worker
func (w *ReleaseWorker) Stop() error {
	w.logger.Info("Stopping release worker")
	return w.consumer.Close()
}

func (w *ReleaseWorker) waitUntilDue(ctx context.Context, releaseAt time.Time) error {
	wait := time.Until(releaseAt)
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process runs one release job with bounded retries and reports whether it
// succeeded. A job that fails through all retries is logged and left
// uncommitted: the queue redelivers it, and no other job is affected.
func (w *ReleaseWorker) process(ctx context.Context, job models.ReservationReleaseEvent) bool {
	start := time.Now()
	defer func() {
		util.ReleaseJobLatency.Observe(time.Since(start).Seconds())
	}()

	err := util.Retry(ctx, 3, 200*time.Millisecond, nil, func() error {
		return w.releaser.Release(ctx, job.SerialNumber)
	})
	if err != nil {
		util.ReleaseJobsTotal.WithLabelValues("failed").Inc()
		w.logger.Error("Release job failed, leaving it for redelivery",
			zap.String("serial_number", job.SerialNumber),
			zap.String("event_id", job.EventID),
			zap.Error(err))
		return false
	}

	util.ReleaseJobsTotal.WithLabelValues("ok").Inc()
	return true
}

func (w *ReleaseWorker) commit(ctx context.Context, msg kafka.Message) {
	if err := w.consumer.CommitMessage(ctx, msg); err != nil {
		w.logger.Error("Failed to commit release job offset", zap.Error(err))
	}
}
