package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"inventory-service/config"
	"inventory-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsumer hands out a fixed set of messages, then blocks until the
// context is cancelled. Committed offsets are recorded by message key.
type fakeConsumer struct {
	mu       sync.Mutex
	messages []kafka.Message
	next     int
	commits  []string
}

func (f *fakeConsumer) ConsumeMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.next < len(f.messages) {
		msg := f.messages[f.next]
		f.next++
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeConsumer) CommitMessage(ctx context.Context, msg kafka.Message) error {
	f.mu.Lock()
	f.commits = append(f.commits, string(msg.Key))
	f.mu.Unlock()
	return nil
}

func (f *fakeConsumer) committed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commits))
	copy(out, f.commits)
	return out
}

func (f *fakeConsumer) Close() error {
	return nil
}

type fakeReleaser struct {
	mu     sync.Mutex
	starts []time.Time
	serial []string
	failOn map[string]error
}

func (f *fakeReleaser) Release(ctx context.Context, serialNumber string) error {
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.serial = append(f.serial, serialNumber)
	err := f.failOn[serialNumber]
	f.mu.Unlock()
	return err
}

func (f *fakeReleaser) released() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.serial))
	copy(out, f.serial)
	return out
}

func releaseMessage(t *testing.T, serialNumber string, releaseAt time.Time) kafka.Message {
	t.Helper()
	event := models.ReservationReleaseEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReservationRelease,
			Timestamp: time.Now(),
		},
		SerialNumber: serialNumber,
		ReleaseAt:    releaseAt,
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(serialNumber), Value: payload}
}

func runWorker(t *testing.T, consumer *fakeConsumer, releaser *fakeReleaser, cfg config.WorkerConfig, runFor time.Duration) {
	t.Helper()
	w := NewReleaseWorker(consumer, releaser, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), runFor)
	defer cancel()
	err := w.Start(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled))
}

func TestWorkerProcessesDueJobs(t *testing.T) {
	consumer := &fakeConsumer{messages: []kafka.Message{
		releaseMessage(t, "SN-1", time.Now().Add(-time.Second)),
		releaseMessage(t, "SN-2", time.Now().Add(-time.Second)),
	}}
	releaser := &fakeReleaser{}

	runWorker(t, consumer, releaser, config.WorkerConfig{
		Concurrency: 4,
		RateLimit:   100,
		RateWindow:  time.Second,
	}, 300*time.Millisecond)

	assert.ElementsMatch(t, []string{"SN-1", "SN-2"}, releaser.released())
	assert.ElementsMatch(t, []string{"SN-1", "SN-2"}, consumer.committed())
}

func TestWorkerLeavesFailedJobsUncommitted(t *testing.T) {
	consumer := &fakeConsumer{messages: []kafka.Message{
		releaseMessage(t, "SN-stuck", time.Now().Add(-time.Second)),
		releaseMessage(t, "SN-good", time.Now().Add(-time.Second)),
	}}
	releaser := &fakeReleaser{failOn: map[string]error{
		"SN-stuck": errors.New("store unavailable"),
	}}

	runWorker(t, consumer, releaser, config.WorkerConfig{
		Concurrency: 2,
		RateLimit:   100,
		RateWindow:  time.Second,
	}, 1500*time.Millisecond)

	// the failed job's offset never moves, so the queue redelivers it
	assert.NotContains(t, consumer.committed(), "SN-stuck")
	assert.Contains(t, consumer.committed(), "SN-good")
}

func TestWorkerWaitsForReleaseTime(t *testing.T) {
	start := time.Now()
	due := start.Add(150 * time.Millisecond)
	consumer := &fakeConsumer{messages: []kafka.Message{
		releaseMessage(t, "SN-1", due),
	}}
	releaser := &fakeReleaser{}

	runWorker(t, consumer, releaser, config.WorkerConfig{
		Concurrency: 1,
		RateLimit:   100,
		RateWindow:  time.Second,
	}, 500*time.Millisecond)

	require.Len(t, releaser.starts, 1)
	assert.True(t, releaser.starts[0].After(due) || releaser.starts[0].Equal(due),
		"job started %v before its release time", due.Sub(releaser.starts[0]))
}

func TestWorkerRateLimitBoundsJobStarts(t *testing.T) {
	const jobs = 10
	window := 200 * time.Millisecond
	limit := 4

	messages := make([]kafka.Message, jobs)
	for i := range messages {
		messages[i] = releaseMessage(t, "SN-"+uuid.New().String(), time.Now().Add(-time.Second))
	}
	consumer := &fakeConsumer{messages: messages}
	releaser := &fakeReleaser{}

	runWorker(t, consumer, releaser, config.WorkerConfig{
		Concurrency: jobs,
		RateLimit:   limit,
		RateWindow:  window,
	}, 2*time.Second)

	starts := releaser.starts
	require.Len(t, starts, jobs)

	// no sliding window of the configured length sees more starts than
	// the limit allows
	for i := range starts {
		inWindow := 1
		for j := i + 1; j < len(starts); j++ {
			if starts[j].Sub(starts[i]) < window {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, limit+1,
			"too many job starts within one rate window")
	}
}

func TestWorkerIsolatesFailingJobs(t *testing.T) {
	consumer := &fakeConsumer{messages: []kafka.Message{
		releaseMessage(t, "SN-bad", time.Now().Add(-time.Second)),
		releaseMessage(t, "SN-good", time.Now().Add(-time.Second)),
	}}
	releaser := &fakeReleaser{failOn: map[string]error{
		"SN-bad": errors.New("store unavailable"),
	}}

	runWorker(t, consumer, releaser, config.WorkerConfig{
		Concurrency: 2,
		RateLimit:   100,
		RateWindow:  time.Second,
	}, 1500*time.Millisecond)

	assert.Contains(t, releaser.released(), "SN-good")
}

func TestWorkerDropsMalformedJobs(t *testing.T) {
	consumer := &fakeConsumer{messages: []kafka.Message{
		{Key: []byte("junk"), Value: []byte("not json")},
		releaseMessage(t, "SN-1", time.Now().Add(-time.Second)),
	}}
	releaser := &fakeReleaser{}

	runWorker(t, consumer, releaser, config.WorkerConfig{
		Concurrency: 1,
		RateLimit:   100,
		RateWindow:  time.Second,
	}, 300*time.Millisecond)

	assert.Equal(t, []string{"SN-1"}, releaser.released())
	// the malformed message is committed so it is never redelivered
	assert.Contains(t, consumer.committed(), "junk")
}
