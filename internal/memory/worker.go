package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Nikunikuo/EmotionMemCore/internal/metrics"
)

// jobTimeout bounds one background pipeline run so a stuck provider
// cannot pin a worker forever.
const jobTimeout = 2 * time.Minute

type saveJob struct {
	id   string
	turn *ConversationTurn
}

// background drains the async save queue. Failures are terminal for
// the individual job: they are logged with the assigned memory id and
// counted, never retried beyond the capability layer's own policy.
type background struct {
	svc    *Service
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startBackground(svc *Service) *background {
	ctx, cancel := context.WithCancel(context.Background())
	b := &background{svc: svc, cancel: cancel}
	for i := 0; i < svc.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.run(ctx)
	}
	return b
}

func (b *background) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-b.svc.queue:
			if !ok {
				return
			}
			metrics.BackgroundQueueDepth.Dec()
			b.process(ctx, job)
		}
	}
}

func (b *background) process(ctx context.Context, job saveJob) {
	jctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	res, err := b.svc.processSave(jctx, job.id, job.turn)
	metrics.SaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SavesTotal.WithLabelValues("error", ModeAsync).Inc()
		metrics.BackgroundSaveFailuresTotal.Inc()
		slog.Error("memory: background save failed",
			"error", err,
			"memory_id", job.id,
			"owner_id", job.turn.OwnerID,
		)
		return
	}
	metrics.SavesTotal.WithLabelValues("ok", ModeAsync).Inc()
	if res.Degraded {
		slog.Warn("memory: background save degraded", "memory_id", job.id)
	}
}

// stop closes the queue and waits for the workers to drain it, up to
// the context deadline. Remaining queued jobs are abandoned after the
// deadline.
func (b *background) stop(ctx context.Context) error {
	close(b.svc.queue)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}
