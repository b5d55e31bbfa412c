package build

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"git.home.luguber.info/inful/reportbal/internal/metrics"
	"git.home.luguber.info/inful/reportbal/internal/mirror"
)

func errAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

// Schedule runs one build task per descriptor with at most limit tasks in
// flight. A limit of zero or less means one worker per CPU. The returned
// map holds exactly one terminal Outcome per slug; one task's failure never
// cancels or blocks the others. Schedule returns only after every task has
// finished, which is the run's synchronization barrier.
//
// When ctx is canceled no new tasks are handed out; tasks already running
// finish, and undispatched descriptors get a failed Outcome carrying the
// cancellation error.
func Schedule(ctx context.Context, descs []mirror.Descriptor, limit int, recorder metrics.Recorder, run func(context.Context, mirror.Descriptor) Outcome) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(descs))
	if len(descs) == 0 {
		return outcomes
	}

	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	if limit > len(descs) {
		limit = len(descs)
	}
	recorder.SetConcurrency(limit)

	tasks := make(chan mirror.Descriptor)
	var wg sync.WaitGroup
	var mu sync.Mutex

	worker := func() {
		defer wg.Done()
		for desc := range tasks {
			var outcome Outcome
			select {
			case <-ctx.Done():
				outcome = failed(desc.Slug, StageSchedule, ctx.Err())
			default:
				start := time.Now()
				outcome = run(ctx, desc)
				recorder.ObserveTaskDuration(time.Since(start), outcome.Status == StatusSucceeded)
			}
			recorder.IncTaskOutcome(string(outcome.Status))
			mu.Lock()
			outcomes[desc.Slug] = outcome
			mu.Unlock()
		}
	}

	wg.Add(limit)
	for i := 0; i < limit; i++ {
		go worker()
	}
	for _, desc := range descs {
		tasks <- desc
	}
	close(tasks)
	wg.Wait()

	return outcomes
}
