package snapshot

import (
	"context"
	"time"
)

// DefaultPreloadTimeout bounds the wait for pending images.
const DefaultPreloadTimeout = 15 * time.Second

// PreloadReport summarizes image settlement before capture.
type PreloadReport struct {
	Total    int
	Settled  int
	Failed   []ImageRef
	TimedOut bool
}

// Preloader waits for every image on a surface to settle. A settled image
// either loaded or failed; failures never abort the wait.
type Preloader struct {
	Timeout time.Duration
	Logger  Logger
}

type preloadOutcome struct {
	index int
	err   error
}

// Preload blocks until all images settle or the soft timeout elapses. It
// only returns an error when the caller's context ends.
func (p Preloader) Preload(ctx context.Context, surface Surface) (PreloadReport, error) {
	logger := p.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPreloadTimeout
	}

	report := PreloadReport{}
	if surface == nil {
		return report, nil
	}

	states, err := surface.Images(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, NewError(KindFromError(ctxErr), "preload interrupted", ctxErr)
		}
		logger.Debugf("snapshot: image enumeration failed: %v", err)
		return report, nil
	}

	seen := map[string]bool{}
	pending := []ImageRef{}
	for _, state := range states {
		if seen[state.Ref.Src] {
			continue
		}
		seen[state.Ref.Src] = true
		report.Total++
		if state.Settled() {
			report.Settled++
			continue
		}
		pending = append(pending, state.Ref)
	}
	if len(pending) == 0 {
		return report, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan preloadOutcome, len(pending))
	for i, ref := range pending {
		go func(i int, ref ImageRef) {
			results <- preloadOutcome{index: i, err: surface.AwaitImage(waitCtx, ref)}
		}(i, ref)
	}

	done := make(map[int]error, len(pending))
wait:
	for len(done) < len(pending) {
		select {
		case out := <-results:
			done[out.index] = out.err
		case <-waitCtx.Done():
			break wait
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, NewError(KindFromError(ctxErr), "preload interrupted", ctxErr)
	}

	for i, ref := range pending {
		err, ok := done[i]
		if !ok {
			report.TimedOut = true
			err = NewError(KindResourceLoad, "image load timed out", context.DeadlineExceeded)
		}
		if err != nil {
			report.Failed = append(report.Failed, ref)
			logger.Debugf("snapshot: image %q did not load: %v", ref.Src, err)
			continue
		}
		report.Settled++
	}
	return report, nil
}
