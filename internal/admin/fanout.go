package admin

import (
	"context"
	"sync"
)

// fanOut calls fn for the indexes 0..n-1 with at most limit calls in flight. Indexes are
// issued in order. Issuing stops when ctx is done or when a call returns true; calls already
// running are waited for. It returns the number of indexes issued, so indexes from the
// returned value up to n were never started.
func fanOut(ctx context.Context, n, limit int, fn func(i int) (stop bool)) int {
	if limit <= 0 {
		limit = 1
	}

	issueCtx, stopIssuing := context.WithCancel(ctx)
	defer stopIssuing()

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	issued := 0

	for i := 0; i < n; i++ {
		select {
		case <-issueCtx.Done():
		case sem <- struct{}{}:
		}
		if issueCtx.Err() != nil {
			break
		}

		wg.Add(1)
		issued++
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if fn(i) {
				stopIssuing()
			}
		}(i)
	}

	wg.Wait()
	return issued
}
