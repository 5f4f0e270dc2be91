package feeds

import (
	"context"
	"sync"
)

// runIndexed fans jobs [0, jobs) out over size workers and waits for them.
// Dispatch stops between jobs once ctx is canceled; jobs already picked up
// run to completion so no unit is torn down halfway.
func runIndexed(ctx context.Context, size int, jobs int, run func(index int)) {
	if size < 1 {
		size = 1
	}

	queue := make(chan int)

	var wg sync.WaitGroup
	for worker := 0; worker < size; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range queue {
				run(index)
			}
		}()
	}

	for index := 0; index < jobs; index++ {
		if ctx.Err() != nil {
			break
		}
		queue <- index
	}
	close(queue)
	wg.Wait()
}
