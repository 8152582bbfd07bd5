package srcsep

import (
	"runtime"
	"sync"
)

// workerCount resolves a configured worker count; 0 or less means one per CPU.
func workerCount(w int) int {
	if w <= 0 {
		w = runtime.NumCPU()
	}
	return w
}

// parallelFor calls fn(i) for every i in [0,n) on up to workers goroutines
// and returns when all calls are done.
func parallelFor(n, workers int, fn func(i int)) {
	if n <= 0 {
		return
	}
	w := workerCount(workers)
	if w > n {
		w = n
	}

	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for k := 0; k < w; k++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	wg.Wait()
}
