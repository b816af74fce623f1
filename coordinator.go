package updater

import (
	"context"
	"sync"
)

// Progress tells how far a download has come. Total is the size the server
// declared for the artifact.
type Progress struct {
	Read  int64
	Total int64
}

// Percent returns the progress as 0-100.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return int(float64(p.Read) / float64(p.Total) * 100)
}

// Coordinator funnels engine events onto a single goroutine, the way a
// desktop application marshals work onto its UI thread. Worker goroutines
// never touch shared state themselves: they queue a call and the goroutine
// running Run executes it.
//
// Progress is not queued. A single slot keeps only the newest value, so a
// download reporting thousands of blocks per second cannot build up a
// backlog the consumer never catches up with. Queued calls are never
// dropped or reordered.
type Coordinator struct {
	mu       sync.Mutex
	queue    []func()
	progress *Progress

	wake chan struct{}

	// ProgressFunc receives coalesced download progress on the Run
	// goroutine. Set it before Run starts.
	ProgressFunc func(Progress)
}

func NewCoordinator() *Coordinator {
	return &Coordinator{wake: make(chan struct{}, 1)}
}

// CallAfter schedules f to run on the coordinator goroutine. It never
// blocks, regardless of how busy the consumer is.
func (c *Coordinator) CallAfter(f func()) {
	c.mu.Lock()
	c.queue = append(c.queue, f)
	c.mu.Unlock()

	c.signal()
}

// PostProgress publishes a progress value, replacing one that has not been
// consumed yet.
func (c *Coordinator) PostProgress(p Progress) {
	c.mu.Lock()
	c.progress = &p
	c.mu.Unlock()

	c.signal()
}

func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run executes queued calls until ctx is done. The goroutine calling Run
// becomes the coordinator goroutine; everything the engine does to shared
// state happens there.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			c.dispatch()
		}
	}
}

// dispatch drains everything published so far: the freshest progress value
// first, then the deferred calls in submission order.
func (c *Coordinator) dispatch() {
	c.mu.Lock()
	progress := c.progress
	c.progress = nil
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	if progress != nil && c.ProgressFunc != nil {
		c.ProgressFunc(*progress)
	}
	for _, f := range queue {
		f()
	}
}
