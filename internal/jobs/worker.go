package jobs

import (
	"context"
	"log"
	"time"
)

// JobProcessor drains due work on each poll. The returned count is used only
// for logging; errors are logged and the loop keeps polling.
type JobProcessor interface {
	ProcessDue(ctx context.Context) (int, error)
}

// Worker represents a background job worker
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(name string, processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins the worker's polling loop
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("%s worker started with poll interval: %v", w.name, w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s worker stopped: context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("%s worker stopped: stop signal received", w.name)
			return
		case <-ticker.C:
			n, err := w.processor.ProcessDue(ctx)
			if err != nil {
				log.Printf("%s worker: error processing due work: %v", w.name, err)
				continue
			}
			if n > 0 {
				log.Printf("%s worker: processed %d items", w.name, n)
			}
		}
	}
}

// Stop gracefully stops the worker and waits for the current poll to finish
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Printf("%s worker shutdown complete", w.name)
}
