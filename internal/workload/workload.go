package workload

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultMinSize      = 10
	defaultMaxSize      = 350
	defaultInterarrival = 300 * time.Millisecond
)

// Generator produces a synthetic stream of request sizes, uniformly
// distributed within [MinSize, MaxSize] and paced by a fixed
// inter-arrival delay.
type Generator struct {
	minSize      int
	maxSize      int
	interarrival time.Duration
}

// Options for the generator; zero values fall back to the defaults.
type Options struct {
	MinSize      int
	MaxSize      int
	Interarrival time.Duration
}

func New(opts Options) *Generator {
	if opts.MinSize <= 0 {
		opts.MinSize = defaultMinSize
	}
	if opts.MaxSize < opts.MinSize {
		opts.MaxSize = defaultMaxSize
	}
	if opts.Interarrival < 0 {
		opts.Interarrival = defaultInterarrival
	}

	return &Generator{
		minSize:      opts.MinSize,
		maxSize:      opts.MaxSize,
		interarrival: opts.Interarrival,
	}
}

// Sizes returns count request sizes with no pacing.
func (g *Generator) Sizes(count int) []int {
	sizes := make([]int, count)
	for i := range sizes {
		sizes[i] = g.next()
	}

	return sizes
}

// Stream emits count request sizes on the returned channel, paced by
// the configured inter-arrival delay, and closes it when done or when
// the context is cancelled.
func (g *Generator) Stream(ctx context.Context, count int) <-chan int {
	out := make(chan int)

	go func() {
		defer close(out)
		for i := 0; i < count; i++ {
			if g.interarrival > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(g.interarrival):
				}
			}

			select {
			case <-ctx.Done():
				return
			case out <- g.next():
			}
		}
	}()

	return out
}

func (g *Generator) next() int {
	return g.minSize + rand.Intn(g.maxSize-g.minSize+1)
}
