package assets

import (
	"context"
	"image"
	stlog "log/slog"

	"github.com/remeh/sizedwaitgroup"

	"github.com/irishsmurf/go-mmo-client/metrics"
)

// Status of a cache entry.
type Status int

const (
	Absent Status = iota
	Pending
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "absent"
}

type entry[T any] struct {
	status Status
	value  T
	bounds image.Rectangle
}

type completion struct {
	ref string
	img image.Image
	err error
}

// Cache decodes each resource once and keeps the result for the lifetime of the cache.
//
// Get and Drain must be called from a single goroutine (the game loop). Fetching and decoding
// run on a bounded pool of workers; their results are applied by Drain, so a caller never
// sees an entry change between two of its own calls. Failed resources are not retried.
type Cache[T any] struct {
	fetcher Fetcher
	convert func(image.Image) T
	logger  *stlog.Logger

	entries map[string]*entry[T]
	queue   chan string
	done    chan completion

	ctx    context.Context
	cancel context.CancelFunc
	wg     sizedwaitgroup.SizedWaitGroup
	exited chan struct{}
}

// NewCache starts a cache with the given number of concurrent decoders. convert runs on the
// caller's goroutine inside Drain, e.g. to upload the image to the GPU.
func NewCache[T any](fetcher Fetcher, workers int, convert func(image.Image) T, logger *stlog.Logger) *Cache[T] {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = stlog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[T]{
		fetcher: fetcher,
		convert: convert,
		logger:  logger.With("component", "assets"),
		entries: make(map[string]*entry[T]),
		queue:   make(chan string, 1024),
		done:    make(chan completion, 1024),
		ctx:     ctx,
		cancel:  cancel,
		wg:      sizedwaitgroup.New(workers),
		exited:  make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Get returns the decoded value for ref if it is ready. The first call for a reference
// schedules its loading.
func (c *Cache[T]) Get(ref string) (T, Status) {
	var zero T
	e, ok := c.entries[ref]
	if !ok {
		select {
		case c.queue <- ref:
			c.entries[ref] = &entry[T]{status: Pending}
		default:
			// queue full; asked again on a later frame
		}
		return zero, Pending
	}
	if e.status != Ready {
		return zero, e.status
	}
	return e.value, Ready
}

// Bounds returns the pixel bounds of a ready entry.
func (c *Cache[T]) Bounds(ref string) (image.Rectangle, bool) {
	e, ok := c.entries[ref]
	if !ok || e.status != Ready {
		return image.Rectangle{}, false
	}
	return e.bounds, true
}

// Status reports the state of ref without scheduling anything.
func (c *Cache[T]) Status(ref string) Status {
	if e, ok := c.entries[ref]; ok {
		return e.status
	}
	return Absent
}

// Drain applies finished loads and returns how many entries became ready.
func (c *Cache[T]) Drain() (ready int) {
	for {
		select {
		case res := <-c.done:
			e, ok := c.entries[res.ref]
			if !ok {
				e = &entry[T]{}
				c.entries[res.ref] = e
			}
			if res.err != nil {
				e.status = Failed
				metrics.FrameLoads.WithLabelValues("failed").Inc()
				c.logger.Warn("Asset unavailable", "ref", shortRef(res.ref), "error", res.err)
				continue
			}
			e.value = c.convert(res.img)
			e.bounds = res.img.Bounds()
			e.status = Ready
			metrics.FrameLoads.WithLabelValues("ready").Inc()
			ready++
		default:
			return ready
		}
	}
}

// Close stops the workers. Pending loads are abandoned.
func (c *Cache[T]) Close() {
	c.cancel()
	<-c.exited
}

func (c *Cache[T]) dispatch() {
	defer close(c.exited)
	for {
		select {
		case <-c.ctx.Done():
			c.wg.Wait()
			return
		case ref := <-c.queue:
			c.wg.Add()
			go func(ref string) {
				defer c.wg.Done()
				c.load(ref)
			}(ref)
		}
	}
}

func (c *Cache[T]) load(ref string) {
	res := completion{ref: ref}
	data, err := c.fetcher.Fetch(c.ctx, ref)
	if err == nil {
		res.img, err = Decode(data)
	}
	res.err = err
	if c.ctx.Err() != nil {
		return
	}
	select {
	case c.done <- res:
	case <-c.ctx.Done():
	}
}

// data: URIs are long; keep log lines readable.
func shortRef(ref string) string {
	if len(ref) > 64 {
		return ref[:61] + "..."
	}
	return ref
}
