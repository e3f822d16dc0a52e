package astieit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astikit"
)

// Collector feeds an EITRegistry with raw sections
// Repeats of a stored section only have their header decoded and merged. Sections are decoded in full
// the first time their key is seen.
type Collector struct {
	decoder  *EITDecoder
	l        astikit.CompleteLogger
	metrics  *Metrics
	onError  func(s RawSection, err error)
	registry *EITRegistry
	workers  int
}

// NewCollector creates a new collector
func NewCollector(r *EITRegistry, opts ...func(*Collector)) *Collector {
	c := &Collector{
		decoder:  defaultEITDecoder,
		registry: r,
		workers:  1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectorOptDecoder returns the option to set the decoder
func CollectorOptDecoder(d *EITDecoder) func(*Collector) {
	return func(c *Collector) {
		c.decoder = d
	}
}

// CollectorOptLogger returns the option to set the logger
func CollectorOptLogger(l astikit.StdLogger) func(*Collector) {
	return func(c *Collector) {
		c.l = astikit.AdaptStdLogger(l)
	}
}

// CollectorOptMetrics returns the option to set the metrics
func CollectorOptMetrics(m *Metrics) func(*Collector) {
	return func(c *Collector) {
		c.metrics = m
	}
}

// CollectorOptOnError returns the option to be notified of discarded sections
func CollectorOptOnError(fn func(s RawSection, err error)) func(*Collector) {
	return func(c *Collector) {
		c.onError = fn
	}
}

// CollectorOptWorkers returns the option to set the number of goroutines decoding sections
func CollectorOptWorkers(n int) func(*Collector) {
	return func(c *Collector) {
		if n > 0 {
			c.workers = n
		}
	}
}

func (c *Collector) log() astikit.CompleteLogger {
	if c.l != nil {
		return c.l
	}
	return logger
}

// Run processes sections until the channel is closed or the context is cancelled
func (c *Collector) Run(ctx context.Context, in <-chan RawSection) error {
	var wg sync.WaitGroup
	for idx := 0; idx < c.workers; idx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case s, ok := <-in:
					if !ok {
						return
					}
					c.Process(s)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// RunDemuxer processes the sections of a demuxer until there are no more packets or the context is
// cancelled
func (c *Collector) RunDemuxer(ctx context.Context, dmx *Demuxer) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Run workers
	in := make(chan RawSection, c.workers)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, in) }()

	// Feed workers
	for {
		var s *RawSection
		if s, err = dmx.NextSection(); err != nil {
			if errors.Is(err, ErrNoMorePackets) {
				err = nil
			} else {
				err = fmt.Errorf("astieit: fetching next section failed: %w", err)
				cancel()
			}
			break
		}

		select {
		case in <- *s:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(in)

	// Wait for workers
	if rerr := <-done; err == nil && rerr != nil {
		err = rerr
	}
	return
}

// Process decodes one section and admits it into the registry. It returns false when the section has
// been discarded.
func (c *Collector) Process(s RawSection) bool {
	if len(s.Bytes) > 0 {
		c.metrics.incSection(TableID(s.Bytes[0]))
	}

	// Repeats only need their header
	h, err := c.decoder.DecodeHeader(s.Bytes, s.CRC32)
	if err != nil {
		c.discard(s, err)
		return false
	}
	if _, ok := c.registry.MergeHeader(*h); ok {
		return true
	}

	// CRC32 has been checked already
	var es *EITSection
	if es, err = c.decoder.Decode(s.Bytes, CRC32Skip); err != nil {
		c.discard(s, err)
		return false
	}
	c.metrics.addAnomalies(len(es.Anomalies))
	c.registry.Admit(es)
	return true
}

func (c *Collector) discard(s RawSection, err error) {
	c.metrics.incDecodeError(err)
	c.log().Warnf("astieit: discarding section on pid 0x%x: %s", s.PID, err)
	if c.onError != nil {
		c.onError(s, err)
	}
}
