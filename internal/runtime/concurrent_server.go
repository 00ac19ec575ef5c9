// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"sync"

	"github.com/luxfi/log"
	"golang.org/x/sync/semaphore"
)

// HandlerFactory produces a fresh Handler instance per task. A
// concurrent-variant server clones the component for each in-flight
// request rather than sharing one mutable instance across goroutines
// (§4.1: "must clone the component per task").
type HandlerFactory[Req Request, Resp any] func() Handler[Req, Resp]

// ConcurrentConfig bounds a ConcurrentServer's queue capacity and its
// in-flight parallelism.
type ConcurrentConfig struct {
	ChannelCapacity int
	MaxConcurrency  int64
}

// DefaultConcurrentConfig matches DefaultConfig's channel capacity with a
// modest default parallelism.
func DefaultConcurrentConfig() ConcurrentConfig {
	return ConcurrentConfig{ChannelCapacity: 1000, MaxConcurrency: 8}
}

// ConcurrentServer is the concurrent-variant component server (§4.1): up
// to MaxConcurrency requests are handled in parallel, each against its
// own cloned Handler, the parallelism bounded by a counting semaphore.
// Priority demuxing and FIFO-within-priority dispatch order are the same
// as Server; only the dispatch step itself fans out instead of running
// inline.
type ConcurrentServer[Req Request, Resp any] struct {
	name    string
	factory HandlerFactory[Req, Resp]
	sem     *semaphore.Weighted

	inbox  chan call[Req, Resp]
	high   chan call[Req, Resp]
	normal chan call[Req, Resp]

	wg       sync.WaitGroup // awaitRequests + processRequests
	inFlight sync.WaitGroup // one per dispatched task
}

// NewConcurrentServer constructs a ConcurrentServer for factory, named for
// logging. factory is called once per accepted request to produce the
// component instance that request is handled against.
func NewConcurrentServer[Req Request, Resp any](name string, factory HandlerFactory[Req, Resp], cfg ConcurrentConfig) *ConcurrentServer[Req, Resp] {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &ConcurrentServer[Req, Resp]{
		name:    name,
		factory: factory,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrency),
		inbox:   make(chan call[Req, Resp], cfg.ChannelCapacity),
		high:    make(chan call[Req, Resp], cfg.ChannelCapacity),
		normal:  make(chan call[Req, Resp], cfg.ChannelCapacity),
	}
}

// Start launches the demux (await_requests) and dispatch (process_requests)
// loops.
func (s *ConcurrentServer[Req, Resp]) Start() {
	s.wg.Add(2)
	go s.awaitRequests()
	go s.processRequests()
}

// Stop closes the inbox and waits for both internal loops and every
// in-flight task to finish. As with Server, a stopped ConcurrentServer
// must not be restarted.
func (s *ConcurrentServer[Req, Resp]) Stop() {
	close(s.inbox)
	s.wg.Wait()
	s.inFlight.Wait()
}

func (s *ConcurrentServer[Req, Resp]) awaitRequests() {
	defer s.wg.Done()
	log.Info("concurrent component server starting", "component", s.name)
	for c := range s.inbox {
		switch c.req.Priority() {
		case PriorityHigh:
			s.high <- c
		default:
			s.normal <- c
		}
	}
	close(s.high)
	close(s.normal)
	log.Info("concurrent component server stopped awaiting requests", "component", s.name)
}

func (s *ConcurrentServer[Req, Resp]) processRequests() {
	defer s.wg.Done()
	high, normal := s.high, s.normal
	for high != nil || normal != nil {
		// Always prefer High when it is immediately ready.
		select {
		case c, ok := <-high:
			if !ok {
				high = nil
				continue
			}
			s.spawn(c)
			continue
		default:
		}

		select {
		case c, ok := <-high:
			if !ok {
				high = nil
				continue
			}
			s.spawn(c)
		case c, ok := <-normal:
			if !ok {
				normal = nil
				continue
			}
			s.spawn(c)
		}
	}
}

// spawn blocks the dispatch loop only long enough to acquire a permit,
// then hands the call to its own goroutine so up to MaxConcurrency
// requests run against their own cloned handler in parallel (§4.1).
func (s *ConcurrentServer[Req, Resp]) spawn(c call[Req, Resp]) {
	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		log.Warn("concurrent component server could not acquire permit", "component", s.name, "err", err)
		return
	}
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer s.sem.Release(1)
		handler := s.factory()
		resp, err := handler.HandleRequest(c.ctx, c.req)
		select {
		case c.reply <- result[Resp]{resp: resp, err: err}:
		default:
			// Same rule as Server.dispatch: an undelivered response is the
			// caller's bug (dropped its interest), not the server's.
			log.Warn("concurrent component server could not deliver response, caller not waiting", "component", s.name)
		}
	}()
}

// submit enqueues a call on the server's inbox; used by LocalClient. It
// blocks if the inbox is full, unless ctx is canceled first.
func (s *ConcurrentServer[Req, Resp]) submit(ctx context.Context, req Req) (Resp, error) {
	reply := make(chan result[Resp], 1)
	c := call[Req, Resp]{ctx: ctx, req: req, reply: reply}

	select {
	case s.inbox <- c:
	case <-ctx.Done():
		var zero Resp
		return zero, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.resp, r.err
	case <-ctx.Done():
		var zero Resp
		return zero, ctx.Err()
	}
}
