// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"sync"

	"github.com/luxfi/log"
)

// Handler processes one request for a component (§4.1).
type Handler[Req Request, Resp any] interface {
	HandleRequest(ctx context.Context, req Req) (Resp, error)
}

// call bundles a request with the channel its caller is waiting on.
type call[Req Request, Resp any] struct {
	ctx   context.Context
	req   Req
	reply chan<- result[Resp]
}

type result[Resp any] struct {
	resp Resp
	err  error
}

// Config bounds a server's queue capacities (§6: `channel_capacity`).
type Config struct {
	ChannelCapacity int
}

// DefaultConfig bounds each queue at 1000 requests (§6 default).
func DefaultConfig() Config {
	return Config{ChannelCapacity: 1000}
}

// Server owns a component instance and dispatches requests to it
// strictly FIFO within a priority class, always preferring High over
// Normal (§4.1).
type Server[Req Request, Resp any] struct {
	name    string
	handler Handler[Req, Resp]

	inbox chan call[Req, Resp]
	high  chan call[Req, Resp]
	normal chan call[Req, Resp]

	wg sync.WaitGroup
}

// NewServer constructs a Server for handler, named for logging.
func NewServer[Req Request, Resp any](name string, handler Handler[Req, Resp], cfg Config) *Server[Req, Resp] {
	return &Server[Req, Resp]{
		name:    name,
		handler: handler,
		inbox:   make(chan call[Req, Resp], cfg.ChannelCapacity),
		high:    make(chan call[Req, Resp], cfg.ChannelCapacity),
		normal:  make(chan call[Req, Resp], cfg.ChannelCapacity),
	}
}

// Start launches the demux (await_requests) and dispatch (process_requests)
// loops.
func (s *Server[Req, Resp]) Start() {
	s.wg.Add(2)
	go s.awaitRequests()
	go s.processRequests()
}

// Stop closes the inbox, draining in-flight work before both internal
// loops exit. A server exit is terminal: once stopped, a Server must not
// be restarted (§4.1 "failure semantics": server exit is fatal for that
// component).
func (s *Server[Req, Resp]) Stop() {
	close(s.inbox)
	s.wg.Wait()
}

func (s *Server[Req, Resp]) awaitRequests() {
	defer s.wg.Done()
	log.Info("component server starting", "component", s.name)
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
	log.Info("component server stopped awaiting requests", "component", s.name)
}

func (s *Server[Req, Resp]) processRequests() {
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
			s.dispatch(c)
			continue
		default:
		}

		select {
		case c, ok := <-high:
			if !ok {
				high = nil
				continue
			}
			s.dispatch(c)
		case c, ok := <-normal:
			if !ok {
				normal = nil
				continue
			}
			s.dispatch(c)
		}
	}
}

func (s *Server[Req, Resp]) dispatch(c call[Req, Resp]) {
	resp, err := s.handler.HandleRequest(c.ctx, c.req)
	select {
	case c.reply <- result[Resp]{resp: resp, err: err}:
	default:
		// The caller's reply channel is unbuffered-and-abandoned or the
		// caller already gave up: per §4.1, a failed response delivery is
		// the caller's bug, not the server's; log and move on.
		log.Warn("component server could not deliver response, caller not waiting", "component", s.name)
	}
}

// submit enqueues a call on the server's inbox; used by LocalClient. It
// blocks if the inbox is full (§4.1 backpressure: send on a full queue
// suspends the caller), unless ctx is canceled first.
func (s *Server[Req, Resp]) submit(ctx context.Context, req Req) (Resp, error) {
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
