// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import "context"

// submitter is satisfied by both Server and ConcurrentServer, letting
// LocalClient front either the sequential or the concurrent variant
// (§4.1) without its callers caring which one backs it.
type submitter[Req Request, Resp any] interface {
	submit(ctx context.Context, req Req) (Resp, error)
}

// LocalClient is a cheap, cloneable handle to an in-process Server (§4.1).
// Dropping the last reference cancels only that caller's interest in a
// reply; the server still processes the request and discards the result.
type LocalClient[Req Request, Resp any] struct {
	server submitter[Req, Resp]
}

// NewLocalClient wraps server in a client handle.
func NewLocalClient[Req Request, Resp any](server submitter[Req, Resp]) *LocalClient[Req, Resp] {
	return &LocalClient[Req, Resp]{server: server}
}

// Send submits req and awaits the server's reply, honoring ctx
// cancellation both while queuing and while waiting (§4.1 "Cancellation").
func (c *LocalClient[Req, Resp]) Send(ctx context.Context, req Req) (Resp, error) {
	return c.server.submit(ctx, req)
}
