// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package runtime implements the component runtime (C1, spec.md §4.1):
// typed request/response servers with priority queues, bounded channels,
// local and remote clients, and a retrying remote transport.
//
// The server's demux-then-dispatch structure — one ingress queue fanning
// into per-priority internal queues, with the dispatch loop biased toward
// the high-priority queue — is grounded on
// _examples/original_source/crates/apollo_infra/src/component_server/local_component_server.rs's
// `await_requests`/`process_requests` split, reimplemented with Go
// generics and channels in place of tokio mpsc channels and async tasks.
package runtime

// Priority is a request's scheduling class (§4.1). High-priority requests
// can overtake Normal ones but never other High requests.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Request is implemented by every component's request type.
type Request interface {
	Priority() Priority
}
