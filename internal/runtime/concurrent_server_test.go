// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// cloneCountingHandler records that it is a distinct instance per task:
// each one gets its own id, assigned when the factory constructs it.
type cloneCountingHandler struct {
	id      int64
	release chan struct{}
}

func (h *cloneCountingHandler) HandleRequest(ctx context.Context, req testRequest) (int, error) {
	if h.release != nil {
		<-h.release
	}
	return int(h.id), nil
}

func TestConcurrentServer_ClonesHandlerPerTask(t *testing.T) {
	r := require.New(t)
	var nextID int64
	factory := func() Handler[testRequest, int] {
		return &cloneCountingHandler{id: atomic.AddInt64(&nextID, 1)}
	}

	s := NewConcurrentServer[testRequest, int]("test", factory, DefaultConcurrentConfig())
	s.Start()
	defer s.Stop()

	client := NewLocalClient[testRequest, int](s)

	seen := make(map[int]bool)
	for i := 0; i < 5; i++ {
		id, err := client.Send(context.Background(), testRequest{priority: PriorityNormal, id: i})
		r.NoError(err)
		r.False(seen[id], "handler id %d reused across tasks, expected a fresh clone per request", id)
		seen[id] = true
	}
	r.Len(seen, 5)
}

// TestConcurrentServer_BoundsParallelism exercises scenario S4-concurrent:
// flooding the server with more requests than MaxConcurrency must never
// let more than MaxConcurrency handlers run HandleRequest at once.
func TestConcurrentServer_BoundsParallelism(t *testing.T) {
	r := require.New(t)
	const maxConcurrency = 3
	const requests = 20

	var inFlight, maxObserved int64
	release := make(chan struct{})
	factory := func() Handler[testRequest, int] {
		return &blockingCloneHandler{inFlight: &inFlight, maxObserved: &maxObserved, release: release}
	}

	cfg := ConcurrentConfig{ChannelCapacity: requests, MaxConcurrency: maxConcurrency}
	s := NewConcurrentServer[testRequest, int]("test", factory, cfg)
	s.Start()
	defer s.Stop()

	client := NewLocalClient[testRequest, int](s)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.Send(context.Background(), testRequest{priority: PriorityNormal, id: i})
		}()
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&inFlight) == maxConcurrency
	}, time.Second, time.Millisecond, "expected exactly MaxConcurrency handlers in flight under load")

	close(release)
	wg.Wait()

	r.LessOrEqual(atomic.LoadInt64(&maxObserved), int64(maxConcurrency))
}

type blockingCloneHandler struct {
	inFlight    *int64
	maxObserved *int64
	release     chan struct{}
}

func (h *blockingCloneHandler) HandleRequest(ctx context.Context, req testRequest) (int, error) {
	n := atomic.AddInt64(h.inFlight, 1)
	for {
		old := atomic.LoadInt64(h.maxObserved)
		if n <= old || atomic.CompareAndSwapInt64(h.maxObserved, old, n) {
			break
		}
	}
	<-h.release
	atomic.AddInt64(h.inFlight, -1)
	return req.id, nil
}
