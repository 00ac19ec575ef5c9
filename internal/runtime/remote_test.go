// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func TestRemote_RoundTripOverBufconn(t *testing.T) {
	r := require.New(t)

	h := &recordingHandler{}
	localServer := NewServer[testRequest, int]("echo", h, DefaultConfig())
	localServer.Start()
	defer localServer.Stop()

	remoteServer := NewRemoteServer[testRequest, int](NewLocalClient[testRequest, int](localServer))

	lis := bufconn.Listen(1 << 16)
	grpcServer := grpc.NewServer()
	remoteServer.Register(grpcServer, "echo")
	go func() { _ = grpcServer.Serve(lis) }()
	defer grpcServer.Stop()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	r.NoError(err)
	defer conn.Close()

	client := NewRemoteClient[testRequest, int](conn, "echo", DefaultRetryPolicy())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Send(ctx, testRequest{priority: PriorityNormal, id: 42})
	r.NoError(err)
	r.Equal(42, resp)
}
