// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Remote transport: the same send(request) -> response contract as the
// local client/server, carried over a gRPC unary call. Request and
// Response values are opaque to gRPC's own framing: each is gob-encoded
// into a length-prefixed byte string carried inside a single
// wrapperspb.BytesValue, so no per-component .proto/codegen step is
// needed while still riding gRPC's real wire protocol (HTTP/2, protobuf
// envelope, status codes) end to end, the way the teacher's network.go
// tracks typed request/response pairs over a shared connection.
package runtime

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const remoteServiceName = "sequencer.runtime.Component"
const remoteMethodName = "Invoke"
const remoteFullMethod = "/" + remoteServiceName + "/" + remoteMethodName

func encode(v any) (*wrapperspb.BytesValue, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("runtime: encoding payload: %w", err)
	}
	return wrapperspb.Bytes(buf.Bytes()), nil
}

func decode(msg *wrapperspb.BytesValue, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(msg.GetValue())).Decode(v); err != nil {
		return fmt.Errorf("runtime: decoding payload: %w", err)
	}
	return nil
}

// RemoteServer exposes a LocalClient over gRPC, so a remote host's
// RemoteClient can reach the same server a local, in-process caller
// would (§4.1).
type RemoteServer[Req Request, Resp any] struct {
	local *LocalClient[Req, Resp]
}

// NewRemoteServer wraps local for remote access.
func NewRemoteServer[Req Request, Resp any](local *LocalClient[Req, Resp]) *RemoteServer[Req, Resp] {
	return &RemoteServer[Req, Resp]{local: local}
}

// Register attaches this component's remote endpoint to grpcServer. Each
// component gets its own grpc.ServiceDesc under the same generic method
// name; serviceName must be unique per component within the process
// (typically the component's name).
func (s *RemoteServer[Req, Resp]) Register(grpcServer *grpc.Server, serviceName string) {
	handler := func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		var in wrapperspb.BytesValue
		if err := dec(&in); err != nil {
			return nil, err
		}
		var req Req
		if err := decode(&in, &req); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "runtime: malformed request: %v", err)
		}
		resp, err := s.local.Send(ctx, req)
		if err != nil {
			return nil, err
		}
		return encode(resp)
	}

	desc := &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: remoteMethodName, Handler: handler},
		},
		Metadata: "runtime.proto",
	}
	grpcServer.RegisterService(desc, nil)
}

// RemoteClient is the remote-transport counterpart to LocalClient: same
// send contract, carried over a gRPC connection with a retry policy
// (§4.1).
type RemoteClient[Req Request, Resp any] struct {
	conn        *grpc.ClientConn
	serviceName string
	policy      RetryPolicy
}

// NewRemoteClient constructs a client against an already-dialed conn,
// targeting the component registered under serviceName.
func NewRemoteClient[Req Request, Resp any](conn *grpc.ClientConn, serviceName string, policy RetryPolicy) *RemoteClient[Req, Resp] {
	return &RemoteClient[Req, Resp]{conn: conn, serviceName: serviceName, policy: policy}
}

// Send encodes req, invokes the remote component, decodes and returns its
// response, retrying transport-level failures per policy (§4.1).
func (c *RemoteClient[Req, Resp]) Send(ctx context.Context, req Req) (Resp, error) {
	var resp Resp
	in, err := encode(req)
	if err != nil {
		return resp, err
	}

	var out wrapperspb.BytesValue
	method := "/" + c.serviceName + "/" + remoteMethodName
	err = withRetry(ctx, c.policy, func(ctx context.Context) error {
		return c.conn.Invoke(ctx, method, in, &out)
	})
	if err != nil {
		return resp, err
	}
	if err := decode(&out, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}
